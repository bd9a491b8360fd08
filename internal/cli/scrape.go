package cli

import (
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape-and-evaluate pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scrape(cmd.Context())
	},
}
