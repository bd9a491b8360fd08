package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"card-arb-alerts/internal/app"
)

var (
	showMinScore float64
	showLimit    int
	showCard     string
	showSet      string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display active arbitrage opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			MinScore: showMinScore,
			Limit:    showLimit,
			CardName: showCard,
			SetName:  showSet,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().Float64Var(&showMinScore, "min-score", 0, "Only show opportunities at or above this score")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of opportunities to display")
	showCmd.Flags().StringVar(&showCard, "card", "", "Filter to one card by name")
	showCmd.Flags().StringVar(&showSet, "set", "", "Set name to disambiguate --card")
}
