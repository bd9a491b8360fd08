package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"card-arb-alerts/internal/app"
)

var (
	simulateCard string
	simulateBuy  string
	simulateSell string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a synthetic buy/sell pair through the arbitrage engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateBuy == "" || simulateSell == "" {
			return fmt.Errorf("--buy and --sell are required")
		}

		opts := app.SimulateOptions{
			CardName:  simulateCard,
			BuyPrice:  simulateBuy,
			SellPrice: simulateSell,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCard, "card", "", "Card name for the synthetic pair")
	simulateCmd.Flags().StringVar(&simulateBuy, "buy", "", "Buy price, e.g. 10 or $10.50")
	simulateCmd.Flags().StringVar(&simulateSell, "sell", "", "Sell price, e.g. 20 or $19.99")
}
