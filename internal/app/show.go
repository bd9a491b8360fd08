package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"card-arb-alerts/internal/clean"
	"card-arb-alerts/internal/storage"
)

// Show prints the current active opportunities, best first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show opportunities")
	}
	defer closeStore()

	var cardID *int64
	if opts.CardName != "" {
		card, lookupErr := store.GetCardByKey(ctx, clean.NormalizeName(opts.CardName), opts.SetName)
		if lookupErr != nil {
			if errors.Is(lookupErr, storage.ErrCardNotFound) {
				fmt.Fprintf(os.Stdout, "no card found for %q\n", opts.CardName)
				return nil
			}
			return lookupErr
		}
		cardID = &card.ID
	}

	opportunities, err := store.ListActiveOpportunities(ctx, opts.MinScore, cardID, opts.Limit)
	if err != nil {
		return err
	}
	if len(opportunities) == 0 {
		fmt.Fprintln(os.Stdout, "no active opportunities")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Score", "Card", "Set", "Rarity", "Buy", "Sell", "Net", "Pct", "Expires (UTC)")

	for _, opp := range opportunities {
		table.Append(
			fmt.Sprintf("%.1f", opp.Score),
			opp.CardName,
			opp.SetName,
			opp.Rarity,
			fmt.Sprintf("%s $%s", opp.BuyMarketplace, opp.BuyPrice.StringFixed(2)),
			fmt.Sprintf("%s $%s", opp.SellMarketplace, opp.SellPrice.StringFixed(2)),
			"$"+opp.NetProfit.StringFixed(2),
			opp.ProfitPct.Mul(decimal.NewFromInt(100)).StringFixed(1)+"%",
			opp.ExpiresAt.UTC().Format(time.RFC3339),
		)
	}

	table.Render()
	return nil
}
