package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"card-arb-alerts/internal/alerting"
	"card-arb-alerts/internal/clean"
	"card-arb-alerts/internal/storage"
)

// Simulate 用给定买卖价模拟一次套利评估与告警流程。
// Nothing is persisted; the synthetic pair runs through the real fee model,
// policy, and scorer.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	buyPrice, ok := clean.CleanPrice(opts.BuyPrice)
	if !ok {
		return fmt.Errorf("invalid --buy value %q", opts.BuyPrice)
	}
	sellPrice, ok := clean.CleanPrice(opts.SellPrice)
	if !ok {
		return fmt.Errorf("invalid --sell value %q", opts.SellPrice)
	}

	cardName := opts.CardName
	if cardName == "" {
		cardName = "Charizard ex"
	}

	card := storage.Card{
		ID:             0,
		Name:           cardName,
		NormalizedName: clean.NormalizeName(cardName),
		Variant:        string(clean.ExtractVariant(cardName)),
	}
	now := time.Now().UTC()
	prices := []storage.Price{
		{Marketplace: "tcgplayer", Amount: buyPrice, ListingURL: "simulated://buy", ScrapedAt: now},
		{Marketplace: "ebay", Amount: sellPrice, ListingURL: "simulated://sell", ScrapedAt: now},
	}

	opportunities := a.newEngine().Evaluate(card, prices, now)
	if len(opportunities) == 0 {
		fmt.Fprintln(os.Stdout, "no opportunity: the pair does not clear the fee model and profit floors")
		return nil
	}

	for _, opp := range opportunities {
		fmt.Fprintf(os.Stdout, "score %.1f/10: %s\n", opp.Score, opp.Rationale)
	}

	if !a.Config.Alerting.Enabled {
		return nil
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("alerting 已启用但未配置任何告警通道")
	}

	best := opportunities[0]
	for _, opp := range opportunities[1:] {
		if opp.Score > best.Score {
			best = opp
		}
	}

	return notifier.Notify(ctx, alerting.Notification{
		CardName:        card.Name,
		BuyMarketplace:  best.BuyMarketplace,
		BuyPrice:        best.BuyPrice,
		SellMarketplace: best.SellMarketplace,
		SellPrice:       best.SellPrice,
		NetProfit:       best.NetProfit,
		ProfitPct:       best.ProfitPct,
		Score:           best.Score,
		Rationale:       best.Rationale,
		ExpiresAt:       best.ExpiresAt,
	})
}
