package arbitrage

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"card-arb-alerts/internal/catalog"
	"card-arb-alerts/internal/clean"
	"card-arb-alerts/internal/storage"
)

// Policy holds the minimum-profit floors and the opportunity lifetime.
type Policy struct {
	MinNetProfit decimal.Decimal
	MinProfitPct decimal.Decimal
	TTL          time.Duration
}

// NewPolicy builds a policy from config values.
func NewPolicy(minNet, minPct float64, ttl time.Duration) Policy {
	return Policy{
		MinNetProfit: decimal.NewFromFloat(minNet),
		MinProfitPct: decimal.NewFromFloat(minPct),
		TTL:          ttl,
	}
}

// Engine computes arbitrage opportunities from a card's current price set.
type Engine struct {
	fees   FeeModel
	policy Policy
	scorer Scorer
	logger zerolog.Logger
}

// NewEngine constructs the arbitrage engine with a pluggable scorer.
func NewEngine(fees FeeModel, policy Policy, scorer Scorer, logger zerolog.Logger) *Engine {
	if scorer == nil {
		scorer = NewRarityWeightedScorer(0)
	}
	return &Engine{
		fees:   fees,
		policy: policy,
		scorer: scorer,
		logger: logger.With().Str("component", "arbitrage_engine").Logger(),
	}
}

// Evaluate walks every ordered cross-marketplace (buy, sell) pair in the
// price set and returns the pairs whose net profit clears the policy floors.
// Pairs within a single marketplace are never candidates.
func (e *Engine) Evaluate(card storage.Card, prices []storage.Price, now time.Time) []storage.Opportunity {
	if len(prices) < 2 {
		return nil
	}

	rank := catalog.RarityRank(card.Rarity)
	variant := clean.Variant(card.Variant)
	if variant == "" {
		variant = clean.VariantRegular
	}

	opportunities := make([]storage.Opportunity, 0)
	for _, buy := range prices {
		for _, sell := range prices {
			if buy.Marketplace == sell.Marketplace {
				continue
			}

			rawProfit := sell.Amount.Sub(buy.Amount)
			if !rawProfit.IsPositive() {
				continue
			}

			basisAmount := e.fees.BasisAmount(buy.Amount, sell.Amount)
			basisMarketplace := e.fees.BasisMarketplace(buy.Marketplace, sell.Marketplace)
			fees := e.fees.FeeFor(basisMarketplace, basisAmount)

			netProfit := rawProfit.Sub(fees)
			if !netProfit.IsPositive() || netProfit.LessThan(e.policy.MinNetProfit) {
				continue
			}

			profitPct := decimal.Zero
			if buy.Amount.IsPositive() {
				profitPct = netProfit.Div(buy.Amount)
			}
			if profitPct.LessThan(e.policy.MinProfitPct) {
				continue
			}

			score := e.scorer.Score(ScoreInput{
				NetProfit:  netProfit,
				ProfitPct:  profitPct,
				RarityRank: rank,
				Variant:    variant,
			})

			opportunities = append(opportunities, storage.Opportunity{
				CardID:          card.ID,
				BuyMarketplace:  buy.Marketplace,
				BuyPrice:        buy.Amount,
				BuyURL:          buy.ListingURL,
				SellMarketplace: sell.Marketplace,
				SellPrice:       sell.Amount,
				RawProfit:       rawProfit,
				Fees:            fees,
				NetProfit:       netProfit,
				ProfitPct:       profitPct,
				Score:           score,
				Rationale:       rationale(card, buy, sell, rawProfit, fees, netProfit, profitPct, rank, variant),
				Active:          true,
				CreatedAt:       now,
				ExpiresAt:       now.Add(e.policy.TTL),
			})
		}
	}

	if len(opportunities) > 0 {
		e.logger.Debug().
			Int64("card_id", card.ID).
			Str("card", card.Name).
			Int("pairs", len(opportunities)).
			Msg("profitable pairs found")
	}
	return opportunities
}

func rationale(card storage.Card, buy, sell storage.Price, raw, fees, net, pct decimal.Decimal, rank int, variant clean.Variant) string {
	return fmt.Sprintf(
		"%s: buy on %s at $%s, sell on %s at $%s. Spread $%s less $%s fees nets $%s (%s%% of buy). Rarity %q ranks %d of %d; variant %s.",
		card.Name,
		buy.Marketplace, buy.Amount.StringFixed(2),
		sell.Marketplace, sell.Amount.StringFixed(2),
		raw.StringFixed(2), fees.StringFixed(2), net.StringFixed(2),
		pct.Mul(decimal.NewFromInt(100)).StringFixed(1),
		card.Rarity, rank, catalog.LowestRank,
		variant,
	)
}
