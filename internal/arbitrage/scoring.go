package arbitrage

import (
	"github.com/shopspring/decimal"

	"card-arb-alerts/internal/catalog"
	"card-arb-alerts/internal/clean"
)

// ScoreInput carries everything a scorer may weigh for one candidate pair.
type ScoreInput struct {
	NetProfit  decimal.Decimal
	ProfitPct  decimal.Decimal
	RarityRank int
	Variant    clean.Variant
}

// Scorer rates an opportunity on a 1..10 scale. The blending policy is the
// most speculative part of the system, so it stays pluggable rather than
// baked into the engine.
type Scorer interface {
	Score(in ScoreInput) float64
}

// RarityWeightedScorer is the default deterministic policy: absolute profit
// and profit percentage each earn up to a fixed share of the scale, and a
// rarity bonus lifts chase cards over bulk.
//
//	score = 1 + 4·min(net/profitScale, 1) + 3·min(pct, 1) + 2·(9-rank)/8
//
// clamped to [1, 10]. ProfitScale is the net profit that earns full marks on
// the absolute-profit term.
type RarityWeightedScorer struct {
	ProfitScale decimal.Decimal
}

// NewRarityWeightedScorer builds the default scorer. scale <= 0 falls back
// to 50.
func NewRarityWeightedScorer(scale float64) RarityWeightedScorer {
	if scale <= 0 {
		scale = 50
	}
	return RarityWeightedScorer{ProfitScale: decimal.NewFromFloat(scale)}
}

// Score implements Scorer.
func (s RarityWeightedScorer) Score(in ScoreInput) float64 {
	profitTerm := in.NetProfit.Div(s.ProfitScale).InexactFloat64()
	if profitTerm > 1 {
		profitTerm = 1
	}
	if profitTerm < 0 {
		profitTerm = 0
	}

	pctTerm := in.ProfitPct.InexactFloat64()
	if pctTerm > 1 {
		pctTerm = 1
	}
	if pctTerm < 0 {
		pctTerm = 0
	}

	rank := in.RarityRank
	if rank < 1 {
		rank = 1
	}
	if rank > catalog.LowestRank {
		rank = catalog.LowestRank
	}
	rarityTerm := float64(catalog.LowestRank-rank) / float64(catalog.LowestRank-1)

	score := 1 + 4*profitTerm + 3*pctTerm + 2*rarityTerm
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score
}

var _ Scorer = RarityWeightedScorer{}
