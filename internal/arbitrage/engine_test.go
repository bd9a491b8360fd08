package arbitrage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-arb-alerts/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sellFeeModel(fraction string) FeeModel {
	return FeeModel{
		Basis:           FeeBasisSell,
		DefaultFraction: dec(fraction),
		Fractions:       map[string]decimal.Decimal{},
		Fixed:           map[string]decimal.Decimal{},
	}
}

func price(marketplace, amount string) storage.Price {
	return storage.Price{Marketplace: marketplace, Amount: dec(amount), ListingURL: "https://" + marketplace}
}

func testCard() storage.Card {
	return storage.Card{ID: 7, Name: "Charizard ex", Rarity: "Ultra Rare", Variant: "ex"}
}

func TestEvaluateExactMath(t *testing.T) {
	// buy=10, sell=20, 10% fee on the sell price:
	// raw=10, fees=2, net=8, pct=0.8
	engine := NewEngine(sellFeeModel("0.10"), NewPolicy(0, 0, time.Hour), nil, zerolog.Nop())

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	opps := engine.Evaluate(testCard(), []storage.Price{
		price("tcgplayer", "10"),
		price("ebay", "20"),
	}, now)

	require.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, "tcgplayer", opp.BuyMarketplace)
	assert.Equal(t, "ebay", opp.SellMarketplace)
	assert.True(t, opp.RawProfit.Equal(dec("10")), "raw=%s", opp.RawProfit)
	assert.True(t, opp.Fees.Equal(dec("2")), "fees=%s", opp.Fees)
	assert.True(t, opp.NetProfit.Equal(dec("8")), "net=%s", opp.NetProfit)
	assert.True(t, opp.ProfitPct.Equal(dec("0.8")), "pct=%s", opp.ProfitPct)
	assert.Equal(t, now, opp.CreatedAt)
	assert.Equal(t, now.Add(time.Hour), opp.ExpiresAt)
	assert.True(t, opp.Active)
	assert.NotEmpty(t, opp.Rationale)
}

func TestEvaluateNeverPairsSameMarketplace(t *testing.T) {
	engine := NewEngine(sellFeeModel("0"), NewPolicy(0, 0, time.Hour), nil, zerolog.Nop())

	opps := engine.Evaluate(testCard(), []storage.Price{
		price("ebay", "10"),
		price("ebay", "50"),
		price("tcgplayer", "30"),
	}, time.Now())

	for _, opp := range opps {
		assert.NotEqual(t, opp.BuyMarketplace, opp.SellMarketplace)
	}
}

func TestEvaluateRespectsProfitFloors(t *testing.T) {
	// Spread of 4 net; floor of 5 discards it.
	engine := NewEngine(sellFeeModel("0"), NewPolicy(5, 0, time.Hour), nil, zerolog.Nop())
	opps := engine.Evaluate(testCard(), []storage.Price{
		price("tcgplayer", "10"),
		price("ebay", "14"),
	}, time.Now())
	assert.Empty(t, opps)

	// Same spread clears a floor of 4.
	engine = NewEngine(sellFeeModel("0"), NewPolicy(4, 0, time.Hour), nil, zerolog.Nop())
	opps = engine.Evaluate(testCard(), []storage.Price{
		price("tcgplayer", "10"),
		price("ebay", "14"),
	}, time.Now())
	assert.Len(t, opps, 1)

	// Percentage floor: net 4 on a 100 buy is 4%, below a 10% floor.
	engine = NewEngine(sellFeeModel("0"), NewPolicy(0, 0.10, time.Hour), nil, zerolog.Nop())
	opps = engine.Evaluate(testCard(), []storage.Price{
		price("tcgplayer", "100"),
		price("ebay", "104"),
	}, time.Now())
	assert.Empty(t, opps)
}

func TestEvaluateNeverEmitsUnprofitablePair(t *testing.T) {
	// Fees eat the whole spread: raw=1, fees=2.1 on sell basis.
	engine := NewEngine(sellFeeModel("0.10"), NewPolicy(0, 0, time.Hour), nil, zerolog.Nop())
	opps := engine.Evaluate(testCard(), []storage.Price{
		price("tcgplayer", "20"),
		price("ebay", "21"),
	}, time.Now())
	assert.Empty(t, opps)
}

func TestEvaluateZeroBuyPriceGuard(t *testing.T) {
	engine := NewEngine(sellFeeModel("0"), NewPolicy(0, 0, time.Hour), nil, zerolog.Nop())
	opps := engine.Evaluate(testCard(), []storage.Price{
		price("tcgplayer", "0"),
		price("ebay", "10"),
	}, time.Now())

	require.Len(t, opps, 1)
	assert.True(t, opps[0].ProfitPct.IsZero(), "division by zero buy price must yield 0")
}

func TestEvaluateBuyBasisFees(t *testing.T) {
	model := sellFeeModel("0.10")
	model.Basis = FeeBasisBuy
	engine := NewEngine(model, NewPolicy(0, 0, time.Hour), nil, zerolog.Nop())

	opps := engine.Evaluate(testCard(), []storage.Price{
		price("tcgplayer", "10"),
		price("ebay", "20"),
	}, time.Now())

	require.Len(t, opps, 1)
	// 10% of the buy price, not the sell price.
	assert.True(t, opps[0].Fees.Equal(dec("1")), "fees=%s", opps[0].Fees)
	assert.True(t, opps[0].NetProfit.Equal(dec("9")))
}

type flatScorer struct{ value float64 }

func (s flatScorer) Score(ScoreInput) float64 { return s.value }

func TestEvaluateScorerIsPluggable(t *testing.T) {
	engine := NewEngine(sellFeeModel("0"), NewPolicy(0, 0, time.Hour), flatScorer{value: 4.5}, zerolog.Nop())
	opps := engine.Evaluate(testCard(), []storage.Price{
		price("tcgplayer", "10"),
		price("ebay", "20"),
	}, time.Now())

	require.Len(t, opps, 1)
	assert.Equal(t, 4.5, opps[0].Score)
}

func TestEvaluateFewerThanTwoPrices(t *testing.T) {
	engine := NewEngine(sellFeeModel("0"), NewPolicy(0, 0, time.Hour), nil, zerolog.Nop())
	assert.Nil(t, engine.Evaluate(testCard(), nil, time.Now()))
	assert.Nil(t, engine.Evaluate(testCard(), []storage.Price{price("ebay", "10")}, time.Now()))
}
