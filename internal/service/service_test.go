package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-arb-alerts/internal/alerting"
	"card-arb-alerts/internal/arbitrage"
	"card-arb-alerts/internal/catalog"
	"card-arb-alerts/internal/config"
	"card-arb-alerts/internal/ingest"
	"card-arb-alerts/internal/storage"
)

type stubPipeline struct {
	report ingest.Report
	err    error
}

func (p *stubPipeline) Run(context.Context, []ingest.Target) (ingest.Report, error) {
	return p.report, p.err
}

type stubCards struct {
	cards map[int64]storage.Card
}

func (s *stubCards) UpsertCard(_ context.Context, card storage.Card) (storage.Card, error) {
	return card, nil
}

func (s *stubCards) GetCardByID(_ context.Context, id int64) (storage.Card, error) {
	if card, ok := s.cards[id]; ok {
		return card, nil
	}
	return storage.Card{}, storage.ErrCardNotFound
}

func (s *stubCards) GetCardByKey(context.Context, string, string) (storage.Card, error) {
	return storage.Card{}, storage.ErrCardNotFound
}

func (s *stubCards) FindCardsByNormalized(context.Context, string) ([]storage.Card, error) {
	return nil, nil
}

func (s *stubCards) CountCards(context.Context) (int64, error) {
	return int64(len(s.cards)), nil
}

type stubPrices struct {
	byCard map[int64][]storage.Price
}

func (s *stubPrices) InsertPrice(context.Context, storage.Price) (int64, error) { return 0, nil }

func (s *stubPrices) ListPricesSince(_ context.Context, cardID int64, _ time.Time) ([]storage.Price, error) {
	return s.byCard[cardID], nil
}

type stubOpps struct {
	inserted []storage.Opportunity
	expired  int64
}

func (s *stubOpps) InsertOpportunity(_ context.Context, opp storage.Opportunity) (storage.Opportunity, error) {
	s.inserted = append(s.inserted, opp)
	return opp, nil
}

func (s *stubOpps) ListActiveOpportunities(context.Context, float64, *int64, int) ([]storage.OpportunityRow, error) {
	return nil, nil
}

func (s *stubOpps) ExpireBefore(context.Context, time.Time) (int64, error) {
	s.expired++
	return 2, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.notes = append(n.notes, note)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Arbitrage: config.ArbitrageConfig{
			FeeBasis:       "sell",
			OpportunityTTL: time.Hour,
			RecencyWindow:  48 * time.Hour,
			ProfitScale:    50,
		},
		Alerting: config.AlertingConfig{Enabled: true, MinScore: 1.0},
	}
}

func testEngine() *arbitrage.Engine {
	model := arbitrage.FeeModel{
		Basis:           arbitrage.FeeBasisSell,
		DefaultFraction: decimal.Zero,
		Fractions:       map[string]decimal.Decimal{},
		Fixed:           map[string]decimal.Decimal{},
	}
	return arbitrage.NewEngine(model, arbitrage.NewPolicy(0, 0, time.Hour), nil, zerolog.Nop())
}

func verifiedPrice(marketplace, amount string, at time.Time) storage.Price {
	return storage.Price{
		Marketplace: marketplace,
		Amount:      decimal.RequireFromString(amount),
		Verified:    true,
		PriceCheck:  storage.PriceCheckReasonable,
		ScrapedAt:   at,
	}
}

func TestProcessRunCreatesOpportunitiesAndAlerts(t *testing.T) {
	now := time.Now().UTC()
	cards := &stubCards{cards: map[int64]storage.Card{
		7: {ID: 7, Name: "Charizard ex", SetName: "Obsidian Flames", Rarity: "Ultra Rare"},
	}}
	prices := &stubPrices{byCard: map[int64][]storage.Price{
		7: {
			verifiedPrice("tcgplayer", "10", now),
			verifiedPrice("ebay", "20", now),
		},
	}}
	opps := &stubOpps{}
	notifier := &recordingNotifier{}
	pipeline := &stubPipeline{report: ingest.Report{RunID: "run-1", CardIDs: []int64{7}}}

	svc := New(testConfig(), nil, pipeline, testEngine(), cards, prices, opps, notifier, zerolog.Nop())

	require.NoError(t, svc.ProcessRun(context.Background(), now))

	require.Len(t, opps.inserted, 1)
	assert.Equal(t, "tcgplayer", opps.inserted[0].BuyMarketplace)
	assert.Equal(t, "ebay", opps.inserted[0].SellMarketplace)
	assert.EqualValues(t, 1, opps.expired, "run must sweep expired opportunities")

	require.Len(t, notifier.notes, 1)
	assert.Equal(t, "Charizard ex", notifier.notes[0].CardName)
}

func TestProcessRunSkipsUntrustworthyPrices(t *testing.T) {
	now := time.Now().UTC()
	suspicious := verifiedPrice("ebay", "20", now)
	suspicious.PriceCheck = storage.PriceCheckSuspiciousHigh
	unverified := verifiedPrice("cardmarket", "25", now)
	unverified.Verified = false

	cards := &stubCards{cards: map[int64]storage.Card{7: {ID: 7, Name: "Charizard ex"}}}
	prices := &stubPrices{byCard: map[int64][]storage.Price{
		7: {verifiedPrice("tcgplayer", "10", now), suspicious, unverified},
	}}
	opps := &stubOpps{}
	pipeline := &stubPipeline{report: ingest.Report{CardIDs: []int64{7}}}

	svc := New(testConfig(), nil, pipeline, testEngine(), cards, prices, opps, nil, zerolog.Nop())

	require.NoError(t, svc.ProcessRun(context.Background(), now))
	assert.Empty(t, opps.inserted, "flagged prices must not feed detection")
}

func TestProcessRunAlertFloor(t *testing.T) {
	now := time.Now().UTC()
	cards := &stubCards{cards: map[int64]storage.Card{7: {ID: 7, Name: "Charizard ex", Rarity: "Common"}}}
	prices := &stubPrices{byCard: map[int64][]storage.Price{
		7: {verifiedPrice("tcgplayer", "100", now), verifiedPrice("ebay", "100.50", now)},
	}}
	opps := &stubOpps{}
	notifier := &recordingNotifier{}
	pipeline := &stubPipeline{report: ingest.Report{CardIDs: []int64{7}}}

	cfg := testConfig()
	cfg.Alerting.MinScore = 9.5

	svc := New(cfg, nil, pipeline, testEngine(), cards, prices, opps, notifier, zerolog.Nop())

	require.NoError(t, svc.ProcessRun(context.Background(), now))
	require.Len(t, opps.inserted, 1, "opportunity is stored regardless of alert floor")
	assert.Empty(t, notifier.notes, "low-score opportunity must not alert")
}

func TestLatestTrustworthyKeepsNewestPerMarketplace(t *testing.T) {
	old := verifiedPrice("ebay", "10", time.Now().Add(-time.Hour))
	fresh := verifiedPrice("ebay", "12", time.Now())

	kept := latestTrustworthy([]storage.Price{old, fresh})
	require.Len(t, kept, 1)
	assert.True(t, kept[0].Amount.Equal(decimal.RequireFromString("12")))
}

func TestBuildTargetsMergesConfigExtras(t *testing.T) {
	cfg := testConfig()
	cfg.Ingest.Targets = []string{"Gengar ex", catalog.PriorityCards[0], ""}

	targets := buildTargets(cfg)
	assert.Len(t, targets, len(catalog.PriorityCards)+1)

	names := make(map[string]int)
	for _, target := range targets {
		names[target.Name]++
	}
	assert.Equal(t, 1, names[catalog.PriorityCards[0]], "duplicates from config must be dropped")
	assert.Equal(t, 1, names["Gengar ex"])
}
