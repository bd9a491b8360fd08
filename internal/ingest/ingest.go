package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"card-arb-alerts/internal/clean"
	"card-arb-alerts/internal/fetcher"
	"card-arb-alerts/internal/storage"
)

// Target is one search entry from the watch list.
type Target struct {
	Name    string
	SetName string
}

// Report summarises a scrape run. A run always completes and reports counts,
// even when individual targets failed.
type Report struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Targets       int
	TargetsFailed int
	CardsUpserted int
	ListingsSeen  int
	PricesStored  int
	Rejected      int
	NonTarget     int
	CardIDs       []int64
}

// Pipeline merges metadata lookups and marketplace listings into canonical
// cards and prices. Targets are processed by a bounded worker pool; per-target
// failures degrade, they never abort the batch.
type Pipeline struct {
	meta    fetcher.MetadataFetcher
	sources []fetcher.ListingSource
	cards   storage.CardStore
	prices  storage.PriceStore
	workers int
	logger  zerolog.Logger

	keys *keyedMutex

	mu      sync.Mutex
	report  Report
	touched map[int64]struct{}
}

// New constructs an ingestion pipeline.
func New(meta fetcher.MetadataFetcher, sources []fetcher.ListingSource, cards storage.CardStore, prices storage.PriceStore, workers int, logger zerolog.Logger) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		meta:    meta,
		sources: sources,
		cards:   cards,
		prices:  prices,
		workers: workers,
		logger:  logger.With().Str("component", "ingest").Logger(),
		keys:    newKeyedMutex(),
	}
}

// Run ingests every target and returns the run report. Only context
// cancellation is returned as an error.
func (p *Pipeline) Run(ctx context.Context, targets []Target) (Report, error) {
	p.mu.Lock()
	p.report = Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Targets:   len(targets),
	}
	p.touched = make(map[int64]struct{})
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			return p.processTarget(gctx, target)
		})
	}

	err := g.Wait()

	p.mu.Lock()
	p.report.FinishedAt = time.Now().UTC()
	p.report.CardIDs = make([]int64, 0, len(p.touched))
	for id := range p.touched {
		p.report.CardIDs = append(p.report.CardIDs, id)
	}
	sort.Slice(p.report.CardIDs, func(i, j int) bool { return p.report.CardIDs[i] < p.report.CardIDs[j] })
	report := p.report
	p.mu.Unlock()

	if err != nil {
		return report, err
	}
	return report, nil
}

// processTarget runs one target to completion: metadata first, since listing
// attachment needs the card identity, then every marketplace's listings.
func (p *Pipeline) processTarget(ctx context.Context, target Target) error {
	matches, err := p.meta.SearchCards(ctx, target.Name, target.SetName)
	if err != nil {
		// Only context cancellation propagates from the fetcher.
		return err
	}

	var targetCard *storage.Card
	if len(matches) > 0 {
		card, upsertErr := p.upsertFromMetadata(ctx, matches[0])
		if upsertErr != nil {
			p.logger.Error().Err(upsertErr).Str("target", target.Name).Msg("card upsert failed")
			p.count(func(r *Report) { r.TargetsFailed++ })
		} else {
			targetCard = &card
			p.markTouched(card.ID)
			p.count(func(r *Report) { r.CardsUpserted++ })
		}
	} else {
		p.logger.Warn().Str("target", target.Name).Msg("no metadata match; proceeding with listings only")
	}

	for _, source := range p.sources {
		listings, fetchErr := source.FetchListings(ctx, []string{target.Name})
		if fetchErr != nil {
			return fetchErr
		}
		p.ingestListings(ctx, targetCard, listings)
	}

	return ctx.Err()
}

func (p *Pipeline) upsertFromMetadata(ctx context.Context, m fetcher.CardMetadata) (storage.Card, error) {
	normalized := clean.NormalizeName(m.Name)
	unlock := p.keys.lock(normalized + "|" + m.SetName)
	defer unlock()

	var tcgID *string
	if m.TCGID != "" {
		id := m.TCGID
		tcgID = &id
	}

	return p.cards.UpsertCard(ctx, storage.Card{
		Name:           m.Name,
		NormalizedName: normalized,
		SetName:        m.SetName,
		Number:         m.Number,
		Rarity:         m.Rarity,
		Variant:        string(clean.ExtractVariant(m.Name)),
		LanguageOK:     clean.IsTargetLanguage(m.Name, m.SetName, ""),
		TCGID:          tcgID,
		ImageSmall:     m.ImageSmall,
		ImageLarge:     m.ImageLarge,
	})
}

// ingestListings cleans, classifies, and stores one marketplace batch.
// Non-target-language rows are stored unverified for audit, never silently
// dropped; only unparseable prices are rejected outright.
func (p *Pipeline) ingestListings(ctx context.Context, targetCard *storage.Card, listings []fetcher.RawListing) {
	p.count(func(r *Report) { r.ListingsSeen += len(listings) })

	type cleaned struct {
		listing fetcher.RawListing
		amount  decimal.Decimal
	}

	kept := make([]cleaned, 0, len(listings))
	amounts := make(map[string][]decimal.Decimal)
	for _, listing := range listings {
		amount, ok := clean.CleanPrice(listing.PriceText)
		if !ok {
			p.count(func(r *Report) { r.Rejected++ })
			continue
		}
		kept = append(kept, cleaned{listing: listing, amount: amount})
		key := clean.NormalizeName(listing.Title)
		amounts[key] = append(amounts[key], amount)
	}

	medians := make(map[string]decimal.Decimal, len(amounts))
	for key, values := range amounts {
		medians[key] = median(values)
	}

	now := time.Now().UTC()
	for _, item := range kept {
		if ctx.Err() != nil {
			return
		}

		listing := item.listing
		normalized := clean.NormalizeName(listing.Title)
		languageOK := clean.IsTargetLanguage(listing.Title, listing.SetName, listing.Description)
		if !languageOK {
			p.count(func(r *Report) { r.NonTarget++ })
		}

		card, err := p.resolveCard(ctx, targetCard, normalized, listing)
		if err != nil {
			p.logger.Error().Err(err).Str("listing", listing.Title).Msg("card resolution failed; listing skipped")
			p.count(func(r *Report) { r.Rejected++ })
			continue
		}

		var rating *decimal.Decimal
		if listing.SellerRating != nil {
			value := decimal.NewFromFloat(*listing.SellerRating)
			rating = &value
		}

		priceRecord := storage.Price{
			CardID:       card.ID,
			Marketplace:  listing.Marketplace,
			Amount:       item.amount,
			Condition:    listing.Condition,
			ListingURL:   listing.URL,
			SellerRating: rating,
			Verified:     languageOK,
			PriceCheck:   classifyPrice(item.amount, medians[normalized], len(amounts[normalized])),
			ScrapedAt:    now,
		}
		if _, err := p.prices.InsertPrice(ctx, priceRecord); err != nil {
			p.logger.Error().Err(err).Str("listing", listing.Title).Msg("price insert failed")
			continue
		}
		p.markTouched(card.ID)
		p.count(func(r *Report) { r.PricesStored++ })
	}
}

// resolveCard matches a listing to a card by normalized name equality. The
// target's own card wins when it matches; otherwise the first stored card
// with the same normalized name; otherwise a minimal card from the listing.
func (p *Pipeline) resolveCard(ctx context.Context, targetCard *storage.Card, normalized string, listing fetcher.RawListing) (storage.Card, error) {
	if targetCard != nil && targetCard.NormalizedName == normalized {
		return *targetCard, nil
	}

	unlock := p.keys.lock(normalized + "|" + listing.SetName)
	defer unlock()

	existing, err := p.cards.FindCardsByNormalized(ctx, normalized)
	if err != nil {
		return storage.Card{}, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	return p.cards.UpsertCard(ctx, storage.Card{
		Name:           listing.Title,
		NormalizedName: normalized,
		SetName:        listing.SetName,
		Variant:        string(clean.ExtractVariant(listing.Title)),
		LanguageOK:     false,
	})
}

// classifyPrice flags listings far outside the batch median for the same
// card. Small batches stay REASONABLE; there is no median to trust.
func classifyPrice(amount, batchMedian decimal.Decimal, samples int) string {
	if samples < 3 || batchMedian.IsZero() {
		return storage.PriceCheckReasonable
	}
	if amount.GreaterThan(batchMedian.Mul(decimal.NewFromInt(3))) {
		return storage.PriceCheckSuspiciousHigh
	}
	if amount.LessThan(batchMedian.Mul(decimal.RequireFromString("0.25"))) {
		return storage.PriceCheckSuspiciousLow
	}
	return storage.PriceCheckReasonable
}

func median(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

func (p *Pipeline) count(update func(r *Report)) {
	p.mu.Lock()
	update(&p.report)
	p.mu.Unlock()
}

func (p *Pipeline) markTouched(cardID int64) {
	p.mu.Lock()
	p.touched[cardID] = struct{}{}
	p.mu.Unlock()
}
