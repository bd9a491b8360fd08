package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"card-arb-alerts/internal/clean"
	"card-arb-alerts/internal/storage"
)

// Export renders one card's price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.CardName == "" {
		return errors.New("--card is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	card, err := a.resolveExportCard(ctx, store, opts)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	prices, err := store.ListPricesBetween(ctx, card.ID, from, to)
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		a.Logger.Info().Str("card", card.Name).Msg("no prices found for export window")
		return nil
	}

	downsampled := downsamplePrices(prices, opts.MaxPoints)
	a.Logger.Info().
		Str("card", card.Name).
		Int("total", len(prices)).
		Int("exported", len(downsampled)).
		Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writePricesCSV(opts.CSVPath, card, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePricesPNG(opts.PNGPath, card, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) resolveExportCard(ctx context.Context, store *storage.Store, opts ExportOptions) (storage.Card, error) {
	normalized := clean.NormalizeName(opts.CardName)

	if opts.SetName != "" {
		card, err := store.GetCardByKey(ctx, normalized, opts.SetName)
		if err != nil {
			if errors.Is(err, storage.ErrCardNotFound) {
				return storage.Card{}, fmt.Errorf("no card found for %q in set %q", opts.CardName, opts.SetName)
			}
			return storage.Card{}, err
		}
		return card, nil
	}

	matches, err := store.FindCardsByNormalized(ctx, normalized)
	if err != nil {
		return storage.Card{}, err
	}
	if len(matches) == 0 {
		return storage.Card{}, fmt.Errorf("no card found for %q", opts.CardName)
	}
	if len(matches) > 1 {
		a.Logger.Warn().
			Str("card", opts.CardName).
			Int("matches", len(matches)).
			Str("chosen_set", matches[0].SetName).
			Msg("card name matches multiple sets; pass --set to disambiguate")
	}
	return matches[0], nil
}

func downsamplePrices(prices []storage.Price, max int) []storage.Price {
	if max <= 0 || len(prices) <= max {
		return prices
	}

	result := make([]storage.Price, 0, max)
	step := float64(len(prices)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(prices) {
			idx = len(prices) - 1
		}
		result = append(result, prices[idx])
	}
	return result
}

func writePricesCSV(path string, card storage.Card, prices []storage.Price) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"scraped_at", "card", "set", "marketplace", "price", "condition", "is_verified", "price_check", "listing_url"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, price := range prices {
		record := []string{
			price.ScrapedAt.Format(time.RFC3339),
			card.Name,
			card.SetName,
			price.Marketplace,
			price.Amount.String(),
			price.Condition,
			fmt.Sprintf("%t", price.Verified),
			price.PriceCheck,
			price.ListingURL,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writePricesPNG charts one time series per marketplace. Marketplaces with a
// single observation cannot form a line and are skipped.
func writePricesPNG(path string, card storage.Card, prices []storage.Price) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	byMarketplace := make(map[string][]storage.Price)
	for _, price := range prices {
		byMarketplace[price.Marketplace] = append(byMarketplace[price.Marketplace], price)
	}

	marketplaces := make([]string, 0, len(byMarketplace))
	for marketplace, series := range byMarketplace {
		if len(series) >= 2 {
			marketplaces = append(marketplaces, marketplace)
		}
	}
	if len(marketplaces) == 0 {
		return errors.New("not enough observations per marketplace to chart")
	}
	sort.Strings(marketplaces)

	series := make([]chart.Series, 0, len(marketplaces))
	for _, marketplace := range marketplaces {
		points := byMarketplace[marketplace]
		x := make([]time.Time, len(points))
		y := make([]float64, len(points))
		for i, point := range points {
			x[i] = point.ScrapedAt
			y[i] = point.Amount.InexactFloat64()
		}
		series = append(series, chart.TimeSeries{
			Name:    marketplace,
			XValues: x,
			YValues: y,
		})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.2f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("%s (%s)", card.Name, card.SetName),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
