package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"card-arb-alerts/internal/alerting"
	"card-arb-alerts/internal/arbitrage"
	"card-arb-alerts/internal/config"
	"card-arb-alerts/internal/fetcher"
	"card-arb-alerts/internal/ingest"
	"card-arb-alerts/internal/scheduler"
	"card-arb-alerts/internal/service"
	"card-arb-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newMetadataFetcher() fetcher.MetadataFetcher {
	return fetcher.NewTCGClient(fetcher.MetadataOptions{
		BaseURL:    a.Config.Metadata.BaseURL,
		APIKey:     a.Config.Metadata.APIKey,
		Timeout:    a.Config.Metadata.RequestTimeout,
		RatePerSec: a.Config.Metadata.RatePerSec,
		Retry: fetcher.RetryPolicy{
			Attempts:  a.Config.Metadata.Retry.Attempts,
			BaseDelay: a.Config.Metadata.Retry.BaseDelay,
		},
	}, a.Logger)
}

// newListingSources builds one scrape client per configured marketplace.
func (a *App) newListingSources() []fetcher.ListingSource {
	scrape := a.Config.Scrape
	sources := make([]fetcher.ListingSource, 0, len(scrape.Marketplaces))
	for marketplace, actorID := range scrape.Marketplaces {
		sources = append(sources, fetcher.NewScrapeClient(fetcher.ScrapeOptions{
			BaseURL:     scrape.BaseURL,
			Token:       scrape.Token,
			Marketplace: marketplace,
			ActorID:     actorID,
			MaxItems:    scrape.MaxItems,
			Timeout:     scrape.RequestTimeout,
			UserAgent:   scrape.UserAgent,
			Retry: fetcher.RetryPolicy{
				Attempts:  scrape.Retry.Attempts,
				BaseDelay: scrape.Retry.BaseDelay,
			},
		}, a.Logger))
	}
	return sources
}

func (a *App) newEngine() *arbitrage.Engine {
	cfg := a.Config.Arbitrage
	return arbitrage.NewEngine(
		arbitrage.NewFeeModel(cfg),
		arbitrage.NewPolicy(cfg.MinNetProfit, cfg.MinProfitPct, cfg.OpportunityTTL),
		arbitrage.NewRarityWeightedScorer(cfg.ProfitScale),
		a.Logger,
	)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires a full service on top of an open store.
func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	pipeline := ingest.New(
		a.newMetadataFetcher(),
		a.newListingSources(),
		store,
		store,
		a.Config.Ingest.Workers,
		a.Logger,
	)
	return service.New(a.Config, sched, pipeline, a.newEngine(), store, store, store, a.newNotifier(), a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the monitoring service needs persistence")
	}
	defer closeStore()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, sched)

	a.Logger.Info().Msg("starting card arbitrage monitor")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("card arbitrage monitor stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	MinScore float64
	Limit    int
	CardName string
	SetName  string
}

// ExportOptions hold parameters for exporting one card's price history.
type ExportOptions struct {
	CardName  string
	SetName   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions feed a synthetic listing pair through the full pipeline.
type SimulateOptions struct {
	CardName  string
	BuyPrice  string
	SellPrice string
}
