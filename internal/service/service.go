package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"card-arb-alerts/internal/alerting"
	"card-arb-alerts/internal/arbitrage"
	"card-arb-alerts/internal/catalog"
	"card-arb-alerts/internal/config"
	"card-arb-alerts/internal/ingest"
	"card-arb-alerts/internal/scheduler"
	"card-arb-alerts/internal/storage"
)

// Ingestor runs one scrape batch and reports what it touched.
type Ingestor interface {
	Run(ctx context.Context, targets []ingest.Target) (ingest.Report, error)
}

// Service orchestrates ingestion, arbitrage detection, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	pipeline  Ingestor
	engine    *arbitrage.Engine
	cards     storage.CardStore
	prices    storage.PriceStore
	opps      storage.OpportunityStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	targets       []ingest.Target
	recencyWindow time.Duration
	alertsOn      bool
	alertMinScore float64
	locker        storage.AdvisoryLocker
	lockKey       int64
}

// New constructs the arbitrage monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, pipeline Ingestor, engine *arbitrage.Engine, cards storage.CardStore, prices storage.PriceStore, opps storage.OpportunityStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := cards.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:     sched,
		pipeline:      pipeline,
		engine:        engine,
		cards:         cards,
		prices:        prices,
		opps:          opps,
		notifier:      notifier,
		logger:        logger.With().Str("component", "service").Logger(),
		targets:       buildTargets(cfg),
		recencyWindow: cfg.Arbitrage.RecencyWindow,
		alertsOn:      cfg.Alerting.Enabled,
		alertMinScore: cfg.Alerting.MinScore,
		locker:        locker,
		lockKey:       cfg.Scheduler.AdvisoryLockKey,
	}
}

// buildTargets merges the built-in watch list with configured extras,
// dropping duplicates.
func buildTargets(cfg *config.Config) []ingest.Target {
	seen := make(map[string]struct{}, len(catalog.PriorityCards))
	targets := make([]ingest.Target, 0, len(catalog.PriorityCards)+len(cfg.Ingest.Targets))

	for _, name := range catalog.PriorityCards {
		seen[name] = struct{}{}
		targets = append(targets, ingest.Target{Name: name})
	}
	for _, name := range cfg.Ingest.Targets {
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		targets = append(targets, ingest.Target{Name: name})
	}
	return targets
}

// Run begins the scheduled scrape loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessRun)
}

// ProcessRun 执行单次抓取与套利评估。
func (s *Service) ProcessRun(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("run", bucket).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeRun(ctx, bucket)
}

// RunOnce executes a single scrape run outside the scheduler loop.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.ProcessRun(ctx, time.Now().UTC())
}

func (s *Service) executeRun(ctx context.Context, bucket time.Time) error {
	report, err := s.pipeline.Run(ctx, s.targets)
	if err != nil {
		return fmt.Errorf("ingest run: %w", err)
	}

	created, alerted := 0, 0
	for _, cardID := range report.CardIDs {
		n, a, evalErr := s.evaluateCard(ctx, cardID)
		if evalErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(evalErr).Int64("card_id", cardID).Msg("card evaluation failed")
			continue
		}
		created += n
		alerted += a
	}

	swept, sweepErr := s.opps.ExpireBefore(ctx, time.Now().UTC())
	if sweepErr != nil {
		s.logger.Error().Err(sweepErr).Msg("opportunity expiry sweep failed")
	}

	s.logger.Info().
		Str("run_id", report.RunID).
		Time("run", bucket).
		Int("targets", report.Targets).
		Int("targets_failed", report.TargetsFailed).
		Int("listings", report.ListingsSeen).
		Int("prices_stored", report.PricesStored).
		Int("rejected", report.Rejected).
		Int("non_target", report.NonTarget).
		Int("cards_touched", len(report.CardIDs)).
		Int("opportunities", created).
		Int("alerts", alerted).
		Int64("expired", swept).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("scrape run complete")

	return nil
}

// evaluateCard detects arbitrage for one card from its recent trustworthy
// prices and persists whatever clears the policy.
func (s *Service) evaluateCard(ctx context.Context, cardID int64) (created, alerted int, err error) {
	card, err := s.cards.GetCardByID(ctx, cardID)
	if err != nil {
		return 0, 0, fmt.Errorf("load card: %w", err)
	}

	since := time.Now().UTC().Add(-s.recencyWindow)
	prices, err := s.prices.ListPricesSince(ctx, cardID, since)
	if err != nil {
		return 0, 0, fmt.Errorf("load prices: %w", err)
	}

	candidates := latestTrustworthy(prices)
	opportunities := s.engine.Evaluate(card, candidates, time.Now().UTC())

	for _, opp := range opportunities {
		saved, insertErr := s.opps.InsertOpportunity(ctx, opp)
		if insertErr != nil {
			s.logger.Error().Err(insertErr).Int64("card_id", cardID).Msg("opportunity insert failed")
			continue
		}
		created++

		if s.dispatchAlert(ctx, card, saved) {
			alerted++
		}
	}
	return created, alerted, nil
}

// latestTrustworthy keeps the most recent verified, plausible observation per
// marketplace. Unverified and suspicious rows stay in the log for audit but
// never feed opportunity detection.
func latestTrustworthy(prices []storage.Price) []storage.Price {
	latest := make(map[string]storage.Price)
	for _, price := range prices {
		if !price.Verified {
			continue
		}
		if price.PriceCheck != "" && price.PriceCheck != storage.PriceCheckReasonable {
			continue
		}
		current, ok := latest[price.Marketplace]
		if !ok || !price.ScrapedAt.Before(current.ScrapedAt) {
			latest[price.Marketplace] = price
		}
	}

	result := make([]storage.Price, 0, len(latest))
	for _, price := range latest {
		result = append(result, price)
	}
	return result
}

func (s *Service) dispatchAlert(ctx context.Context, card storage.Card, opp storage.Opportunity) bool {
	if !s.alertsOn || s.notifier == nil || opp.Score < s.alertMinScore {
		return false
	}

	note := alerting.Notification{
		CardName:        card.Name,
		SetName:         card.SetName,
		Rarity:          card.Rarity,
		BuyMarketplace:  opp.BuyMarketplace,
		BuyPrice:        opp.BuyPrice,
		SellMarketplace: opp.SellMarketplace,
		SellPrice:       opp.SellPrice,
		NetProfit:       opp.NetProfit,
		ProfitPct:       opp.ProfitPct,
		Score:           opp.Score,
		Rationale:       opp.Rationale,
		ExpiresAt:       opp.ExpiresAt,
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Int64("card_id", card.ID).Msg("failed to dispatch alert")
		return false
	}
	return true
}

// Sweep deactivates expired opportunities once, for the sweep command.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	return s.opps.ExpireBefore(ctx, time.Now().UTC())
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
