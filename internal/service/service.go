package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"match-alerts/internal/alerting"
	"match-alerts/internal/config"
	"match-alerts/internal/domain"
	"match-alerts/internal/engine"
	"match-alerts/internal/fetcher"
	"match-alerts/internal/patterns"
	"match-alerts/internal/scheduler"
	"match-alerts/internal/stats"
	"match-alerts/internal/storage"
	"match-alerts/internal/telemetry"
)

// Stores groups the persistence collaborators. Any of them may be nil
// except Fires: without fire history there is no at-most-once guarantee,
// so alerting is disabled when it is absent.
type Stores struct {
	Rules    storage.RuleStore
	Fires    storage.FireHistoryStore
	Samples  storage.SignalSampleStore
	Patterns storage.PatternStore
	Locker   storage.AdvisoryLocker
}

// PatternPublisher pushes detected patterns to the broadcast stream.
type PatternPublisher interface {
	PublishPattern(ctx context.Context, pattern domain.GamePattern) error
}

// Service orchestrates fetching, evaluation, pattern detection,
// deduplication, and dispatch.
type Service struct {
	scheduler *scheduler.Scheduler
	source    fetcher.SnapshotSource
	calc      *stats.Calculator
	evaluator *engine.Evaluator
	tracker   *engine.SequenceTracker
	detector  *patterns.Detector
	stores    Stores
	notifier  alerting.Notifier
	publisher PatternPublisher
	metrics   *telemetry.Metrics
	logger    zerolog.Logger

	alertsOn   bool
	lockKey    int64
	patternTTL time.Duration

	// liveFixtures tracks which fixtures were present last cycle so
	// per-fixture state can be dropped once a match disappears.
	liveFixtures map[int64]struct{}
}

// New constructs the orchestrator.
func New(cfg *config.Config, sched *scheduler.Scheduler, source fetcher.SnapshotSource, stores Stores, notifier alerting.Notifier, publisher PatternPublisher, metrics *telemetry.Metrics, logger zerolog.Logger) *Service {
	log := logger.With().Str("component", "service").Logger()

	alertsOn := cfg.Alerting.Enabled
	if alertsOn && stores.Fires == nil {
		log.Warn().Msg("fire history store not configured; alert dispatch disabled")
		alertsOn = false
	}

	detectorOpts := []patterns.Option{}
	if cfg.Patterns.BufferCapacity > 0 {
		detectorOpts = append(detectorOpts, patterns.WithCapacity(cfg.Patterns.BufferCapacity))
	}
	patternTTL := cfg.Patterns.Retention
	if patternTTL <= 0 {
		patternTTL = patterns.DefaultRetention
	}
	detectorOpts = append(detectorOpts, patterns.WithRetention(patternTTL))

	return &Service{
		scheduler:    sched,
		source:       source,
		calc:         stats.NewCalculator(),
		evaluator:    engine.NewEvaluator(logger),
		tracker:      engine.NewSequenceTracker(logger),
		detector:     patterns.NewDetector(logger, detectorOpts...),
		stores:       stores,
		notifier:     notifier,
		publisher:    publisher,
		metrics:      metrics,
		logger:       log,
		alertsOn:     alertsOn,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
		patternTTL:   patternTTL,
		liveFixtures: make(map[int64]struct{}),
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessCycle)
}

// ProcessCycle executes one poll cycle. Only the snapshot fetch and the
// rule load can fail the cycle; everything per match is isolated so one
// bad fixture or rule never starves the rest.
func (s *Service) ProcessCycle(ctx context.Context, cycle time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("cycle", cycle).Msg("skip cycle because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeCycle(ctx, cycle)
}

func (s *Service) executeCycle(ctx context.Context, cycle time.Time) error {
	snapshots, err := s.source.FetchCurrentMatches(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CycleErrorsTotal.Inc()
		}
		return fmt.Errorf("fetch current matches: %w", err)
	}

	var rules []domain.AlertRule
	if s.stores.Rules != nil {
		rules, err = s.stores.Rules.LoadActiveRules(ctx)
		if err != nil {
			if s.metrics != nil {
				s.metrics.CycleErrorsTotal.Inc()
			}
			return fmt.Errorf("load active rules: %w", err)
		}
	}

	for _, snap := range snapshots {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.processMatch(ctx, cycle, snap, rules)
	}

	s.forgetStaleFixtures(snapshots)
	s.prunePersistedPatterns(ctx, cycle)

	if s.metrics != nil {
		s.metrics.CyclesTotal.Inc()
		s.metrics.MatchesObserved.Set(float64(len(snapshots)))
	}

	s.logger.Info().
		Time("cycle", cycle).
		Int("matches", len(snapshots)).
		Int("rules", len(rules)).
		Msg("cycle complete")
	return nil
}

func (s *Service) processMatch(ctx context.Context, cycle time.Time, snap domain.MatchSnapshot, rules []domain.AlertRule) {
	sig := s.calc.Derive(snap)

	s.persistSample(ctx, cycle, snap, sig)
	s.detectPatterns(ctx, cycle, snap, sig)

	for _, rule := range rules {
		s.evaluateRule(ctx, cycle, rule, snap, sig)
	}
}

func (s *Service) evaluateRule(ctx context.Context, cycle time.Time, rule domain.AlertRule, snap domain.MatchSnapshot, sig domain.DerivedSignals) {
	if len(rule.Sequences) > 0 {
		s.tracker.Observe(cycle, rule, snap, sig)
	}

	if !s.alertsOn {
		return
	}

	exists, err := s.stores.Fires.FireExists(ctx, rule.ID, snap.FixtureID)
	if err != nil {
		s.logger.Error().Err(err).
			Int64("rule_id", rule.ID).
			Int64("fixture_id", snap.FixtureID).
			Msg("fire history lookup failed; skipping rule this cycle")
		return
	}
	if exists {
		return
	}

	fired, message := s.evaluator.Evaluate(rule, snap, sig)
	if !fired {
		return
	}
	if !s.tracker.AnyComplete(snap.FixtureID, rule) {
		return
	}

	// Atomic claim before dispatch: a lost race means another worker
	// already fired this pair and we must stay silent.
	inserted, err := s.stores.Fires.RecordFire(ctx, storage.FireRecord{
		RuleID:    rule.ID,
		FixtureID: snap.FixtureID,
		Message:   message,
		Status:    storage.FireStatusDispatched,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Int64("rule_id", rule.ID).
			Int64("fixture_id", snap.FixtureID).
			Msg("failed to record fire; suppressing dispatch")
		return
	}
	if !inserted {
		return
	}

	if s.metrics != nil {
		s.metrics.AlertsFiredTotal.Inc()
	}
	s.logger.Info().
		Int64("rule_id", rule.ID).
		Str("rule", rule.Name).
		Int64("fixture_id", snap.FixtureID).
		Str("message", message).
		Msg("alert fired")

	if s.notifier == nil {
		return
	}

	note := alerting.NewNotification(
		rule.ID, rule.Name, snap.FixtureID,
		fmt.Sprintf("%s vs %s", snap.HomeTeam, snap.AwayTeam),
		snap.Elapsed, message, rule.UserID, rule.Phone,
	)
	if err := s.notifier.Notify(ctx, note); err != nil {
		if s.metrics != nil {
			s.metrics.DispatchFailuresTotal.Inc()
		}
		s.logger.Error().Err(err).
			Int64("rule_id", rule.ID).
			Int64("fixture_id", snap.FixtureID).
			Msg("dispatch failed; fire decision stands")
		if markErr := s.stores.Fires.MarkFireStatus(ctx, rule.ID, snap.FixtureID, storage.FireStatusDispatchFailed); markErr != nil {
			s.logger.Error().Err(markErr).Msg("failed to mark dispatch failure")
		}
	}
}

func (s *Service) persistSample(ctx context.Context, cycle time.Time, snap domain.MatchSnapshot, sig domain.DerivedSignals) {
	if s.stores.Samples == nil {
		return
	}
	sample := storage.SignalSample{
		FixtureID:    snap.FixtureID,
		CycleTS:      cycle,
		HomeTeam:     snap.HomeTeam,
		AwayTeam:     snap.AwayTeam,
		HomeScore:    snap.HomeScore,
		AwayScore:    snap.AwayScore,
		Elapsed:      snap.Elapsed,
		XGHome:       sig.XGHome,
		XGAway:       sig.XGAway,
		MomentumHome: sig.MomentumHome,
		MomentumAway: sig.MomentumAway,
		PressureHome: sig.PressureHome,
		PressureAway: sig.PressureAway,
		WinProbHome:  sig.WinProbHome,
		WinProbAway:  sig.WinProbAway,
		DrawProb:     sig.DrawProb,
	}
	if err := s.stores.Samples.UpsertSignalSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Int64("fixture_id", snap.FixtureID).Msg("failed to upsert signal sample")
	}
}

func (s *Service) detectPatterns(ctx context.Context, cycle time.Time, snap domain.MatchSnapshot, sig domain.DerivedSignals) {
	fresh := s.detector.Detect(cycle, snap, sig)
	for _, p := range fresh {
		if s.metrics != nil {
			s.metrics.PatternsDetectedTotal.Inc()
		}
		s.logger.Info().
			Int64("fixture_id", p.FixtureID).
			Str("pattern", p.Kind.String()).
			Str("severity", p.Severity.String()).
			Msg("pattern detected")

		if s.stores.Patterns != nil {
			rec := storage.PatternRecord{
				FixtureID:  p.FixtureID,
				Kind:       p.Kind.String(),
				Severity:   p.Severity.String(),
				Confidence: p.Confidence,
				Side:       p.Side.String(),
				StartedAt:  p.StartedAt,
				EndedAt:    p.EndedAt,
				DetectedAt: p.DetectedAt,
			}
			if _, err := s.stores.Patterns.InsertPattern(ctx, rec); err != nil {
				s.logger.Error().Err(err).Int64("fixture_id", p.FixtureID).Msg("failed to persist pattern")
			}
		}

		if s.publisher != nil {
			if err := s.publisher.PublishPattern(ctx, p); err != nil {
				s.logger.Error().Err(err).Int64("fixture_id", p.FixtureID).Msg("failed to publish pattern")
			}
		}
	}
}

// prunePersistedPatterns applies the detector's retention horizon to the
// pattern table so the store and the in-memory view age out together.
func (s *Service) prunePersistedPatterns(ctx context.Context, cycle time.Time) {
	if s.stores.Patterns == nil {
		return
	}
	if err := s.stores.Patterns.DeletePatternsBefore(ctx, cycle.Add(-s.patternTTL)); err != nil {
		s.logger.Error().Err(err).Msg("failed to prune persisted patterns")
	}
}

// forgetStaleFixtures drops tracker and detector state for fixtures that
// were live last cycle but are gone now.
func (s *Service) forgetStaleFixtures(snapshots []domain.MatchSnapshot) {
	current := make(map[int64]struct{}, len(snapshots))
	for _, snap := range snapshots {
		current[snap.FixtureID] = struct{}{}
	}
	for id := range s.liveFixtures {
		if _, still := current[id]; !still {
			s.tracker.ForgetFixture(id)
			s.detector.ForgetFixture(id)
			s.logger.Debug().Int64("fixture_id", id).Msg("fixture no longer live, state dropped")
		}
	}
	s.liveFixtures = current
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.stores.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.stores.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
