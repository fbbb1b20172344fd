package patterns

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"match-alerts/internal/domain"
)

const (
	// DefaultBufferCapacity bounds the per-fixture event ring.
	DefaultBufferCapacity = 50
	// DefaultRetention is how long detected patterns are kept.
	DefaultRetention = 2 * time.Hour

	goalSequenceGap    = 300 * time.Second
	rapidGoalGap       = 120 * time.Second
	cardSequenceSpan   = 600 * time.Second
	possessionSwingPct = 20.0
	momentumShiftDelta = 30.0
	pressureHighMark   = 70.0
	lateGoalMinute     = 80
	earlyCardMinute    = 20
)

// fixtureState holds everything the detector tracks for one fixture.
// State is keyed per fixture so concurrent cycles never contend across
// matches.
type fixtureState struct {
	events   []domain.PatternEvent
	retained []domain.GamePattern
	seen     map[string]struct{}
	prev     *domain.MatchSnapshot
}

// Detector scans a bounded per-fixture event window for higher-order
// correlations. Patterns are a parallel output stream: they never gate
// rule firing.
type Detector struct {
	mu        sync.Mutex
	fixtures  map[int64]*fixtureState
	capacity  int
	retention time.Duration
	logger    zerolog.Logger
}

// Option tunes a Detector.
type Option func(*Detector)

// WithCapacity overrides the per-fixture event buffer size.
func WithCapacity(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.capacity = n
		}
	}
}

// WithRetention overrides how long detected patterns are kept.
func WithRetention(ttl time.Duration) Option {
	return func(d *Detector) {
		if ttl > 0 {
			d.retention = ttl
		}
	}
}

// NewDetector constructs a Detector with default capacity and retention.
func NewDetector(logger zerolog.Logger, opts ...Option) *Detector {
	d := &Detector{
		fixtures:  make(map[int64]*fixtureState),
		capacity:  DefaultBufferCapacity,
		retention: DefaultRetention,
		logger:    logger.With().Str("component", "pattern_detector").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect ingests one snapshot and returns any patterns newly detected
// this cycle. Events derived from score or card deltas carry the match's
// elapsed minute; sample events are appended every cycle.
func (d *Detector) Detect(now time.Time, snap domain.MatchSnapshot, sig domain.DerivedSignals) []domain.GamePattern {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.fixtures[snap.FixtureID]
	if !ok {
		st = &fixtureState{seen: make(map[string]struct{})}
		d.fixtures[snap.FixtureID] = st
	}

	d.appendEvents(st, now, snap, sig)
	prev := snap
	st.prev = &prev

	fresh := d.scan(st, snap.FixtureID, now)
	d.prune(st, now)
	return fresh
}

// RetainedPatterns returns the patterns currently held for a fixture.
func (d *Detector) RetainedPatterns(fixtureID int64) []domain.GamePattern {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.fixtures[fixtureID]
	if !ok {
		return nil
	}
	out := make([]domain.GamePattern, len(st.retained))
	copy(out, st.retained)
	return out
}

// ForgetFixture drops all detector state for a fixture.
func (d *Detector) ForgetFixture(fixtureID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fixtures, fixtureID)
}

func (d *Detector) appendEvents(st *fixtureState, now time.Time, snap domain.MatchSnapshot, sig domain.DerivedSignals) {
	for _, side := range []domain.Side{domain.SideHome, domain.SideAway} {
		if st.prev != nil {
			d.appendDelta(st, now, snap, side, domain.EventGoal, snap.Score(side)-st.prev.Score(side))
			d.appendDelta(st, now, snap, side, domain.EventYellowCard, snap.Stats(side).YellowCards-st.prev.Stats(side).YellowCards)
			d.appendDelta(st, now, snap, side, domain.EventRedCard, snap.Stats(side).RedCards-st.prev.Stats(side).RedCards)
		}

		d.push(st, domain.PatternEvent{
			Kind: domain.EventPossessionSample, Side: side,
			Value: snap.Stats(side).Possession, Minute: snap.Elapsed, At: now,
		})
		d.push(st, domain.PatternEvent{
			Kind: domain.EventMomentumSample, Side: side,
			Value: sig.Momentum(side), Minute: snap.Elapsed, At: now,
		})
		// Pressure samples are stored on a 0-100 scale to match the
		// buildup threshold.
		d.push(st, domain.PatternEvent{
			Kind: domain.EventPressureSample, Side: side,
			Value: sig.Pressure(side) * 100, Minute: snap.Elapsed, At: now,
		})
	}
}

func (d *Detector) appendDelta(st *fixtureState, now time.Time, snap domain.MatchSnapshot, side domain.Side, kind domain.PatternEventKind, delta int) {
	for i := 0; i < delta; i++ {
		d.push(st, domain.PatternEvent{
			Kind: kind, Side: side, Value: 1, Minute: snap.Elapsed, At: now,
		})
	}
}

func (d *Detector) push(st *fixtureState, ev domain.PatternEvent) {
	st.events = append(st.events, ev)
	if len(st.events) > d.capacity {
		st.events = st.events[len(st.events)-d.capacity:]
	}
}

func (d *Detector) scan(st *fixtureState, fixtureID int64, now time.Time) []domain.GamePattern {
	var found []domain.GamePattern
	found = append(found, scanGoalSequence(st.events, fixtureID, now)...)
	found = append(found, scanCardSequence(st.events, fixtureID, now)...)
	found = append(found, scanWindowedDelta(st.events, fixtureID, now, domain.EventPossessionSample, possessionSwingPct, domain.PatternPossessionSwing, domain.SeverityMedium, 0.7)...)
	found = append(found, scanWindowedDelta(st.events, fixtureID, now, domain.EventMomentumSample, momentumShiftDelta, domain.PatternMomentumShift, domain.SeverityHigh, 0.8)...)
	found = append(found, scanPressureBuildup(st.events, fixtureID, now)...)
	found = append(found, scanTimeBased(st.events, fixtureID, now)...)

	var fresh []domain.GamePattern
	for _, p := range found {
		key := patternSignature(p)
		if _, dup := st.seen[key]; dup {
			continue
		}
		st.seen[key] = struct{}{}
		st.retained = append(st.retained, p)
		fresh = append(fresh, p)
		d.logger.Debug().
			Int64("fixture_id", fixtureID).
			Str("pattern", p.Kind.String()).
			Str("severity", p.Severity.String()).
			Float64("confidence", p.Confidence).
			Msg("pattern detected")
	}
	return fresh
}

// patternSignature keys a detection so a stable buffer does not re-emit
// the same pattern every cycle.
func patternSignature(p domain.GamePattern) string {
	return fmt.Sprintf("%s|%s|%d|%d", p.Kind, p.Side, p.StartedAt.UnixNano(), p.EndedAt.UnixNano())
}

func (d *Detector) prune(st *fixtureState, now time.Time) {
	cutoff := now.Add(-d.retention)
	kept := st.retained[:0]
	for _, p := range st.retained {
		if p.DetectedAt.After(cutoff) {
			kept = append(kept, p)
		} else {
			delete(st.seen, patternSignature(p))
		}
	}
	st.retained = kept
}

func filterEvents(events []domain.PatternEvent, keep func(domain.PatternEvent) bool) []domain.PatternEvent {
	var out []domain.PatternEvent
	for _, ev := range events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func scanGoalSequence(events []domain.PatternEvent, fixtureID int64, now time.Time) []domain.GamePattern {
	goals := filterEvents(events, func(ev domain.PatternEvent) bool { return ev.Kind == domain.EventGoal })

	var out []domain.GamePattern
	for i := 1; i < len(goals); i++ {
		gap := goals[i].At.Sub(goals[i-1].At)
		if gap > goalSequenceGap {
			continue
		}
		severity := domain.SeverityMedium
		if gap <= rapidGoalGap {
			severity = domain.SeverityHigh
		}
		out = append(out, domain.GamePattern{
			FixtureID:  fixtureID,
			Kind:       domain.PatternGoalSequence,
			Severity:   severity,
			Confidence: 0.9,
			Side:       goals[i].Side,
			Events:     []domain.PatternEvent{goals[i-1], goals[i]},
			StartedAt:  goals[i-1].At,
			EndedAt:    goals[i].At,
			DetectedAt: now,
		})
	}
	return out
}

func scanCardSequence(events []domain.PatternEvent, fixtureID int64, now time.Time) []domain.GamePattern {
	cards := filterEvents(events, func(ev domain.PatternEvent) bool { return ev.Kind.IsCard() })

	var out []domain.GamePattern
	for i := 2; i < len(cards); i++ {
		span := cards[i].At.Sub(cards[i-2].At)
		if span > cardSequenceSpan {
			continue
		}
		out = append(out, domain.GamePattern{
			FixtureID:  fixtureID,
			Kind:       domain.PatternCardSequence,
			Severity:   domain.SeverityMedium,
			Confidence: 0.8,
			Side:       cards[i].Side,
			Events:     []domain.PatternEvent{cards[i-2], cards[i-1], cards[i]},
			StartedAt:  cards[i-2].At,
			EndedAt:    cards[i].At,
			DetectedAt: now,
		})
	}
	return out
}

// scanWindowedDelta compares the earliest and latest of the last four
// samples of a kind per side; both the possession swing and momentum
// shift rules share this shape.
func scanWindowedDelta(events []domain.PatternEvent, fixtureID int64, now time.Time, kind domain.PatternEventKind, threshold float64, patternKind domain.PatternKind, severity domain.Severity, confidence float64) []domain.GamePattern {
	var out []domain.GamePattern
	for _, side := range []domain.Side{domain.SideHome, domain.SideAway} {
		samples := filterEvents(events, func(ev domain.PatternEvent) bool {
			return ev.Kind == kind && ev.Side == side
		})
		if len(samples) < 4 {
			continue
		}
		window := samples[len(samples)-4:]
		delta := window[len(window)-1].Value - window[0].Value
		if delta < 0 {
			delta = -delta
		}
		if delta <= threshold {
			continue
		}
		out = append(out, domain.GamePattern{
			FixtureID:  fixtureID,
			Kind:       patternKind,
			Severity:   severity,
			Confidence: confidence,
			Side:       side,
			Events:     window,
			StartedAt:  window[0].At,
			EndedAt:    window[len(window)-1].At,
			DetectedAt: now,
		})
	}
	return out
}

func scanPressureBuildup(events []domain.PatternEvent, fixtureID int64, now time.Time) []domain.GamePattern {
	var out []domain.GamePattern
	for _, side := range []domain.Side{domain.SideHome, domain.SideAway} {
		samples := filterEvents(events, func(ev domain.PatternEvent) bool {
			return ev.Kind == domain.EventPressureSample && ev.Side == side
		})
		if len(samples) < 2 {
			continue
		}
		last := samples[len(samples)-2:]
		if last[0].Value <= pressureHighMark || last[1].Value <= pressureHighMark {
			continue
		}
		out = append(out, domain.GamePattern{
			FixtureID:  fixtureID,
			Kind:       domain.PatternPressureBuildup,
			Severity:   domain.SeverityMedium,
			Confidence: 0.7,
			Side:       side,
			Events:     last,
			StartedAt:  last[0].At,
			EndedAt:    last[1].At,
			DetectedAt: now,
		})
	}
	return out
}

// scanTimeBased flags clusters of late goals and early cards. Minutes are
// the match's elapsed minute at observation time, not wall clock.
func scanTimeBased(events []domain.PatternEvent, fixtureID int64, now time.Time) []domain.GamePattern {
	var out []domain.GamePattern

	lateGoals := filterEvents(events, func(ev domain.PatternEvent) bool {
		return ev.Kind == domain.EventGoal && ev.Minute >= lateGoalMinute
	})
	if len(lateGoals) >= 2 {
		out = append(out, domain.GamePattern{
			FixtureID:  fixtureID,
			Kind:       domain.PatternLateGoals,
			Severity:   domain.SeverityHigh,
			Confidence: 0.8,
			Side:       lateGoals[len(lateGoals)-1].Side,
			Events:     lateGoals,
			StartedAt:  lateGoals[0].At,
			EndedAt:    lateGoals[len(lateGoals)-1].At,
			DetectedAt: now,
		})
	}

	earlyCards := filterEvents(events, func(ev domain.PatternEvent) bool {
		return ev.Kind.IsCard() && ev.Minute <= earlyCardMinute
	})
	if len(earlyCards) >= 2 {
		out = append(out, domain.GamePattern{
			FixtureID:  fixtureID,
			Kind:       domain.PatternEarlyAggression,
			Severity:   domain.SeverityMedium,
			Confidence: 0.7,
			Side:       earlyCards[len(earlyCards)-1].Side,
			Events:     earlyCards,
			StartedAt:  earlyCards[0].At,
			EndedAt:    earlyCards[len(earlyCards)-1].At,
			DetectedAt: now,
		})
	}

	return out
}
