package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"match-alerts/internal/domain"
)

// sequenceState tracks one (fixture, rule, sequence) window.
type sequenceState struct {
	observed    map[int]struct{}
	windowStart time.Time
	complete    bool
}

// SequenceTracker accumulates trigger observations for ordered
// multi-event conditions inside a rolling time budget. It is an explicit
// keyed store owned by the orchestrator, never package-level state.
type SequenceTracker struct {
	mu     sync.Mutex
	states map[string]*sequenceState
	logger zerolog.Logger
}

// NewSequenceTracker constructs an empty tracker.
func NewSequenceTracker(logger zerolog.Logger) *SequenceTracker {
	return &SequenceTracker{
		states: make(map[string]*sequenceState),
		logger: logger.With().Str("component", "sequence_tracker").Logger(),
	}
}

func sequenceKey(fixtureID, ruleID int64, seq int) string {
	return fmt.Sprintf("%d:%d:%d", fixtureID, ruleID, seq)
}

// Observe evaluates every trigger of every sequence of the rule against
// the current snapshot. A window whose time budget has elapsed is reset
// before recording: partial progress expires, it does not pause. Each
// trigger is recorded at most once per window.
func (t *SequenceTracker) Observe(now time.Time, rule domain.AlertRule, snap domain.MatchSnapshot, sig domain.DerivedSignals) {
	if len(rule.Sequences) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for si, seq := range rule.Sequences {
		key := sequenceKey(snap.FixtureID, rule.ID, si)
		st, ok := t.states[key]
		if !ok {
			st = &sequenceState{observed: make(map[int]struct{}), windowStart: now}
			t.states[key] = st
		}

		if now.Sub(st.windowStart) > seq.TimeLimit {
			st.observed = make(map[int]struct{})
			st.windowStart = now
			st.complete = false
		}

		for ti, trig := range seq.Triggers {
			ok, _, err := EvalLeaf(trig, snap, sig)
			if err != nil {
				t.logger.Warn().Err(err).
					Int64("rule_id", rule.ID).
					Int64("fixture_id", snap.FixtureID).
					Int("trigger", ti).
					Msg("sequence trigger resolution failed")
				continue
			}
			if ok {
				st.observed[ti] = struct{}{}
			}
		}

		if len(st.observed) >= len(seq.Triggers) {
			st.complete = true
		}
	}
}

// AnyComplete reports whether at least one of the rule's sequences has
// seen every trigger inside its current window. Rules without sequences
// pass trivially.
func (t *SequenceTracker) AnyComplete(fixtureID int64, rule domain.AlertRule) bool {
	if len(rule.Sequences) == 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for si := range rule.Sequences {
		if st, ok := t.states[sequenceKey(fixtureID, rule.ID, si)]; ok && st.complete {
			return true
		}
	}
	return false
}

// ForgetFixture drops all sequence state for a fixture, typically once
// the match is no longer live.
func (t *SequenceTracker) ForgetFixture(fixtureID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefix := fmt.Sprintf("%d:", fixtureID)
	for key := range t.states {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(t.states, key)
		}
	}
}
