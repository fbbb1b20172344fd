package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PatternEventKind enumerates the atomic observations fed into the
// pattern detector.
type PatternEventKind int

const (
	EventGoal PatternEventKind = iota
	EventYellowCard
	EventRedCard
	EventPossessionSample
	EventMomentumSample
	EventPressureSample
)

var eventKindNames = map[PatternEventKind]string{
	EventGoal:             "goal",
	EventYellowCard:       "yellow_card",
	EventRedCard:          "red_card",
	EventPossessionSample: "possession_sample",
	EventMomentumSample:   "momentum_sample",
	EventPressureSample:   "pressure_sample",
}

// String returns the wire name of the event kind.
func (k PatternEventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// IsCard reports whether the event is a booking of either color.
func (k PatternEventKind) IsCard() bool {
	return k == EventYellowCard || k == EventRedCard
}

// PatternEvent is one timestamped observation derived from a snapshot.
// Minute is the match's elapsed minute at observation time, not wall
// clock.
type PatternEvent struct {
	Kind   PatternEventKind
	Side   Side
	Value  float64
	Minute int
	At     time.Time
}

// PatternKind enumerates the detectable correlations.
type PatternKind int

const (
	PatternGoalSequence PatternKind = iota
	PatternCardSequence
	PatternPossessionSwing
	PatternMomentumShift
	PatternPressureBuildup
	PatternLateGoals
	PatternEarlyAggression
)

var patternKindNames = map[PatternKind]string{
	PatternGoalSequence:    "goal_sequence",
	PatternCardSequence:    "card_sequence",
	PatternPossessionSwing: "possession_swing",
	PatternMomentumShift:   "momentum_shift",
	PatternPressureBuildup: "pressure_buildup",
	PatternLateGoals:       "late_goals",
	PatternEarlyAggression: "early_aggression",
}

// String returns the wire name of the pattern kind.
func (k PatternKind) String() string {
	if name, ok := patternKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("pattern(%d)", int(k))
}

// MarshalJSON encodes the pattern kind as its wire name.
func (k PatternKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Severity grades a detected pattern.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// String returns the lowercase severity label.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalJSON encodes the severity as its label.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// GamePattern is one detected multi-event correlation. Patterns are a
// parallel output stream; they never gate alert rule firing.
type GamePattern struct {
	FixtureID  int64
	Kind       PatternKind
	Severity   Severity
	Confidence float64
	Side       Side
	Events     []PatternEvent
	StartedAt  time.Time
	EndedAt    time.Time
	DetectedAt time.Time
}
