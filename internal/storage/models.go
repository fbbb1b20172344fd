package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"match-alerts/internal/domain"
)

// Fire statuses recorded alongside the dedup row.
const (
	FireStatusDispatched     = "dispatched"
	FireStatusDispatchFailed = "dispatch_failed"
)

// RuleRecord is the persisted form of an alert rule. The condition tree,
// time windows, and sequences live in JSONB columns and are parsed
// through the domain validators at load time.
type RuleRecord struct {
	ID          int64
	Name        string
	UserID      string
	Phone       string
	Condition   json.RawMessage
	TimeWindows json.RawMessage
	Sequences   json.RawMessage
	Active      bool
	CreatedAt   time.Time
}

// ToDomain parses and validates the record into an AlertRule.
func (r RuleRecord) ToDomain() (domain.AlertRule, error) {
	rule := domain.AlertRule{
		ID:     r.ID,
		Name:   r.Name,
		UserID: r.UserID,
		Phone:  r.Phone,
	}

	if err := json.Unmarshal(r.Condition, &rule.Root); err != nil {
		return domain.AlertRule{}, fmt.Errorf("rule %d: parse condition: %w", r.ID, err)
	}
	if len(r.TimeWindows) > 0 {
		if err := json.Unmarshal(r.TimeWindows, &rule.Windows); err != nil {
			return domain.AlertRule{}, fmt.Errorf("rule %d: parse time windows: %w", r.ID, err)
		}
	}
	if len(r.Sequences) > 0 {
		if err := json.Unmarshal(r.Sequences, &rule.Sequences); err != nil {
			return domain.AlertRule{}, fmt.Errorf("rule %d: parse sequences: %w", r.ID, err)
		}
	}
	for i := range rule.Sequences {
		rule.Sequences[i].TimeLimit = time.Duration(rule.Sequences[i].TimeLimitSec) * time.Second
	}

	if err := rule.Validate(); err != nil {
		return domain.AlertRule{}, err
	}
	return rule, nil
}

// FireRecord is the append-only at-most-once fact: one row per
// (rule, fixture) pair that has fired.
type FireRecord struct {
	RuleID    int64
	FixtureID int64
	RuleName  string
	Message   string
	Status    string
	CreatedAt time.Time
}

// SignalSample persists one cycle's derived signals for a fixture. It
// feeds the show and export commands; the core never reads it back
// during evaluation.
type SignalSample struct {
	FixtureID    int64
	CycleTS      time.Time
	HomeTeam     string
	AwayTeam     string
	HomeScore    int
	AwayScore    int
	Elapsed      int
	XGHome       float64
	XGAway       float64
	MomentumHome float64
	MomentumAway float64
	PressureHome float64
	PressureAway float64
	WinProbHome  float64
	WinProbAway  float64
	DrawProb     float64
	CreatedAt    time.Time
}

// PatternRecord is the persisted form of a detected game pattern.
type PatternRecord struct {
	ID         int64
	FixtureID  int64
	Kind       string
	Severity   string
	Confidence float64
	Side       string
	StartedAt  time.Time
	EndedAt    time.Time
	DetectedAt time.Time
}
