package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxTreeDepth bounds condition tree nesting so a malformed rule cannot
// recurse unboundedly at evaluation time.
const MaxTreeDepth = 32

// SignalKind enumerates the values a leaf condition can compare against.
type SignalKind int

const (
	SignalGoals SignalKind = iota
	SignalScoreDiff
	SignalTimeElapsed
	SignalXG
	SignalMomentum
	SignalPressure
	SignalWinProbability
)

var signalNames = map[SignalKind]string{
	SignalGoals:          "goals",
	SignalScoreDiff:      "score_diff",
	SignalTimeElapsed:    "time_elapsed",
	SignalXG:             "xg",
	SignalMomentum:       "momentum",
	SignalPressure:       "pressure",
	SignalWinProbability: "win_probability",
}

var signalByName = func() map[string]SignalKind {
	m := make(map[string]SignalKind, len(signalNames))
	for k, v := range signalNames {
		m[v] = k
	}
	return m
}()

// String returns the wire name of the signal kind.
func (k SignalKind) String() string {
	if name, ok := signalNames[k]; ok {
		return name
	}
	return fmt.Sprintf("signal(%d)", int(k))
}

// Label returns the human-readable name used in alert messages.
func (k SignalKind) Label() string {
	switch k {
	case SignalGoals:
		return "goals"
	case SignalScoreDiff:
		return "score diff"
	case SignalTimeElapsed:
		return "elapsed"
	case SignalXG:
		return "xG"
	case SignalMomentum:
		return "momentum"
	case SignalPressure:
		return "pressure"
	case SignalWinProbability:
		return "win probability"
	default:
		return k.String()
	}
}

// MarshalJSON encodes the signal kind as its wire name.
func (k SignalKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a signal kind from its wire name.
func (k *SignalKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	kind, ok := signalByName[name]
	if !ok {
		return fmt.Errorf("unknown signal kind %q", name)
	}
	*k = kind
	return nil
}

// Operator enumerates leaf comparison operators.
type Operator int

const (
	OpEq Operator = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpContains
	OpNotContains
)

var operatorNames = map[Operator]string{
	OpEq:          "=",
	OpNeq:         "!=",
	OpGt:          ">",
	OpGte:         ">=",
	OpLt:          "<",
	OpLte:         "<=",
	OpContains:    "contains",
	OpNotContains: "not_contains",
}

var operatorByName = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorNames))
	for k, v := range operatorNames {
		m[v] = k
	}
	return m
}()

// String returns the wire form of the operator.
func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// IsTextual reports whether the operator compares strings.
func (o Operator) IsTextual() bool {
	return o == OpContains || o == OpNotContains
}

// MarshalJSON encodes the operator as its wire name.
func (o Operator) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON decodes an operator from its wire name.
func (o *Operator) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	op, ok := operatorByName[name]
	if !ok {
		return fmt.Errorf("unknown operator %q", name)
	}
	*o = op
	return nil
}

// LogicOp enumerates composite combinators.
type LogicOp int

const (
	LogicAnd LogicOp = iota
	LogicOr
	LogicNot
)

var logicNames = map[LogicOp]string{
	LogicAnd: "and",
	LogicOr:  "or",
	LogicNot: "not",
}

var logicByName = func() map[string]LogicOp {
	m := make(map[string]LogicOp, len(logicNames))
	for k, v := range logicNames {
		m[v] = k
	}
	return m
}()

// String returns the wire name of the combinator.
func (l LogicOp) String() string {
	if name, ok := logicNames[l]; ok {
		return name
	}
	return fmt.Sprintf("logic(%d)", int(l))
}

// MarshalJSON encodes the combinator as its wire name.
func (l LogicOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a combinator from its wire name.
func (l *LogicOp) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	op, ok := logicByName[name]
	if !ok {
		return fmt.Errorf("unknown logic op %q", name)
	}
	*l = op
	return nil
}

// Leaf is a single comparison against one signal for one team.
type Leaf struct {
	Signal SignalKind `json:"signal"`
	Team   string     `json:"team"`
	Op     Operator   `json:"op"`
	Value  float64    `json:"value,omitempty"`
	Text   string     `json:"text,omitempty"`
}

// Composite combines child conditions with a boolean operator.
type Composite struct {
	Logic    LogicOp         `json:"logic"`
	Children []ConditionNode `json:"children"`
}

// ConditionNode is one node of a rule's boolean expression tree. Exactly
// one of Leaf or Composite is set; trees are built once at rule-load time
// and read-only afterwards.
type ConditionNode struct {
	Leaf      *Leaf      `json:"leaf,omitempty"`
	Composite *Composite `json:"composite,omitempty"`
}

// Validate checks the tree shape: a single populated variant per node, a
// bounded depth, known enum values, and single-child NOT nodes. NOT over
// more than one child is rejected outright rather than silently negating
// only the first.
func (n ConditionNode) Validate() error {
	return n.validate(0)
}

func (n ConditionNode) validate(depth int) error {
	if depth > MaxTreeDepth {
		return fmt.Errorf("condition tree exceeds max depth %d", MaxTreeDepth)
	}
	switch {
	case n.Leaf != nil && n.Composite != nil:
		return fmt.Errorf("condition node has both leaf and composite set")
	case n.Leaf != nil:
		return n.Leaf.validate()
	case n.Composite != nil:
		c := n.Composite
		if _, ok := logicNames[c.Logic]; !ok {
			return fmt.Errorf("unknown logic op %d", int(c.Logic))
		}
		if len(c.Children) == 0 {
			return fmt.Errorf("%s node has no children", c.Logic)
		}
		if c.Logic == LogicNot && len(c.Children) != 1 {
			return fmt.Errorf("not node must have exactly one child, got %d", len(c.Children))
		}
		for i, child := range c.Children {
			if err := child.validate(depth + 1); err != nil {
				return fmt.Errorf("child %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("condition node has neither leaf nor composite set")
	}
}

func (l Leaf) validate() error {
	if _, ok := signalNames[l.Signal]; !ok {
		return fmt.Errorf("unknown signal kind %d", int(l.Signal))
	}
	if _, ok := operatorNames[l.Op]; !ok {
		return fmt.Errorf("unknown operator %d", int(l.Op))
	}
	if l.Team == "" {
		return fmt.Errorf("leaf condition requires a target team")
	}
	if l.Op.IsTextual() && l.Text == "" {
		return fmt.Errorf("%s operator requires a text value", l.Op)
	}
	return nil
}

// TimeWindow is an inclusive range of match minutes during which a rule
// may fire.
type TimeWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Contains reports whether the elapsed minute falls inside the window.
func (w TimeWindow) Contains(minute int) bool {
	return minute >= w.StartMinute && minute <= w.EndMinute
}

// SequenceRule requires every trigger condition to become true at least
// once within a rolling time budget.
type SequenceRule struct {
	Triggers  []Leaf        `json:"triggers"`
	TimeLimit time.Duration `json:"-"`

	// TimeLimitSec is the persisted form of TimeLimit.
	TimeLimitSec int `json:"time_limit_sec"`
}

// Validate checks trigger shape and the time budget.
func (s SequenceRule) Validate() error {
	if len(s.Triggers) == 0 {
		return fmt.Errorf("sequence has no triggers")
	}
	if s.TimeLimit <= 0 {
		return fmt.Errorf("sequence time limit must be positive")
	}
	for i, trig := range s.Triggers {
		if err := trig.validate(); err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}
	}
	return nil
}

// AlertRule is one user-defined alert: a condition tree, optional time
// windows and sequences, and a notification target. Rules are immutable
// for the duration of a poll cycle.
type AlertRule struct {
	ID        int64
	Name      string
	UserID    string
	Phone     string
	Root      ConditionNode
	Windows   []TimeWindow
	Sequences []SequenceRule
}

// Validate checks the rule's tree, windows, and sequences.
func (r AlertRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule %d has no name", r.ID)
	}
	if err := r.Root.Validate(); err != nil {
		return fmt.Errorf("rule %q: %w", r.Name, err)
	}
	for i, w := range r.Windows {
		if w.StartMinute < 0 || w.EndMinute < w.StartMinute {
			return fmt.Errorf("rule %q: window %d is inverted", r.Name, i)
		}
	}
	for i, seq := range r.Sequences {
		if err := seq.Validate(); err != nil {
			return fmt.Errorf("rule %q: sequence %d: %w", r.Name, i, err)
		}
	}
	return nil
}

// InAnyWindow reports whether the elapsed minute passes the rule's time
// gate. Rules without windows are always in range.
func (r AlertRule) InAnyWindow(minute int) bool {
	if len(r.Windows) == 0 {
		return true
	}
	for _, w := range r.Windows {
		if w.Contains(minute) {
			return true
		}
	}
	return false
}
