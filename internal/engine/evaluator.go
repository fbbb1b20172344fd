package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"match-alerts/internal/domain"
)

// Evaluator resolves rule condition trees against a snapshot and its
// derived signals. Evaluation is fail-closed: a leaf that cannot be
// resolved is logged and treated as false, never as an error.
type Evaluator struct {
	logger zerolog.Logger
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(logger zerolog.Logger) *Evaluator {
	return &Evaluator{logger: logger.With().Str("component", "evaluator").Logger()}
}

// Evaluate checks a rule against one snapshot. The time-window gate runs
// first; a snapshot outside every window short-circuits to (false, "")
// without touching the tree. Sequence gating is applied by the caller,
// which owns the SequenceTracker.
func (e *Evaluator) Evaluate(rule domain.AlertRule, snap domain.MatchSnapshot, sig domain.DerivedSignals) (bool, string) {
	if !rule.InAnyWindow(snap.Elapsed) {
		return false, ""
	}
	return e.evalNode(rule.Root, snap, sig)
}

func (e *Evaluator) evalNode(node domain.ConditionNode, snap domain.MatchSnapshot, sig domain.DerivedSignals) (bool, string) {
	switch {
	case node.Leaf != nil:
		ok, msg, err := EvalLeaf(*node.Leaf, snap, sig)
		if err != nil {
			e.logger.Warn().Err(err).
				Int64("fixture_id", snap.FixtureID).
				Str("signal", node.Leaf.Signal.String()).
				Msg("leaf resolution failed, treating as false")
			return false, ""
		}
		return ok, msg
	case node.Composite != nil:
		return e.evalComposite(*node.Composite, snap, sig)
	default:
		// Rejected at load time; kept fail-closed anyway.
		e.logger.Warn().Int64("fixture_id", snap.FixtureID).Msg("empty condition node, treating as false")
		return false, ""
	}
}

func (e *Evaluator) evalComposite(c domain.Composite, snap domain.MatchSnapshot, sig domain.DerivedSignals) (bool, string) {
	switch c.Logic {
	case domain.LogicAnd:
		msgs := make([]string, 0, len(c.Children))
		for _, child := range c.Children {
			ok, msg := e.evalNode(child, snap, sig)
			if !ok {
				return false, ""
			}
			if msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return true, strings.Join(msgs, " AND ")
	case domain.LogicOr:
		var msgs []string
		fired := false
		for _, child := range c.Children {
			ok, msg := e.evalNode(child, snap, sig)
			if ok {
				fired = true
				if msg != "" {
					msgs = append(msgs, msg)
				}
			}
		}
		if !fired {
			return false, ""
		}
		return true, strings.Join(msgs, " OR ")
	case domain.LogicNot:
		// Validation guarantees a single child.
		ok, _ := e.evalNode(c.Children[0], snap, sig)
		if ok {
			return false, ""
		}
		return true, "NOT (" + describeNode(c.Children[0], snap) + ")"
	default:
		e.logger.Warn().Str("logic", c.Logic.String()).Msg("unknown logic op, treating as false")
		return false, ""
	}
}

// EvalLeaf resolves and compares one leaf condition. Sequence triggers
// reuse this path so leaf semantics stay identical everywhere.
func EvalLeaf(leaf domain.Leaf, snap domain.MatchSnapshot, sig domain.DerivedSignals) (bool, string, error) {
	side := ResolveTeam(leaf.Team, snap)
	name := snap.TeamName(side)

	if leaf.Op.IsTextual() {
		contains := strings.Contains(strings.ToLower(name), strings.ToLower(leaf.Text))
		ok := contains
		if leaf.Op == domain.OpNotContains {
			ok = !contains
		}
		return ok, fmt.Sprintf("%s %s %q", name, leaf.Op, leaf.Text), nil
	}

	actual, err := resolveSignal(leaf.Signal, side, snap, sig)
	if err != nil {
		return false, "", err
	}

	ok, err := compare(actual, leaf.Op, leaf.Value)
	if err != nil {
		return false, "", err
	}
	msg := fmt.Sprintf("%s %s: %s %s %s", name, leaf.Signal.Label(), formatValue(actual), leaf.Op, formatValue(leaf.Value))
	return ok, msg, nil
}

// ResolveTeam maps a leaf's target-team string to a side by
// case-insensitive substring match against the home then away name. A
// string matching neither falls back to the away side.
func ResolveTeam(target string, snap domain.MatchSnapshot) domain.Side {
	t := strings.ToLower(strings.TrimSpace(target))
	if t != "" && strings.Contains(strings.ToLower(snap.HomeTeam), t) {
		return domain.SideHome
	}
	return domain.SideAway
}

func resolveSignal(kind domain.SignalKind, side domain.Side, snap domain.MatchSnapshot, sig domain.DerivedSignals) (float64, error) {
	switch kind {
	case domain.SignalGoals:
		return float64(snap.Score(side)), nil
	case domain.SignalScoreDiff:
		return float64(snap.ScoreDiff(side)), nil
	case domain.SignalTimeElapsed:
		return float64(snap.Elapsed), nil
	case domain.SignalXG:
		return sig.XG(side), nil
	case domain.SignalMomentum:
		return sig.Momentum(side), nil
	case domain.SignalPressure:
		return sig.Pressure(side), nil
	case domain.SignalWinProbability:
		return sig.WinProb(side), nil
	default:
		return 0, fmt.Errorf("unknown signal kind %s", kind)
	}
}

func compare(actual float64, op domain.Operator, target float64) (bool, error) {
	switch op {
	case domain.OpEq:
		return actual == target, nil
	case domain.OpNeq:
		return actual != target, nil
	case domain.OpGt:
		return actual > target, nil
	case domain.OpGte:
		return actual >= target, nil
	case domain.OpLt:
		return actual < target, nil
	case domain.OpLte:
		return actual <= target, nil
	default:
		return false, fmt.Errorf("operator %s not applicable to numeric signal", op)
	}
}

// formatValue renders numbers with at most two decimals, trimming
// trailing zeros so whole counts read as integers.
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

// describeNode renders a static description of a condition, used for NOT
// messages where the child produced no message of its own.
func describeNode(node domain.ConditionNode, snap domain.MatchSnapshot) string {
	switch {
	case node.Leaf != nil:
		leaf := node.Leaf
		name := snap.TeamName(ResolveTeam(leaf.Team, snap))
		if leaf.Op.IsTextual() {
			return fmt.Sprintf("%s %s %q", name, leaf.Op, leaf.Text)
		}
		return fmt.Sprintf("%s %s %s %s", name, leaf.Signal.Label(), leaf.Op, formatValue(leaf.Value))
	case node.Composite != nil:
		parts := make([]string, 0, len(node.Composite.Children))
		for _, child := range node.Composite.Children {
			parts = append(parts, describeNode(child, snap))
		}
		return strings.Join(parts, " "+strings.ToUpper(node.Composite.Logic.String())+" ")
	default:
		return ""
	}
}
