package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"match-alerts/internal/domain"
)

func testSnapshot() domain.MatchSnapshot {
	return domain.MatchSnapshot{
		FixtureID: 1001,
		League:    "Premier League",
		HomeTeam:  "Arsenal",
		AwayTeam:  "Chelsea",
		HomeScore: 2,
		AwayScore: 0,
		Elapsed:   60,
		Home:      domain.TeamStats{ShotsOnTarget: 6, Possession: 58},
		Away:      domain.TeamStats{ShotsOnTarget: 2, Possession: 42},
		FetchedAt: time.Now().UTC(),
	}
}

func testSignals() domain.DerivedSignals {
	return domain.DerivedSignals{
		XGHome: 1.66, XGAway: 0.34,
		MomentumHome: 40, MomentumAway: -10,
		PressureHome: 0.57, PressureAway: 1.0,
		WinProbHome: 0.85, WinProbAway: 0.05, DrawProb: 0.1,
	}
}

func leafNode(leaf domain.Leaf) domain.ConditionNode {
	return domain.ConditionNode{Leaf: &leaf}
}

func andNode(children ...domain.ConditionNode) domain.ConditionNode {
	return domain.ConditionNode{Composite: &domain.Composite{Logic: domain.LogicAnd, Children: children}}
}

func TestEvaluateAndMessage(t *testing.T) {
	rule := domain.AlertRule{
		ID:   1,
		Name: "two up with chances",
		Root: andNode(
			leafNode(domain.Leaf{Signal: domain.SignalGoals, Team: "Arsenal", Op: domain.OpGte, Value: 2}),
			leafNode(domain.Leaf{Signal: domain.SignalXG, Team: "Arsenal", Op: domain.OpGt, Value: 1.5}),
		),
	}

	fired, msg := NewEvaluator(zerolog.Nop()).Evaluate(rule, testSnapshot(), testSignals())
	if !fired {
		t.Fatal("rule should fire")
	}
	want := "Arsenal goals: 2 >= 2 AND Arsenal xG: 1.66 > 1.5"
	if msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}
}

func TestEvaluateAndFailsWithoutMessage(t *testing.T) {
	rule := domain.AlertRule{
		Root: andNode(
			leafNode(domain.Leaf{Signal: domain.SignalGoals, Team: "Arsenal", Op: domain.OpGte, Value: 2}),
			leafNode(domain.Leaf{Signal: domain.SignalGoals, Team: "Chelsea", Op: domain.OpGte, Value: 1}),
		),
	}

	fired, msg := NewEvaluator(zerolog.Nop()).Evaluate(rule, testSnapshot(), testSignals())
	if fired {
		t.Fatal("rule should not fire")
	}
	if msg != "" {
		t.Fatalf("failed rule must carry no message, got %q", msg)
	}
}

func TestEvaluateOrJoinsTrueBranchesOnly(t *testing.T) {
	rule := domain.AlertRule{
		Root: domain.ConditionNode{Composite: &domain.Composite{
			Logic: domain.LogicOr,
			Children: []domain.ConditionNode{
				leafNode(domain.Leaf{Signal: domain.SignalGoals, Team: "Chelsea", Op: domain.OpGte, Value: 1}),
				leafNode(domain.Leaf{Signal: domain.SignalScoreDiff, Team: "Arsenal", Op: domain.OpEq, Value: 2}),
				leafNode(domain.Leaf{Signal: domain.SignalPressure, Team: "Chelsea", Op: domain.OpGte, Value: 0.9}),
			},
		}},
	}

	fired, msg := NewEvaluator(zerolog.Nop()).Evaluate(rule, testSnapshot(), testSignals())
	if !fired {
		t.Fatal("rule should fire")
	}
	want := "Arsenal score diff: 2 = 2 OR Chelsea pressure: 1 >= 0.9"
	if msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}
}

func TestEvaluateNot(t *testing.T) {
	rule := domain.AlertRule{
		Root: domain.ConditionNode{Composite: &domain.Composite{
			Logic: domain.LogicNot,
			Children: []domain.ConditionNode{
				leafNode(domain.Leaf{Signal: domain.SignalGoals, Team: "Arsenal", Op: domain.OpGt, Value: 3}),
			},
		}},
	}

	fired, msg := NewEvaluator(zerolog.Nop()).Evaluate(rule, testSnapshot(), testSignals())
	if !fired {
		t.Fatal("NOT over a false child should fire")
	}
	want := "NOT (Arsenal goals > 3)"
	if msg != want {
		t.Fatalf("message = %q, want %q", msg, want)
	}
}

func TestEvaluateNotSuppressesTrueChild(t *testing.T) {
	rule := domain.AlertRule{
		Root: domain.ConditionNode{Composite: &domain.Composite{
			Logic: domain.LogicNot,
			Children: []domain.ConditionNode{
				leafNode(domain.Leaf{Signal: domain.SignalGoals, Team: "Arsenal", Op: domain.OpGte, Value: 2}),
			},
		}},
	}

	if fired, _ := NewEvaluator(zerolog.Nop()).Evaluate(rule, testSnapshot(), testSignals()); fired {
		t.Fatal("NOT over a true child must not fire")
	}
}

func TestEvaluateWindowGate(t *testing.T) {
	rule := domain.AlertRule{
		Root:    leafNode(domain.Leaf{Signal: domain.SignalGoals, Team: "Arsenal", Op: domain.OpGte, Value: 1}),
		Windows: []domain.TimeWindow{{StartMinute: 80, EndMinute: 90}},
	}

	snap := testSnapshot()
	snap.Elapsed = 60
	if fired, msg := NewEvaluator(zerolog.Nop()).Evaluate(rule, snap, testSignals()); fired || msg != "" {
		t.Fatalf("rule outside every window must not fire, got (%v, %q)", fired, msg)
	}

	snap.Elapsed = 80
	if fired, _ := NewEvaluator(zerolog.Nop()).Evaluate(rule, snap, testSignals()); !fired {
		t.Fatal("window bounds are inclusive")
	}
}

func TestEvaluateFailClosedOnUnknownSignal(t *testing.T) {
	rule := domain.AlertRule{
		Root: leafNode(domain.Leaf{Signal: domain.SignalKind(99), Team: "Arsenal", Op: domain.OpGt, Value: 1}),
	}

	if fired, _ := NewEvaluator(zerolog.Nop()).Evaluate(rule, testSnapshot(), testSignals()); fired {
		t.Fatal("unresolvable leaf must evaluate to false, not fire")
	}
}

func TestEvaluateTextualOperators(t *testing.T) {
	snap := testSnapshot()
	sig := testSignals()

	ok, _, err := EvalLeaf(domain.Leaf{Signal: domain.SignalGoals, Team: "Arsenal", Op: domain.OpContains, Text: "arse"}, snap, sig)
	if err != nil || !ok {
		t.Fatalf("contains should match case-insensitively, got (%v, %v)", ok, err)
	}

	ok, _, err = EvalLeaf(domain.Leaf{Signal: domain.SignalGoals, Team: "Chelsea", Op: domain.OpNotContains, Text: "arsenal"}, snap, sig)
	if err != nil || !ok {
		t.Fatalf("not_contains should hold for the away side, got (%v, %v)", ok, err)
	}
}

func TestResolveTeam(t *testing.T) {
	snap := testSnapshot()

	if side := ResolveTeam("arsenal", snap); side != domain.SideHome {
		t.Fatalf("exact home match resolved to %s", side)
	}
	if side := ResolveTeam("ARSE", snap); side != domain.SideHome {
		t.Fatalf("case-insensitive substring resolved to %s", side)
	}
	if side := ResolveTeam("chelsea", snap); side != domain.SideAway {
		t.Fatalf("away match resolved to %s", side)
	}
	// Unmatched names fall back to the away side.
	if side := ResolveTeam("Barcelona", snap); side != domain.SideAway {
		t.Fatalf("fallback resolved to %s", side)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	rule := domain.AlertRule{
		Root: andNode(
			leafNode(domain.Leaf{Signal: domain.SignalTimeElapsed, Team: "Arsenal", Op: domain.OpGte, Value: 45}),
			leafNode(domain.Leaf{Signal: domain.SignalWinProbability, Team: "Arsenal", Op: domain.OpGt, Value: 0.8}),
		),
	}

	e := NewEvaluator(zerolog.Nop())
	snap, sig := testSnapshot(), testSignals()
	firstFired, firstMsg := e.Evaluate(rule, snap, sig)
	for i := 0; i < 5; i++ {
		fired, msg := e.Evaluate(rule, snap, sig)
		if fired != firstFired || msg != firstMsg {
			t.Fatalf("evaluation %d diverged: (%v, %q) vs (%v, %q)", i, fired, msg, firstFired, firstMsg)
		}
	}
}
