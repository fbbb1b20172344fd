package stats

import (
	"math"
	"testing"
	"time"

	"match-alerts/internal/domain"
)

func snapshot() domain.MatchSnapshot {
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

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExpectedGoals(t *testing.T) {
	sig := NewCalculator().Derive(snapshot())

	// 6*0.25 + (58-50)*0.02
	if !almostEqual(sig.XGHome, 1.66) {
		t.Fatalf("home xG = %v, want 1.66", sig.XGHome)
	}
	// 2*0.25 + (42-50)*0.02
	if !almostEqual(sig.XGAway, 0.34) {
		t.Fatalf("away xG = %v, want 0.34", sig.XGAway)
	}
}

func TestExpectedGoalsFloorsAtZero(t *testing.T) {
	snap := snapshot()
	snap.Home = domain.TeamStats{ShotsOnTarget: 0, Possession: 20}

	sig := NewCalculator().Derive(snap)
	if sig.XGHome != 0 {
		t.Fatalf("xG should floor at zero, got %v", sig.XGHome)
	}
}

func TestMomentum(t *testing.T) {
	snap := snapshot()
	snap.HomeScore, snap.AwayScore = 1, 0
	snap.Elapsed = 45
	snap.Home.Possession = 60

	sig := NewCalculator().Derive(snap)

	// base (10 + 5) at factor 1, plus leader bonus 1*5.
	if !almostEqual(sig.MomentumHome, 20) {
		t.Fatalf("home momentum = %v, want 20", sig.MomentumHome)
	}
}

func TestMomentumTimeFactorCapped(t *testing.T) {
	snap := snapshot()
	snap.HomeScore, snap.AwayScore = 1, 1
	snap.Elapsed = 120
	snap.Home.Possession = 60

	sig := NewCalculator().Derive(snap)

	// Factor caps at 2.0 even in extra time: (10 + 5) * 2, no leader bonus.
	if !almostEqual(sig.MomentumHome, 30) {
		t.Fatalf("home momentum = %v, want 30", sig.MomentumHome)
	}
}

func TestPressureTied(t *testing.T) {
	snap := snapshot()
	snap.HomeScore, snap.AwayScore = 1, 1
	snap.League = "Friendly Cup"

	sig := NewCalculator().Derive(snap)
	if !almostEqual(sig.PressureHome, 0.8) || !almostEqual(sig.PressureAway, 0.8) {
		t.Fatalf("tied pressure = %v / %v, want 0.8 both sides", sig.PressureHome, sig.PressureAway)
	}
}

func TestPressureLeaderTrailer(t *testing.T) {
	snap := snapshot()
	snap.League = "Friendly Cup"
	snap.Elapsed = 90

	sig := NewCalculator().Derive(snap)

	// Leading side winds down, trailing side chases.
	if !almostEqual(sig.PressureHome, 0.7) {
		t.Fatalf("leading pressure = %v, want 0.7", sig.PressureHome)
	}
	if !almostEqual(sig.PressureAway, 1.0) {
		t.Fatalf("trailing pressure = %v, want 1.0", sig.PressureAway)
	}
}

func TestPressureLeagueWeightAndCap(t *testing.T) {
	snap := snapshot()
	snap.HomeScore, snap.AwayScore = 1, 1
	snap.League = "Champions League"

	sig := NewCalculator().Derive(snap)
	if !almostEqual(sig.PressureHome, 0.96) {
		t.Fatalf("weighted tied pressure = %v, want 0.96", sig.PressureHome)
	}

	snap.HomeScore, snap.AwayScore = 0, 1
	sig = NewCalculator().Derive(snap)
	// Trailing home at minute 60: (0.9 + 0.1*60/90) * 1.2 exceeds the cap.
	if !almostEqual(sig.PressureHome, 1.0) {
		t.Fatalf("pressure should cap at 1.0, got %v", sig.PressureHome)
	}
}

func TestLeagueWeightLookup(t *testing.T) {
	c := NewCalculator()
	if w := c.LeagueWeight("  Serie A "); !almostEqual(w, 1.05) {
		t.Fatalf("serie a weight = %v, want 1.05", w)
	}
	if w := c.LeagueWeight("Conference North"); !almostEqual(w, 1.0) {
		t.Fatalf("unknown league weight = %v, want 1.0", w)
	}
}

func TestWinProbabilitiesNormalised(t *testing.T) {
	cases := []domain.MatchSnapshot{
		snapshot(),
		func() domain.MatchSnapshot { s := snapshot(); s.HomeScore, s.AwayScore = 0, 0; return s }(),
		func() domain.MatchSnapshot { s := snapshot(); s.HomeScore, s.AwayScore = 0, 3; s.Elapsed = 88; return s }(),
		func() domain.MatchSnapshot {
			s := snapshot()
			s.Home = domain.TeamStats{ShotsOnTarget: 20, Possession: 90}
			s.Away = domain.TeamStats{Possession: 10}
			return s
		}(),
	}

	for i, snap := range cases {
		sig := NewCalculator().Derive(snap)
		total := sig.WinProbHome + sig.WinProbAway + sig.DrawProb
		if !almostEqual(total, 1.0) {
			t.Fatalf("case %d: probabilities sum to %v, want 1", i, total)
		}
		for _, p := range []float64{sig.WinProbHome, sig.WinProbAway, sig.DrawProb} {
			if p <= 0 || p >= 1 {
				t.Fatalf("case %d: probability %v out of (0,1)", i, p)
			}
		}
	}
}

func TestWinProbabilityLateLeaderDominates(t *testing.T) {
	early := snapshot()
	early.Elapsed = 60
	late := snapshot()
	late.Elapsed = 85

	c := NewCalculator()
	if c.Derive(late).WinProbHome <= c.Derive(early).WinProbHome {
		t.Fatalf("late leader probability %v should exceed early %v",
			c.Derive(late).WinProbHome, c.Derive(early).WinProbHome)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	snap := snapshot()
	c := NewCalculator()
	if c.Derive(snap) != c.Derive(snap) {
		t.Fatal("Derive must be a pure function of the snapshot")
	}
}
