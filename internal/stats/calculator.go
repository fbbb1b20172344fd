package stats

import (
	"math"
	"strings"

	"match-alerts/internal/domain"
)

const (
	probFloor = 0.01
	probCeil  = 0.95
)

// leagueWeights scales the pressure index by competition importance.
// Unlisted leagues use weight 1.0.
var leagueWeights = map[string]float64{
	"champions league": 1.2,
	"europa league":    1.1,
	"premier league":   1.1,
	"la liga":          1.1,
	"serie a":          1.05,
	"bundesliga":       1.05,
	"ligue 1":          1.0,
}

// Calculator derives analytical signals from raw match snapshots. It is
// stateless; Derive is a pure function of its input.
type Calculator struct{}

// NewCalculator constructs a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Derive computes the full signal set for one snapshot. It never fails:
// degenerate inputs resolve to well-defined values rather than errors.
func (c *Calculator) Derive(snap domain.MatchSnapshot) domain.DerivedSignals {
	sig := domain.DerivedSignals{
		XGHome:       expectedGoals(snap.Home),
		XGAway:       expectedGoals(snap.Away),
		MomentumHome: momentum(snap, domain.SideHome),
		MomentumAway: momentum(snap, domain.SideAway),
		PressureHome: c.pressure(snap, domain.SideHome),
		PressureAway: c.pressure(snap, domain.SideAway),
	}
	sig.WinProbHome, sig.WinProbAway, sig.DrawProb = winProbabilities(snap, sig.XGHome, sig.XGAway)
	return sig
}

// LeagueWeight returns the pressure scaling factor for a league name.
func (c *Calculator) LeagueWeight(league string) float64 {
	if w, ok := leagueWeights[strings.ToLower(strings.TrimSpace(league))]; ok {
		return w
	}
	return 1.0
}

func expectedGoals(stats domain.TeamStats) float64 {
	xg := float64(stats.ShotsOnTarget)*0.25 + (stats.Possession-50)*0.02
	if xg < 0 {
		return 0
	}
	return xg
}

func momentum(snap domain.MatchSnapshot, side domain.Side) float64 {
	stats := snap.Stats(side)
	base := float64(snap.Score(side))*10 + (stats.Possession-50)*0.5
	m := base * math.Min(2.0, float64(snap.Elapsed)/45)

	leader, tied := snap.Leader()
	if !tied && leader == side {
		m += float64(snap.ScoreDiff(side)) * 5
	}
	return m
}

func (c *Calculator) pressure(snap domain.MatchSnapshot, side domain.Side) float64 {
	progress := math.Min(1, float64(snap.Elapsed)/90)

	var p float64
	leader, tied := snap.Leader()
	switch {
	case tied:
		p = 0.8
	case leader == side:
		p = 0.3 + 0.4*progress
	default:
		p = 0.9 + 0.1*progress
	}

	p *= c.LeagueWeight(snap.League)
	if p > 1.0 {
		p = 1.0
	}
	return p
}

func winProbabilities(snap domain.MatchSnapshot, xgHome, xgAway float64) (home, away, draw float64) {
	leader, tied := snap.Leader()
	switch {
	case tied:
		home, away, draw = 0.3, 0.3, 0.4
	case leader == domain.SideHome:
		home, away, draw = 0.7, 0.1, 0.2
	default:
		home, away, draw = 0.1, 0.7, 0.2
	}

	shift := 0.1 * (xgHome - xgAway)
	home += shift
	away -= shift

	// Near the final whistle the current scoreline dominates.
	timeFactor := 0.3
	if snap.Elapsed >= 80 {
		timeFactor = 0.8
	}
	var indHome, indAway, indDraw float64
	switch {
	case tied:
		indDraw = 1
	case leader == domain.SideHome:
		indHome = 1
	default:
		indAway = 1
	}
	home = (1-timeFactor)*home + timeFactor*indHome
	away = (1-timeFactor)*away + timeFactor*indAway
	draw = (1-timeFactor)*draw + timeFactor*indDraw

	home = clampProb(home)
	away = clampProb(away)
	draw = clampProb(draw)

	total := home + away + draw
	return home / total, away / total, draw / total
}

func clampProb(p float64) float64 {
	switch {
	case p < probFloor:
		return probFloor
	case p > probCeil:
		return probCeil
	default:
		return p
	}
}
