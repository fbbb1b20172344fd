package domain

import "time"

// Side identifies one of the two teams in a fixture.
type Side int

const (
	SideHome Side = iota
	SideAway
)

// String returns the lowercase side label.
func (s Side) String() string {
	if s == SideHome {
		return "home"
	}
	return "away"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideHome {
		return SideAway
	}
	return SideHome
}

// TeamStats carries the raw per-team statistics of one snapshot.
type TeamStats struct {
	Shots         int
	ShotsOnTarget int
	Possession    float64
	Corners       int
	Fouls         int
	YellowCards   int
	RedCards      int
}

// MatchSnapshot is one immutable observation of a live fixture. A new
// snapshot supersedes the previous one each poll cycle; snapshots are
// never mutated in place.
type MatchSnapshot struct {
	FixtureID int64
	League    string
	HomeTeam  string
	AwayTeam  string
	HomeScore int
	AwayScore int
	Elapsed   int
	Home      TeamStats
	Away      TeamStats
	FetchedAt time.Time
}

// TeamName returns the display name for a side.
func (m MatchSnapshot) TeamName(side Side) string {
	if side == SideHome {
		return m.HomeTeam
	}
	return m.AwayTeam
}

// Score returns the goal count for a side.
func (m MatchSnapshot) Score(side Side) int {
	if side == SideHome {
		return m.HomeScore
	}
	return m.AwayScore
}

// Stats returns the raw stats for a side.
func (m MatchSnapshot) Stats(side Side) TeamStats {
	if side == SideHome {
		return m.Home
	}
	return m.Away
}

// ScoreDiff returns the signed goal difference from the side's perspective.
func (m MatchSnapshot) ScoreDiff(side Side) int {
	if side == SideHome {
		return m.HomeScore - m.AwayScore
	}
	return m.AwayScore - m.HomeScore
}

// Leader returns the currently leading side and whether the score is tied.
func (m MatchSnapshot) Leader() (Side, bool) {
	switch {
	case m.HomeScore > m.AwayScore:
		return SideHome, false
	case m.AwayScore > m.HomeScore:
		return SideAway, false
	default:
		return SideHome, true
	}
}
