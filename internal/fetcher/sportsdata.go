package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"match-alerts/internal/domain"
)

const (
	liveFixturesPath = "/fixtures/live"
	fixtureStatsPath = "/fixtures/%d/statistics"
)

// SportsDataOptions parameterise the live-data API client.
type SportsDataOptions struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	UserAgent     string
	RequestsPerS  float64
	Burst         int
	MaxConcurrent int
}

// SportsData fetches live fixtures and per-fixture statistics from the
// upstream sports-data API. Requests share a token-bucket limiter sized
// to the upstream rate budget and a circuit breaker so a flapping
// upstream degrades to whatever was already fetched instead of stalling
// the poll loop.
type SportsData struct {
	opts    SportsDataOptions
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	baseURL string
	logger  zerolog.Logger
}

// NewSportsData constructs the upstream client.
func NewSportsData(opts SportsDataOptions, logger zerolog.Logger) *SportsData {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.RequestsPerS <= 0 {
		opts.RequestsPerS = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RequestsPerS)
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}

	settings := gobreaker.Settings{
		Name:     "sportsdata",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &SportsData{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerS), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger.With().Str("component", "sportsdata_fetcher").Logger(),
	}
}

type liveFixturePayload struct {
	ID     int64  `json:"id"`
	League string `json:"league"`
	Minute int    `json:"minute"`
	Home   struct {
		Name  string `json:"name"`
		Goals int    `json:"goals"`
	} `json:"home"`
	Away struct {
		Name  string `json:"name"`
		Goals int    `json:"goals"`
	} `json:"away"`
}

type teamStatsPayload struct {
	Shots         int      `json:"shots"`
	ShotsOnTarget int      `json:"shots_on_target"`
	Possession    *float64 `json:"possession"`
	Corners       int      `json:"corners"`
	Fouls         int      `json:"fouls"`
	YellowCards   int      `json:"yellow_cards"`
	RedCards      int      `json:"red_cards"`
}

type fixtureStatsPayload struct {
	Home teamStatsPayload `json:"home"`
	Away teamStatsPayload `json:"away"`
}

// FetchCurrentMatches lists the live fixtures, then fans out over a
// bounded worker pool to attach per-fixture statistics. A failed stats
// fetch degrades that fixture to safe defaults rather than dropping it
// or failing the cycle.
func (s *SportsData) FetchCurrentMatches(ctx context.Context) ([]domain.MatchSnapshot, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("sportsdata base URL not configured")
	}

	var fixtures struct {
		Fixtures []liveFixturePayload `json:"fixtures"`
	}
	if err := s.getJSON(ctx, s.baseURL+liveFixturesPath, &fixtures); err != nil {
		return nil, fmt.Errorf("fetch live fixtures: %w", err)
	}

	fetchedAt := time.Now().UTC()
	snapshots := make([]domain.MatchSnapshot, len(fixtures.Fixtures))

	sem := make(chan struct{}, s.opts.MaxConcurrent)
	var wg sync.WaitGroup
	for i, fx := range fixtures.Fixtures {
		wg.Add(1)
		go func(i int, fx liveFixturePayload) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			snapshots[i] = s.buildSnapshot(ctx, fx, fetchedAt)
		}(i, fx)
	}
	wg.Wait()

	return snapshots, nil
}

func (s *SportsData) buildSnapshot(ctx context.Context, fx liveFixturePayload, fetchedAt time.Time) domain.MatchSnapshot {
	snap := domain.MatchSnapshot{
		FixtureID: fx.ID,
		League:    fx.League,
		HomeTeam:  fx.Home.Name,
		AwayTeam:  fx.Away.Name,
		HomeScore: fx.Home.Goals,
		AwayScore: fx.Away.Goals,
		Elapsed:   fx.Minute,
		Home:      defaultStats(),
		Away:      defaultStats(),
		FetchedAt: fetchedAt,
	}

	var stats fixtureStatsPayload
	url := s.baseURL + fmt.Sprintf(fixtureStatsPath, fx.ID)
	if err := s.getJSON(ctx, url, &stats); err != nil {
		s.logger.Warn().Err(err).Int64("fixture_id", fx.ID).Msg("statistics unavailable, using defaults")
		return snap
	}

	snap.Home = toTeamStats(stats.Home)
	snap.Away = toTeamStats(stats.Away)
	return snap
}

func (s *SportsData) getJSON(ctx context.Context, url string, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := s.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if s.opts.APIKey != "" {
			req.Header.Set("X-API-Key", s.opts.APIKey)
		}
		if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
			req.Header.Set("User-Agent", ua)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

// defaultStats resolves missing raw stats to neutral values: possession
// splits evenly, counters start at zero.
func defaultStats() domain.TeamStats {
	return domain.TeamStats{Possession: 50}
}

func toTeamStats(p teamStatsPayload) domain.TeamStats {
	possession := 50.0
	if p.Possession != nil {
		possession = *p.Possession
	}
	return domain.TeamStats{
		Shots:         p.Shots,
		ShotsOnTarget: p.ShotsOnTarget,
		Possession:    possession,
		Corners:       p.Corners,
		Fouls:         p.Fouls,
		YellowCards:   p.YellowCards,
		RedCards:      p.RedCards,
	}
}

var _ SnapshotSource = (*SportsData)(nil)
