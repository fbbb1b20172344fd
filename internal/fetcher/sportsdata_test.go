package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testOptions(baseURL string) SportsDataOptions {
	return SportsDataOptions{
		BaseURL:      baseURL,
		APIKey:       "test-key",
		Timeout:      time.Second,
		RequestsPerS: 1000,
		Burst:        1000,
	}
}

const liveFixturesBody = `{"fixtures":[{
	"id": 1001,
	"league": "Premier League",
	"minute": 60,
	"home": {"name": "Arsenal", "goals": 2},
	"away": {"name": "Chelsea", "goals": 0}
}]}`

const fixtureStatsBody = `{
	"home": {"shots": 11, "shots_on_target": 6, "possession": 58, "corners": 5, "fouls": 7, "yellow_cards": 1, "red_cards": 0},
	"away": {"shots": 4, "shots_on_target": 2, "possession": 42, "corners": 2, "fouls": 12, "yellow_cards": 3, "red_cards": 1}
}`

func TestFetchCurrentMatches(t *testing.T) {
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-API-Key")
		switch r.URL.Path {
		case "/fixtures/live":
			_, _ = w.Write([]byte(liveFixturesBody))
		case "/fixtures/1001/statistics":
			_, _ = w.Write([]byte(fixtureStatsBody))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	source := NewSportsData(testOptions(srv.URL), noopLogger())
	snapshots, err := source.FetchCurrentMatches(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrentMatches failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}

	snap := snapshots[0]
	if snap.FixtureID != 1001 || snap.HomeTeam != "Arsenal" || snap.AwayTeam != "Chelsea" {
		t.Fatalf("fixture fields wrong: %+v", snap)
	}
	if snap.HomeScore != 2 || snap.AwayScore != 0 || snap.Elapsed != 60 {
		t.Fatalf("score fields wrong: %+v", snap)
	}
	if snap.Home.ShotsOnTarget != 6 || snap.Home.Possession != 58 {
		t.Fatalf("home stats wrong: %+v", snap.Home)
	}
	if snap.Away.YellowCards != 3 || snap.Away.RedCards != 1 {
		t.Fatalf("away cards wrong: %+v", snap.Away)
	}
	if snap.FetchedAt.IsZero() {
		t.Fatal("FetchedAt should be stamped")
	}
	if apiKey != "test-key" {
		t.Fatalf("API key header = %q", apiKey)
	}
}

func TestFetchStatsFailureDegradesToDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fixtures/live" {
			_, _ = w.Write([]byte(liveFixturesBody))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	source := NewSportsData(testOptions(srv.URL), noopLogger())
	snapshots, err := source.FetchCurrentMatches(context.Background())
	if err != nil {
		t.Fatalf("stats failure must not fail the fetch: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}

	snap := snapshots[0]
	if snap.HomeScore != 2 || snap.Elapsed != 60 {
		t.Fatalf("fixture fields should survive: %+v", snap)
	}
	if snap.Home.Possession != 50 || snap.Away.Possession != 50 {
		t.Fatalf("missing stats should default to an even possession split: %+v", snap)
	}
}

func TestFetchLiveFixturesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	source := NewSportsData(testOptions(srv.URL), noopLogger())
	if _, err := source.FetchCurrentMatches(context.Background()); err == nil {
		t.Fatal("live fixtures failure should fail the fetch")
	}
}

func TestFetchMissingBaseURL(t *testing.T) {
	source := NewSportsData(SportsDataOptions{}, noopLogger())
	if _, err := source.FetchCurrentMatches(context.Background()); err == nil {
		t.Fatal("missing base URL should error")
	}
}

func TestMissingPossessionDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fixtures/live" {
			_, _ = w.Write([]byte(liveFixturesBody))
			return
		}
		_, _ = w.Write([]byte(`{"home": {"shots_on_target": 3}, "away": {}}`))
	}))
	defer srv.Close()

	source := NewSportsData(testOptions(srv.URL), noopLogger())
	snapshots, err := source.FetchCurrentMatches(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrentMatches failed: %v", err)
	}
	if snapshots[0].Home.Possession != 50 {
		t.Fatalf("absent possession should default to 50, got %v", snapshots[0].Home.Possession)
	}
	if snapshots[0].Home.ShotsOnTarget != 3 {
		t.Fatalf("present fields should parse, got %+v", snapshots[0].Home)
	}
}
