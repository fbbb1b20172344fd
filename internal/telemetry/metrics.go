package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics aggregates the service counters. All counters are registered
// on the supplied registerer so tests can use an isolated registry.
type Metrics struct {
	CyclesTotal           prometheus.Counter
	CycleErrorsTotal      prometheus.Counter
	AlertsFiredTotal      prometheus.Counter
	DispatchFailuresTotal prometheus.Counter
	PatternsDetectedTotal prometheus.Counter
	MatchesObserved       prometheus.Gauge
}

// NewMetrics registers and returns the service counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchwatcher_cycles_total",
			Help: "Completed poll cycles.",
		}),
		CycleErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchwatcher_cycle_errors_total",
			Help: "Poll cycles that ended with an error.",
		}),
		AlertsFiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchwatcher_alerts_fired_total",
			Help: "Alert rules fired (at most once per rule and fixture).",
		}),
		DispatchFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchwatcher_dispatch_failures_total",
			Help: "Notification dispatch attempts that failed.",
		}),
		PatternsDetectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matchwatcher_patterns_detected_total",
			Help: "Game patterns detected.",
		}),
		MatchesObserved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matchwatcher_matches_observed",
			Help: "Live matches seen in the most recent cycle.",
		}),
	}
}

// Serve exposes the registry on /metrics until ctx is cancelled. It is
// optional plumbing: an empty addr disables the listener.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger zerolog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	log := logger.With().Str("component", "telemetry").Logger()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("metrics listener started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics listener failed")
		}
	}()
}
