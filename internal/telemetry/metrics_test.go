package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CyclesTotal.Inc()
	m.AlertsFiredTotal.Inc()
	m.AlertsFiredTotal.Inc()
	m.MatchesObserved.Set(7)

	if got := testutil.ToFloat64(m.CyclesTotal); got != 1 {
		t.Fatalf("cycles counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AlertsFiredTotal); got != 2 {
		t.Fatalf("alerts counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MatchesObserved); got != 7 {
		t.Fatalf("matches gauge = %v, want 7", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 6 {
		t.Fatalf("expected 6 metric families, got %d", len(families))
	}
}

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.CyclesTotal.Inc()
	if got := testutil.ToFloat64(b.CyclesTotal); got != 0 {
		t.Fatalf("registries must not share state, got %v", got)
	}
}
