package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersAndCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RunsStarted.Inc()
	m.RunsStarted.Inc()
	m.RunsFailed.Inc()
	m.CacheHits.Inc()

	if got := testutil.ToFloat64(m.RunsStarted); got != 2 {
		t.Errorf("RunsStarted = %g, want 2", got)
	}
	if got := testutil.ToFloat64(m.RunsFailed); got != 1 {
		t.Errorf("RunsFailed = %g, want 1", got)
	}
	if got := testutil.ToFloat64(m.CacheHits); got != 1 {
		t.Errorf("CacheHits = %g, want 1", got)
	}

	names, err := testutil.GatherAndCount(reg,
		"streamscribe_runs_started_total",
		"streamscribe_runs_failed_total",
		"streamscribe_cache_hits_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if names != 3 {
		t.Errorf("gathered %d series, want 3", names)
	}
}

func TestNewMetricsIsolatedPerRegistry(t *testing.T) {
	t.Parallel()

	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.RunsCompleted.Inc()
	if got := testutil.ToFloat64(b.RunsCompleted); got != 0 {
		t.Errorf("registries share state: b.RunsCompleted = %g", got)
	}
}
