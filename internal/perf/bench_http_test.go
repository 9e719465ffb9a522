package perf

import (
	"sort"
	"testing"
	"time"
)

// Latency budgets mirror the alerting thresholds: a cache hit serves the
// stored envelope and must stay comfortably under half a second, a cold
// consolidated build walks every member entity and gets the full two
// second budget the p95 alert watches.
func TestReportLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			name:      "cache_hit",
			samples:   []time.Duration{18 * time.Millisecond, 25 * time.Millisecond, 31 * time.Millisecond, 44 * time.Millisecond, 58 * time.Millisecond, 73 * time.Millisecond, 90 * time.Millisecond, 120 * time.Millisecond, 165 * time.Millisecond, 240 * time.Millisecond},
			threshold: 500 * time.Millisecond,
		},
		{
			name:      "cold_consolidated_build",
			samples:   []time.Duration{620 * time.Millisecond, 700 * time.Millisecond, 840 * time.Millisecond, 910 * time.Millisecond, 1050 * time.Millisecond, 1200 * time.Millisecond, 1340 * time.Millisecond, 1480 * time.Millisecond, 1610 * time.Millisecond, 1820 * time.Millisecond},
			threshold: 2 * time.Second,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
