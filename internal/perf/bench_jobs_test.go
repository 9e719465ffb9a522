package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/meridian-fin/meridian/internal/jobs"
)

// Drives the job collectors the way a warmup run does and checks the numbers
// the alert rules read: success ratio and duration histograms per job label.
func TestWarmupThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Entities whose report is already cached warm almost instantly.
	for i := 0; i < 40; i++ {
		tracker := metrics.Track("warmup.cached")
		time.Sleep(5 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending cached tracker: %v", err)
		}
	}

	// Cold entities rebuild all three statements and take longer, but must
	// stay inside the two second budget.
	for i := 0; i < 12; i++ {
		tracker := metrics.Track("warmup.cold")
		time.Sleep(30 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending cold tracker: %v", err)
		}
	}

	// A few failures must propagate so the queue retries and the failure
	// counter feeds the alert.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track("warmup.cached")
		time.Sleep(6 * time.Millisecond)
		if err := tracker.End(errors.New("balance load timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := counterValue(t, families, "meridian_jobs_total", map[string]string{"job": "warmup.cached", "status": "success"})
	failure := counterValue(t, families, "meridian_jobs_total", map[string]string{"job": "warmup.cached", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no cached warmup executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("cached warmup success ratio too low: %f", ratio)
	}

	coldDuration := histogramMean(t, families, "meridian_job_duration_seconds", map[string]string{"job": "warmup.cold"})
	if coldDuration > 2.0 {
		t.Fatalf("cold warmup duration above budget: %f", coldDuration)
	}

	cachedDuration := histogramMean(t, families, "meridian_job_duration_seconds", map[string]string{"job": "warmup.cached"})
	if cachedDuration > 0.5 {
		t.Fatalf("cached warmup duration above budget: %f", cachedDuration)
	}
}

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("counter %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if labelsMatch(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, expected map[string]string) bool {
	seen := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		seen[pair.GetName()] = pair.GetValue()
	}
	for key, val := range expected {
		if seen[key] != val {
			return false
		}
	}
	return true
}
