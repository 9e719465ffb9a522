package e2e

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/meridian-fin/meridian/internal/jobs"
	"github.com/meridian-fin/meridian/internal/report"
	"github.com/meridian-fin/meridian/jobs"
)

type stubRefreshService struct {
	orgs    []report.Organization
	results map[int64]report.RefreshResult
	calls   []int64
}

func (s *stubRefreshService) Organizations(_ context.Context) ([]report.Organization, error) {
	return append([]report.Organization(nil), s.orgs...), nil
}

func (s *stubRefreshService) RefreshMappings(_ context.Context, orgID int64) (report.RefreshResult, error) {
	s.calls = append(s.calls, orgID)
	return s.results[orgID], nil
}

// Runs the mapping refresh through a real task and registry and checks the
// counters the dashboards and alert rules read.
func TestMappingRefreshJobRecordsMetrics(t *testing.T) {
	service := &stubRefreshService{
		orgs: []report.Organization{{ID: 11, Name: "Northwind Group"}, {ID: 22, Name: "Contoso Holdings"}},
		results: map[int64]report.RefreshResult{
			11: {Mapped: 42, Unmapped: 3},
			22: {Mapped: 17},
		},
	}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	job := jobs.NewMappingRefreshJob(service, nil, metrics)
	task, err := jobs.NewMappingRefreshTask("all")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("job handle: %v", err)
	}
	if len(service.calls) != 2 {
		t.Fatalf("expected 2 refresh calls, got %d", len(service.calls))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !counterEquals(families, "meridian_jobs_total", map[string]string{"job": jobs.TaskMappingRefresh, "status": "success"}, 1) {
		t.Fatal("expected one successful refresh run in meridian_jobs_total")
	}
	if !counterEquals(families, "meridian_consol_mappings_written_total", map[string]string{"organization": "11"}, 42) {
		t.Fatal("expected 42 written mappings recorded for organization 11")
	}
	if !counterEquals(families, "meridian_consol_mappings_written_total", map[string]string{"organization": "22"}, 17) {
		t.Fatal("expected 17 written mappings recorded for organization 22")
	}
	if !familyExists(families, "meridian_job_duration_seconds") {
		t.Fatal("expected meridian_job_duration_seconds to be recorded")
	}
}

func counterEquals(families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if !matchLabels(metric.GetLabel(), labels) {
				continue
			}
			if metric.GetCounter() == nil {
				return false
			}
			if metric.GetCounter().GetValue() == expected {
				return true
			}
		}
	}
	return false
}

func familyExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}
