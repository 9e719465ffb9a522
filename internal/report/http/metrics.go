package http

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridian-fin/meridian/internal/report"
)

var (
	reportMetricsMu          sync.Mutex
	reportMetricsInitialized bool

	buildHistogram     *prometheus.HistogramVec
	sharedBuildCounter *prometheus.CounterVec
	csvExportCounter   *prometheus.CounterVec
	reportMetricsError error
)

// SetupReportMetrics registers Prometheus metrics for the report endpoints.
// The registration is performed once and subsequent calls are ignored.
func SetupReportMetrics(reg prometheus.Registerer) error {
	reportMetricsMu.Lock()
	defer reportMetricsMu.Unlock()
	if reportMetricsInitialized {
		return reportMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buildHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_report_fetch_duration_seconds",
		Help:    "Time spent serving a statement report, cache included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scope", "granularity"})
	sharedBuildCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_report_singleflight_shared_total",
		Help: "Number of report requests that piggybacked on an in-flight build.",
	}, []string{"scope", "granularity"})
	csvExportCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_report_csv_exports_total",
		Help: "Number of CSV statement exports served.",
	}, []string{"scope", "granularity"})

	for _, collector := range []prometheus.Collector{buildHistogram, sharedBuildCounter, csvExportCounter} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				switch c := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					if collector == sharedBuildCounter {
						sharedBuildCounter = c
					} else {
						csvExportCounter = c
					}
				case *prometheus.HistogramVec:
					buildHistogram = c
				default:
					reportMetricsError = fmt.Errorf("report metrics: unexpected collector type %T", c)
				}
				continue
			}
			reportMetricsError = err
			buildHistogram = nil
			sharedBuildCounter = nil
			csvExportCounter = nil
			reportMetricsInitialized = true
			return reportMetricsError
		}
	}

	reportMetricsInitialized = true
	return reportMetricsError
}

func observeFetchDuration(req report.Request, duration time.Duration) {
	if buildHistogram == nil {
		return
	}
	buildHistogram.WithLabelValues(string(req.Scope), string(req.Granularity)).Observe(duration.Seconds())
}

func recordSharedBuild(req report.Request) {
	if sharedBuildCounter == nil {
		return
	}
	sharedBuildCounter.WithLabelValues(string(req.Scope), string(req.Granularity)).Inc()
}

func recordCSVExport(req report.Request) {
	if csvExportCounter == nil {
		return
	}
	csvExportCounter.WithLabelValues(string(req.Scope), string(req.Granularity)).Inc()
}
