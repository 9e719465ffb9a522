package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-fin/meridian/internal/jobs"
	"github.com/meridian-fin/meridian/internal/periods"
	"github.com/meridian-fin/meridian/internal/report"
)

const (
	warmupDefaultMonths = 12
	warmupEntityTimeout = 30 * time.Second
)

// ReportBuilder is the slice of the report service the warmup needs.
type ReportBuilder interface {
	ActiveEntities(ctx context.Context) ([]report.Entity, error)
	GetReport(ctx context.Context, req report.Request) (report.Report, error)
}

// ReportWarmupJob pre-builds the trailing monthly report for every active
// entity through the cached path, so the first dashboard hit of the day is a
// cache hit.
type ReportWarmupJob struct {
	Reports ReportBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewReportWarmupJob wires dependencies for the warmup handler.
func NewReportWarmupJob(reports ReportBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportWarmupJob {
	return &ReportWarmupJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the warmup. One broken entity must not leave every other
// cache cold, so failures are logged and skipped; the run still reports the
// last failure so the queue retries.
func (j *ReportWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("report warmup: dependencies not configured")
	}
	var payload ReportWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Months <= 0 {
		payload.Months = warmupDefaultMonths
	}

	tracker := j.metrics().Track(TaskReportWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	entities, err := j.Reports.ActiveEntities(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("list active entities", slog.Any("error", err))
		return resultErr
	}
	if len(entities) == 0 {
		j.log().Info("no active entities to warm")
		return resultErr
	}

	start := j.now()
	warmed := 0
	for _, ent := range entities {
		if err := j.warmEntity(ctx, ent, payload.Months); err != nil {
			resultErr = err
			j.log().Error("warm entity", slog.Int64("entity_id", ent.ID), slog.Any("error", err))
			continue
		}
		warmed++
	}
	j.metrics().AddWarmedReports(warmed)
	j.log().Info("warmed entity reports", slog.Int("entities", warmed), slog.Int("months", payload.Months), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *ReportWarmupJob) warmEntity(ctx context.Context, ent report.Entity, months int) error {
	scopeCtx, cancel := context.WithTimeout(ctx, warmupEntityTimeout)
	defer cancel()

	from, to := warmupWindow(j.now(), months)
	req := report.Request{
		Scope:       report.ScopeEntity,
		EntityID:    ent.ID,
		StartYear:   from.Year,
		StartMonth:  from.Month,
		EndYear:     to.Year,
		EndMonth:    to.Month,
		Granularity: periods.GranularityMonthly,
	}
	_, err := j.Reports.GetReport(scopeCtx, req)
	return err
}

// warmupWindow returns the trailing window of full months ending with the
// month containing now. Anchoring on the first of the month keeps AddDate
// from spilling over on short months.
func warmupWindow(now time.Time, months int) (periods.YearMonth, periods.YearMonth) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := first.AddDate(0, -(months - 1), 0)
	return periods.YearMonth{Year: from.Year(), Month: from.Month()},
		periods.YearMonth{Year: first.Year(), Month: first.Month()}
}

func (j *ReportWarmupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportWarmupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportWarmup))
}

func (j *ReportWarmupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ReportWarmupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
