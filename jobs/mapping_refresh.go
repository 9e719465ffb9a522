package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-fin/meridian/internal/consolidation"
	jobmetrics "github.com/meridian-fin/meridian/internal/jobs"
	"github.com/meridian-fin/meridian/internal/report"
)

// MappingRefresher is the slice of the report service the refresh needs.
type MappingRefresher interface {
	Organizations(ctx context.Context) ([]report.Organization, error)
	RefreshMappings(ctx context.Context, orgID int64) (report.RefreshResult, error)
}

// MappingRefreshJob re-resolves master chart mappings per organization and
// persists the snapshot. The service bumps the report cache version after a
// successful write, so cached consolidated reports cannot outlive a mapping
// change by more than one refresh.
type MappingRefreshJob struct {
	Reports MappingRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewMappingRefreshJob wires dependencies for the refresh handler.
func NewMappingRefreshJob(reports MappingRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *MappingRefreshJob {
	return &MappingRefreshJob{
		Reports: reports,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the refresh. Organizations without a master chart are
// skipped rather than failed; one broken organization does not stop the
// others, but its error still fails the run so the queue retries.
func (j *MappingRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reports == nil {
		return errors.New("mapping refresh: dependencies not configured")
	}
	var payload MappingRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.OrganizationID == "" {
		payload.OrganizationID = "all"
	}

	tracker := j.metrics().Track(TaskMappingRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	orgIDs, err := j.resolveOrganizations(ctx, payload.OrganizationID)
	if err != nil {
		resultErr = err
		j.log().Error("resolve organizations", slog.String("selector", payload.OrganizationID), slog.Any("error", err))
		return resultErr
	}
	if len(orgIDs) == 0 {
		j.log().Info("no organizations to refresh")
		return resultErr
	}

	start := j.now()
	refreshed := 0
	for _, orgID := range orgIDs {
		res, err := j.Reports.RefreshMappings(ctx, orgID)
		if errors.Is(err, consolidation.ErrNoTemplates) {
			j.log().Info("skipping organization without master chart", slog.Int64("organization_id", orgID))
			continue
		}
		if err != nil {
			resultErr = err
			j.log().Error("refresh mappings", slog.Int64("organization_id", orgID), slog.Any("error", err))
			continue
		}
		j.metrics().AddMappingsWritten(orgID, res.Mapped)
		if res.Unmapped > 0 {
			j.log().Warn("unmapped accounts remain", slog.Int64("organization_id", orgID), slog.Int("unmapped", res.Unmapped))
		}
		refreshed++
	}
	j.log().Info("refreshed organization mappings", slog.Int("organizations", refreshed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *MappingRefreshJob) resolveOrganizations(ctx context.Context, selector string) ([]int64, error) {
	if selector == "" || selector == "all" {
		orgs, err := j.Reports.Organizations(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(orgs))
		for _, org := range orgs {
			ids = append(ids, org.ID)
		}
		return ids, nil
	}
	id, err := strconv.ParseInt(selector, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid organization id %s", selector)
	}
	if id <= 0 {
		return nil, fmt.Errorf("organization id must be positive")
	}
	return []int64{id}, nil
}

func (j *MappingRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *MappingRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMappingRefresh))
	}
	return slog.Default().With(slog.String("job", TaskMappingRefresh))
}

func (j *MappingRefreshJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *MappingRefreshJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
