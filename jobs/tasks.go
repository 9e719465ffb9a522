// Package jobs runs the background side of the reporting service: the asynq
// worker, the scheduled report warmup and mapping refresh tasks, and the
// small HTTP surface for queue health and manual enqueues.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue both scheduled and manual jobs run on.
	QueueDefault = "default"
	// TaskReportWarmup pre-builds trailing reports for active entities.
	TaskReportWarmup = "report:warmup"
	// TaskMappingRefresh re-resolves master chart mappings per organization.
	TaskMappingRefresh = "consol:mapping_refresh"
)

// ReportWarmupPayload bounds the warmup window in trailing months.
type ReportWarmupPayload struct {
	Months int `json:"months"`
}

// MappingRefreshPayload selects which organizations to refresh. "all" fans
// out to every known organization.
type MappingRefreshPayload struct {
	OrganizationID string `json:"organization_id"`
}

// NewReportWarmupTask constructs the warmup task. Months at or below zero
// fall back to a trailing year.
func NewReportWarmupTask(months int) (*asynq.Task, error) {
	if months <= 0 {
		months = warmupDefaultMonths
	}
	body, err := json.Marshal(ReportWarmupPayload{Months: months})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewMappingRefreshTask constructs the refresh task for one organization id
// or "all".
func NewMappingRefreshTask(organizationID string) (*asynq.Task, error) {
	if organizationID == "" {
		organizationID = "all"
	}
	body, err := json.Marshal(MappingRefreshPayload{OrganizationID: organizationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMappingRefresh, body, asynq.Queue(QueueDefault)), nil
}
