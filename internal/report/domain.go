// Package report orchestrates financial statement generation: it resolves the
// requested scope, gathers ledger data, runs the consolidation and statement
// engines and assembles the JSON payload served over HTTP and warmed by jobs.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-fin/meridian/internal/consolidation"
	"github.com/meridian-fin/meridian/internal/periods"
	"github.com/meridian-fin/meridian/internal/statement"
)

// Scope selects whether a report covers one entity or a consolidated
// organization.
type Scope string

const (
	ScopeEntity       Scope = "entity"
	ScopeOrganization Scope = "organization"
)

// ErrEntityNotFound indicates the requested entity does not exist.
var ErrEntityNotFound = errors.New("report: entity not found")

// ErrOrgNotFound indicates the requested organization does not exist.
var ErrOrgNotFound = errors.New("report: organization not found")

// Entity is one legal entity in the directory.
type Entity struct {
	ID     int64  `json:"id"`
	OrgID  int64  `json:"orgId"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Organization groups entities for consolidated reporting.
type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BudgetLine is one budgeted monthly amount for an account, stored in the
// same debit-minus-credit convention as actuals.
type BudgetLine struct {
	AccountID int64
	Year      int
	Month     time.Month
	Amount    float64
}

// DepreciationLine is one month of book depreciation from the external
// schedule, already summed across an entity's fixed assets.
type DepreciationLine struct {
	Year   int
	Month  time.Month
	Amount float64
}

// Request describes one report to build. Validation tags cover the HTTP
// surface; the service re-derives the period range and rejects impossible
// ones regardless.
type Request struct {
	Scope         Scope               `json:"scope" validate:"required,oneof=entity organization"`
	EntityID      int64               `json:"entityId,omitempty" validate:"required_if=Scope entity,omitempty,min=1"`
	OrgID         int64               `json:"orgId,omitempty" validate:"required_if=Scope organization,omitempty,min=1"`
	StartYear     int                 `json:"startYear" validate:"required,min=1900,max=2200"`
	StartMonth    time.Month          `json:"startMonth" validate:"required,min=1,max=12"`
	EndYear       int                 `json:"endYear" validate:"required,min=1900,max=2200"`
	EndMonth      time.Month          `json:"endMonth" validate:"required,min=1,max=12"`
	Granularity   periods.Granularity `json:"granularity" validate:"required,oneof=monthly quarterly annual"`
	IncludeYoY    bool                `json:"includeYoy,omitempty"`
	IncludeBudget bool                `json:"includeBudget,omitempty"`
}

// Start returns the first month of the requested range.
func (r Request) Start() periods.YearMonth {
	return periods.YearMonth{Year: r.StartYear, Month: r.StartMonth}
}

// End returns the last month of the requested range.
func (r Request) End() periods.YearMonth {
	return periods.YearMonth{Year: r.EndYear, Month: r.EndMonth}
}

// CacheKeyParts returns the request identity used to build cache keys. Every
// field that changes the payload must appear here.
func (r Request) CacheKeyParts() []string {
	scopeID := r.EntityID
	if r.Scope == ScopeOrganization {
		scopeID = r.OrgID
	}
	return []string{
		"report",
		string(r.Scope),
		fmt.Sprintf("%d", scopeID),
		fmt.Sprintf("%04d-%02d", r.StartYear, int(r.StartMonth)),
		fmt.Sprintf("%04d-%02d", r.EndYear, int(r.EndMonth)),
		string(r.Granularity),
		fmt.Sprintf("yoy=%t", r.IncludeYoY),
		fmt.Sprintf("budget=%t", r.IncludeBudget),
	}
}

// FailedEntity records an entity whose data could not be fetched. The report
// is built from the remaining entities and the failure is surfaced instead of
// aborting the whole request.
type FailedEntity struct {
	EntityID int64  `json:"entityId"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

// Metadata describes how and when a report was produced.
type Metadata struct {
	ReportID       uuid.UUID                       `json:"reportId"`
	GeneratedAt    time.Time                       `json:"generatedAt"`
	Scope          Scope                           `json:"scope"`
	EntityID       int64                           `json:"entityId,omitempty"`
	OrgID          int64                           `json:"orgId,omitempty"`
	DisplayName    string                          `json:"displayName"`
	Granularity    periods.Granularity             `json:"granularity"`
	StartPeriod    string                          `json:"startPeriod"`
	EndPeriod      string                          `json:"endPeriod"`
	IncludeYoY     bool                            `json:"includeYoy,omitempty"`
	IncludeBudget  bool                            `json:"includeBudget,omitempty"`
	Unmapped       []consolidation.UnmappedAccount `json:"unmappedAccounts,omitempty"`
	FailedEntities []FailedEntity                  `json:"failedEntities,omitempty"`
}

// Report is the full payload: the three statements over a shared period axis,
// plus consolidation context when the scope is an organization.
type Report struct {
	Metadata        Metadata                              `json:"metadata"`
	Periods         []periods.Period                      `json:"periods"`
	IncomeStatement statement.Statement                   `json:"incomeStatement"`
	BalanceSheet    statement.Statement                   `json:"balanceSheet"`
	CashFlow        statement.Statement                   `json:"cashFlowStatement"`
	Breakdown       map[int64][]consolidation.EntityShare `json:"breakdown,omitempty"`
}

// RefreshResult summarises one mapping refresh run.
type RefreshResult struct {
	Mapped   int `json:"mapped"`
	Unmapped int `json:"unmapped"`
}
