package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-fin/meridian/internal/consolidation"
	"github.com/meridian-fin/meridian/internal/ledger"
	"github.com/meridian-fin/meridian/internal/periods"
	"github.com/meridian-fin/meridian/internal/statement"
)

// DataSource defines the persistence behaviour the service needs for ledger
// data and the entity directory.
type DataSource interface {
	Entity(ctx context.Context, id int64) (Entity, error)
	Organization(ctx context.Context, id int64) (Organization, error)
	Organizations(ctx context.Context) ([]Organization, error)
	OrganizationEntities(ctx context.Context, orgID int64) ([]Entity, error)
	ActiveEntities(ctx context.Context) ([]Entity, error)
	Accounts(ctx context.Context, entityIDs []int64) ([]ledger.Account, error)
	MonthlyBalances(ctx context.Context, entityIDs []int64, months []periods.YearMonth) ([]ledger.MonthlyBalance, error)
	LatestBalances(ctx context.Context, entityIDs []int64) ([]ledger.MonthlyBalance, error)
	BudgetAmounts(ctx context.Context, entityIDs []int64, months []periods.YearMonth) ([]BudgetLine, error)
	DepreciationTotals(ctx context.Context, entityIDs []int64, months []periods.YearMonth) ([]DepreciationLine, error)
}

// ChartSource defines the master chart behaviour used for organization
// scope.
type ChartSource interface {
	Templates(ctx context.Context, orgID int64) ([]consolidation.Template, error)
	Rules(ctx context.Context, orgID int64) ([]consolidation.Rule, error)
	PinnedAssignments(ctx context.Context, orgID int64) (map[int64]int64, error)
	SaveMappings(ctx context.Context, mappings []consolidation.Mapping) error
}

// Service builds financial statement reports.
type Service struct {
	repo       DataSource
	charts     ChartSource
	cache      *Cache
	logger     *slog.Logger
	now        func() time.Time
	newID      func() uuid.UUID
	fetchLimit int
}

// NewService constructs a report service.
func NewService(repo DataSource, charts ChartSource, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		charts:     charts,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.New,
		fetchLimit: 4,
	}
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithIDGenerator overrides report ID generation for deterministic tests.
func (s *Service) WithIDGenerator(gen func() uuid.UUID) {
	if gen != nil {
		s.newID = gen
	}
}

// WithFetchLimit caps how many entities are fetched concurrently.
func (s *Service) WithFetchLimit(n int) {
	if n > 0 {
		s.fetchLimit = n
	}
}

type entityData struct {
	accounts     []ledger.Account
	balances     []ledger.MonthlyBalance
	budget       []BudgetLine
	depreciation []DepreciationLine
}

// BuildReport produces a report from scratch, bypassing the cache. Entity
// fetch failures under organization scope exclude the entity and are recorded
// in the metadata; the build only fails outright when no entity could be
// fetched at all.
func (s *Service) BuildReport(ctx context.Context, req Request) (Report, error) {
	if s == nil || s.repo == nil {
		return Report{}, fmt.Errorf("report service not initialised")
	}
	buckets, err := periods.BuildBuckets(req.Start(), req.End(), req.Granularity)
	if err != nil {
		return Report{}, err
	}

	var (
		displayName string
		entities    []Entity
		templates   []consolidation.Template
		rules       []consolidation.Rule
		pinned      map[int64]int64
	)
	switch req.Scope {
	case ScopeEntity:
		ent, err := s.repo.Entity(ctx, req.EntityID)
		if err != nil {
			return Report{}, err
		}
		displayName = ent.Name
		entities = []Entity{ent}
	case ScopeOrganization:
		org, err := s.repo.Organization(ctx, req.OrgID)
		if err != nil {
			return Report{}, err
		}
		displayName = org.Name
		if entities, err = s.repo.OrganizationEntities(ctx, org.ID); err != nil {
			return Report{}, err
		}
		if s.charts == nil {
			return Report{}, fmt.Errorf("report: chart source not configured")
		}
		if templates, err = s.charts.Templates(ctx, org.ID); err != nil {
			return Report{}, err
		}
		if rules, err = s.charts.Rules(ctx, org.ID); err != nil {
			return Report{}, err
		}
		if pinned, err = s.charts.PinnedAssignments(ctx, org.ID); err != nil {
			return Report{}, err
		}
	default:
		return Report{}, fmt.Errorf("report: unknown scope %q", req.Scope)
	}

	months := periods.RequiredMonths(buckets, req.IncludeYoY)

	results := make([]entityData, len(entities))
	reasons := make([]string, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchLimit)
	for i, ent := range entities {
		g.Go(func() error {
			data, err := s.fetchEntity(gctx, ent, months, req.IncludeBudget)
			if err != nil {
				reasons[i] = err.Error()
				s.logger.WarnContext(gctx, "entity fetch failed",
					"entityId", ent.ID, "entity", ent.Name, "error", err)
				return nil
			}
			results[i] = data
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	var (
		failures    []FailedEntity
		accounts    []ledger.Account
		balances    []ledger.MonthlyBalance
		budgetLines []BudgetLine
		depLines    []DepreciationLine
	)
	entityNames := make(map[int64]string, len(entities))
	fetched := 0
	for i, ent := range entities {
		entityNames[ent.ID] = ent.Name
		if reasons[i] != "" {
			failures = append(failures, FailedEntity{EntityID: ent.ID, Name: ent.Name, Reason: reasons[i]})
			continue
		}
		fetched++
		accounts = append(accounts, results[i].accounts...)
		balances = append(balances, results[i].balances...)
		budgetLines = append(budgetLines, results[i].budget...)
		depLines = append(depLines, results[i].depreciation...)
	}
	if len(entities) > 0 && fetched == 0 {
		return Report{}, fmt.Errorf("report: no entity data available: %s", failures[0].Reason)
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].EntityID < failures[j].EntityID })

	var (
		unmapped        []consolidation.UnmappedAccount
		breakdown       map[int64][]consolidation.EntityShare
		budgetTranslate map[int64]int64
	)
	if req.Scope == ScopeOrganization {
		res := consolidation.Consolidate(consolidation.Input{
			Templates:   templates,
			Rules:       rules,
			Accounts:    accounts,
			Balances:    balances,
			Assigned:    pinned,
			EntityNames: entityNames,
		})
		accounts, balances = res.Accounts, res.Balances
		unmapped, breakdown = res.Unmapped, res.Breakdown
		if req.IncludeBudget {
			budgetTranslate = make(map[int64]int64, len(res.Mappings))
			for _, m := range res.Mappings {
				budgetTranslate[m.AccountID] = m.TemplateID
			}
		}
	}

	accounts = ledger.ReclassifyOtherExpense(accounts)
	amounts := statement.AggregateBalances(accounts, balances, buckets)

	var prior map[int64]statement.BucketedBalance
	if req.IncludeYoY {
		prior = statement.AggregateBalances(accounts, balances, periods.ShiftYears(buckets, -1))
	}

	input := statement.BuildInput{Accounts: accounts, Amounts: amounts, Prior: prior, Buckets: buckets}
	incomeInput := input
	if req.IncludeBudget {
		incomeInput.Budget = foldBudget(budgetLines, buckets, req.Scope == ScopeOrganization, budgetTranslate)
	}
	income := statement.BuildStatement(statement.IncomeStatementConfig(), incomeInput)
	balanceSheet := statement.BuildStatement(statement.BalanceSheetConfig(), input)

	netIncome := map[string]float64{}
	if line, ok := income.Line("net-income"); ok {
		netIncome = line.Amounts
	}
	cashFlow := statement.DeriveCashFlow(statement.CashFlowInput{
		Accounts:     accounts,
		Amounts:      amounts,
		Buckets:      buckets,
		NetIncome:    netIncome,
		Depreciation: foldDepreciation(depLines, buckets),
		Trace:        s.traceInvesting(ctx),
	})

	meta := Metadata{
		ReportID:       s.newID(),
		GeneratedAt:    s.now().UTC(),
		Scope:          req.Scope,
		EntityID:       req.EntityID,
		OrgID:          req.OrgID,
		DisplayName:    displayName,
		Granularity:    req.Granularity,
		StartPeriod:    fmt.Sprintf("%04d-%02d", req.StartYear, int(req.StartMonth)),
		EndPeriod:      fmt.Sprintf("%04d-%02d", req.EndYear, int(req.EndMonth)),
		IncludeYoY:     req.IncludeYoY,
		IncludeBudget:  req.IncludeBudget,
		Unmapped:       unmapped,
		FailedEntities: failures,
	}
	return Report{
		Metadata:        meta,
		Periods:         periods.Identities(buckets),
		IncomeStatement: income,
		BalanceSheet:    balanceSheet,
		CashFlow:        cashFlow,
		Breakdown:       breakdown,
	}, nil
}

// GetReport serves a report through the versioned cache, building on miss.
func (s *Service) GetReport(ctx context.Context, req Request) (Report, error) {
	if s == nil {
		return Report{}, fmt.Errorf("report service not initialised")
	}
	if s.cache == nil {
		return s.BuildReport(ctx, req)
	}
	key, err := s.cache.BuildKey(ctx, req.CacheKeyParts()...)
	if err != nil {
		s.logger.WarnContext(ctx, "cache key unavailable, building directly", "error", err)
		return s.BuildReport(ctx, req)
	}
	var rep Report
	err = s.cache.FetchJSON(ctx, key, &rep, func(ctx context.Context) (interface{}, error) {
		return s.BuildReport(ctx, req)
	})
	return rep, err
}

// RefreshMappings re-resolves every account of the organization against the
// master chart, persists the snapshot and bumps the cache version.
func (s *Service) RefreshMappings(ctx context.Context, orgID int64) (RefreshResult, error) {
	if s == nil || s.repo == nil || s.charts == nil {
		return RefreshResult{}, fmt.Errorf("report service not initialised")
	}
	res, err := s.resolveMappings(ctx, orgID)
	if err != nil {
		return RefreshResult{}, err
	}
	if err := s.charts.SaveMappings(ctx, res.Mappings); err != nil {
		return RefreshResult{}, err
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.WarnContext(ctx, "cache bump failed after mapping refresh", "error", err)
		}
	}
	return RefreshResult{Mapped: len(res.Mappings), Unmapped: len(res.Unmapped)}, nil
}

// UnmappedAccounts lists the entity accounts the master chart cannot place.
// Nothing is persisted; this backs the mapping audit endpoint.
func (s *Service) UnmappedAccounts(ctx context.Context, orgID int64) ([]consolidation.UnmappedAccount, error) {
	if s == nil || s.repo == nil || s.charts == nil {
		return nil, fmt.Errorf("report service not initialised")
	}
	res, err := s.resolveMappings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if res.Unmapped == nil {
		return []consolidation.UnmappedAccount{}, nil
	}
	return res.Unmapped, nil
}

// resolveMappings runs the rule engine over the organization's live chart of
// accounts. Each account's latest stored balance rides along so unmapped
// listings show what the mapping gap hides.
func (s *Service) resolveMappings(ctx context.Context, orgID int64) (consolidation.Result, error) {
	if _, err := s.repo.Organization(ctx, orgID); err != nil {
		return consolidation.Result{}, err
	}
	templates, err := s.charts.Templates(ctx, orgID)
	if err != nil {
		return consolidation.Result{}, err
	}
	if len(templates) == 0 {
		return consolidation.Result{}, consolidation.ErrNoTemplates
	}
	rules, err := s.charts.Rules(ctx, orgID)
	if err != nil {
		return consolidation.Result{}, err
	}
	pinned, err := s.charts.PinnedAssignments(ctx, orgID)
	if err != nil {
		return consolidation.Result{}, err
	}
	entities, err := s.repo.OrganizationEntities(ctx, orgID)
	if err != nil {
		return consolidation.Result{}, err
	}
	ids := make([]int64, 0, len(entities))
	names := make(map[int64]string, len(entities))
	for _, ent := range entities {
		ids = append(ids, ent.ID)
		names[ent.ID] = ent.Name
	}
	var (
		accounts []ledger.Account
		balances []ledger.MonthlyBalance
	)
	if len(ids) > 0 {
		if accounts, err = s.repo.Accounts(ctx, ids); err != nil {
			return consolidation.Result{}, err
		}
		if balances, err = s.repo.LatestBalances(ctx, ids); err != nil {
			return consolidation.Result{}, err
		}
	}
	return consolidation.Consolidate(consolidation.Input{
		Templates:   templates,
		Rules:       rules,
		Accounts:    accounts,
		Balances:    balances,
		Assigned:    pinned,
		EntityNames: names,
	}), nil
}

// ActiveEntities lists entities eligible for report warmup.
func (s *Service) ActiveEntities(ctx context.Context) ([]Entity, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("report service not initialised")
	}
	return s.repo.ActiveEntities(ctx)
}

// Organizations lists organizations for mapping refresh runs.
func (s *Service) Organizations(ctx context.Context) ([]Organization, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("report service not initialised")
	}
	return s.repo.Organizations(ctx)
}

func (s *Service) fetchEntity(ctx context.Context, ent Entity, months []periods.YearMonth, includeBudget bool) (entityData, error) {
	ids := []int64{ent.ID}
	accounts, err := s.repo.Accounts(ctx, ids)
	if err != nil {
		return entityData{}, fmt.Errorf("accounts: %w", err)
	}
	balances, err := s.repo.MonthlyBalances(ctx, ids, months)
	if err != nil {
		return entityData{}, fmt.Errorf("balances: %w", err)
	}
	data := entityData{accounts: accounts, balances: balances}
	if data.depreciation, err = s.repo.DepreciationTotals(ctx, ids, months); err != nil {
		return entityData{}, fmt.Errorf("depreciation: %w", err)
	}
	if includeBudget {
		if data.budget, err = s.repo.BudgetAmounts(ctx, ids, months); err != nil {
			return entityData{}, fmt.Errorf("budget: %w", err)
		}
	}
	return data, nil
}

func (s *Service) traceInvesting(ctx context.Context) func(string, float64, float64) {
	logger := s.logger
	if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
		return nil
	}
	return func(key string, raw, adjusted float64) {
		logger.DebugContext(ctx, "investing activity kept raw balance delta",
			"bucket", key, "rawDelta", raw, "depreciationAdjusted", adjusted)
	}
}

// foldDepreciation sums the schedule's monthly book depreciation into bucket
// columns for the cash flow add-back. The figures arrive pre-aggregated per
// month; no depreciation is computed here.
func foldDepreciation(lines []DepreciationLine, buckets []periods.Bucket) map[string]float64 {
	monthKey := make(map[periods.YearMonth]string)
	for _, b := range buckets {
		for _, ym := range b.Months {
			monthKey[ym] = b.Key
		}
	}
	out := make(map[string]float64, len(buckets))
	for _, b := range buckets {
		out[b.Key] = 0
	}
	for _, line := range lines {
		key, ok := monthKey[periods.YearMonth{Year: line.Year, Month: line.Month}]
		if !ok {
			continue
		}
		out[key] += line.Amount
	}
	return out
}

// foldBudget sums budgeted monthly amounts into bucket columns. Under
// organization scope account IDs are translated through the resolved
// mappings; budget on unmapped accounts is excluded, matching the treatment
// of actuals.
func foldBudget(lines []BudgetLine, buckets []periods.Bucket, translate bool, mapping map[int64]int64) map[int64]map[string]float64 {
	if len(lines) == 0 {
		return nil
	}
	monthKey := make(map[periods.YearMonth]string)
	for _, b := range buckets {
		for _, ym := range b.Months {
			monthKey[ym] = b.Key
		}
	}
	out := make(map[int64]map[string]float64)
	for _, line := range lines {
		key, ok := monthKey[periods.YearMonth{Year: line.Year, Month: line.Month}]
		if !ok {
			continue
		}
		id := line.AccountID
		if translate {
			tid, ok := mapping[id]
			if !ok {
				continue
			}
			id = tid
		}
		series := out[id]
		if series == nil {
			series = make(map[string]float64)
			out[id] = series
		}
		series[key] += line.Amount
	}
	return out
}
