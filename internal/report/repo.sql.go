package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-fin/meridian/internal/ledger"
	"github.com/meridian-fin/meridian/internal/periods"
)

// Repository provides persistence for the entity directory, the chart of
// accounts and the stored monthly balances.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a report repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Entity fetches one entity by ID.
func (r *Repository) Entity(ctx context.Context, id int64) (Entity, error) {
	if r == nil || r.pool == nil {
		return Entity{}, fmt.Errorf("report repo not initialised")
	}
	const query = `SELECT id, org_id, name, active FROM entities WHERE id = $1`
	var ent Entity
	if err := r.pool.QueryRow(ctx, query, id).Scan(&ent.ID, &ent.OrgID, &ent.Name, &ent.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, ErrEntityNotFound
		}
		return Entity{}, err
	}
	return ent, nil
}

// Organization fetches one organization by ID.
func (r *Repository) Organization(ctx context.Context, id int64) (Organization, error) {
	if r == nil || r.pool == nil {
		return Organization{}, fmt.Errorf("report repo not initialised")
	}
	const query = `SELECT id, name FROM organizations WHERE id = $1`
	var org Organization
	if err := r.pool.QueryRow(ctx, query, id).Scan(&org.ID, &org.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Organization{}, ErrOrgNotFound
		}
		return Organization{}, err
	}
	return org, nil
}

// Organizations lists all organizations.
func (r *Repository) Organizations(ctx context.Context) ([]Organization, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	const query = `SELECT id, name FROM organizations ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// OrganizationEntities lists the active entities of an organization.
func (r *Repository) OrganizationEntities(ctx context.Context, orgID int64) ([]Entity, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	const query = `SELECT id, org_id, name, active FROM entities WHERE org_id = $1 AND active ORDER BY id`
	return r.queryEntities(ctx, query, orgID)
}

// ActiveEntities lists every active entity across organizations.
func (r *Repository) ActiveEntities(ctx context.Context) ([]Entity, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	const query = `SELECT id, org_id, name, active FROM entities WHERE active ORDER BY id`
	return r.queryEntities(ctx, query)
}

func (r *Repository) queryEntities(ctx context.Context, query string, args ...interface{}) ([]Entity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entities []Entity
	for rows.Next() {
		var ent Entity
		if err := rows.Scan(&ent.ID, &ent.OrgID, &ent.Name, &ent.Active); err != nil {
			return nil, err
		}
		entities = append(entities, ent)
	}
	return entities, rows.Err()
}

// Accounts lists the chart of accounts for the given entities.
func (r *Repository) Accounts(ctx context.Context, entityIDs []int64) ([]ledger.Account, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	if len(entityIDs) == 0 {
		return nil, nil
	}
	const query = `
SELECT id, entity_id, account_number, name, classification, account_type
FROM accounts
WHERE entity_id = ANY($1)
ORDER BY entity_id, id`
	rows, err := r.pool.Query(ctx, query, entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []ledger.Account
	for rows.Next() {
		var acc ledger.Account
		if err := rows.Scan(&acc.ID, &acc.EntityID, &acc.Number, &acc.Name, &acc.Classification, &acc.Type); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// MonthlyBalances fetches stored balance rows for exactly the requested
// months. Months are encoded as year*100+month so the fetch stays a single
// indexable predicate even when the YoY range makes the list non-contiguous.
func (r *Repository) MonthlyBalances(ctx context.Context, entityIDs []int64, months []periods.YearMonth) ([]ledger.MonthlyBalance, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	if len(entityIDs) == 0 || len(months) == 0 {
		return nil, nil
	}
	const query = `
SELECT ab.account_id, a.entity_id, ab.period_year, ab.period_month,
       ab.beginning_balance, ab.ending_balance, ab.net_change
FROM account_balances ab
JOIN accounts a ON a.id = ab.account_id
WHERE a.entity_id = ANY($1)
  AND ab.period_year * 100 + ab.period_month = ANY($2)
ORDER BY ab.account_id, ab.period_year, ab.period_month`
	rows, err := r.pool.Query(ctx, query, entityIDs, monthKeys(months))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []ledger.MonthlyBalance
	for rows.Next() {
		var (
			b     ledger.MonthlyBalance
			month int
		)
		if err := rows.Scan(&b.AccountID, &b.EntityID, &b.Year, &month, &b.Beginning, &b.Ending, &b.NetChange); err != nil {
			return nil, err
		}
		b.Month = time.Month(month)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// LatestBalances returns each account's most recent stored monthly snapshot.
// The mapping audit uses it to show how much balance an unmapped account
// hides.
func (r *Repository) LatestBalances(ctx context.Context, entityIDs []int64) ([]ledger.MonthlyBalance, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	if len(entityIDs) == 0 {
		return nil, nil
	}
	const query = `
SELECT DISTINCT ON (ab.account_id)
       ab.account_id, a.entity_id, ab.period_year, ab.period_month,
       ab.beginning_balance, ab.ending_balance, ab.net_change
FROM account_balances ab
JOIN accounts a ON a.id = ab.account_id
WHERE a.entity_id = ANY($1)
ORDER BY ab.account_id, ab.period_year DESC, ab.period_month DESC`
	rows, err := r.pool.Query(ctx, query, entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var balances []ledger.MonthlyBalance
	for rows.Next() {
		var (
			b     ledger.MonthlyBalance
			month int
		)
		if err := rows.Scan(&b.AccountID, &b.EntityID, &b.Year, &month, &b.Beginning, &b.Ending, &b.NetChange); err != nil {
			return nil, err
		}
		b.Month = time.Month(month)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// BudgetAmounts fetches budgeted monthly amounts for the requested months.
func (r *Repository) BudgetAmounts(ctx context.Context, entityIDs []int64, months []periods.YearMonth) ([]BudgetLine, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	if len(entityIDs) == 0 || len(months) == 0 {
		return nil, nil
	}
	const query = `
SELECT bl.account_id, bl.period_year, bl.period_month, bl.amount
FROM budget_lines bl
JOIN accounts a ON a.id = bl.account_id
WHERE a.entity_id = ANY($1)
  AND bl.period_year * 100 + bl.period_month = ANY($2)
ORDER BY bl.account_id, bl.period_year, bl.period_month`
	rows, err := r.pool.Query(ctx, query, entityIDs, monthKeys(months))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []BudgetLine
	for rows.Next() {
		var (
			line  BudgetLine
			month int
		)
		if err := rows.Scan(&line.AccountID, &line.Year, &month, &line.Amount); err != nil {
			return nil, err
		}
		line.Month = time.Month(month)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// DepreciationTotals fetches the book depreciation schedule for the requested
// months, summed per month across each entity's fixed assets.
func (r *Repository) DepreciationTotals(ctx context.Context, entityIDs []int64, months []periods.YearMonth) ([]DepreciationLine, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("report repo not initialised")
	}
	if len(entityIDs) == 0 || len(months) == 0 {
		return nil, nil
	}
	const query = `
SELECT period_year, period_month, SUM(amount)
FROM depreciation_schedule
WHERE entity_id = ANY($1)
  AND period_year * 100 + period_month = ANY($2)
GROUP BY period_year, period_month
ORDER BY period_year, period_month`
	rows, err := r.pool.Query(ctx, query, entityIDs, monthKeys(months))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []DepreciationLine
	for rows.Next() {
		var (
			line  DepreciationLine
			month int
		)
		if err := rows.Scan(&line.Year, &month, &line.Amount); err != nil {
			return nil, err
		}
		line.Month = time.Month(month)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func monthKeys(months []periods.YearMonth) []int64 {
	keys := make([]int64, 0, len(months))
	for _, ym := range months {
		keys = append(keys, int64(ym.Year)*100+int64(ym.Month))
	}
	return keys
}
