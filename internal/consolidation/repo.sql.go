package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-fin/meridian/internal/platform/db"
)

// Repository loads the master chart configuration and persists resolved
// mappings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a consolidation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Templates returns the organization's master chart in display order.
func (r *Repository) Templates(ctx context.Context, orgID int64) ([]Template, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `
SELECT id, account_number, name, classification, account_type, position
FROM consol_templates
WHERE org_id = $1
ORDER BY position, id`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []Template
	for rows.Next() {
		var tpl Template
		if err := rows.Scan(&tpl.ID, &tpl.Number, &tpl.Name, &tpl.Classification, &tpl.Type, &tpl.Position); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// Rules returns the organization's mapping rules in evaluation order.
func (r *Repository) Rules(ctx context.Context, orgID int64) ([]Rule, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `
SELECT cr.id, cr.template_id, cr.kind, cr.match, cr.position
FROM consol_rules cr
JOIN consol_templates ct ON ct.id = cr.template_id
WHERE ct.org_id = $1
ORDER BY cr.position, cr.id`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.TemplateID, &rule.Kind, &rule.Match, &rule.Position); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// PinnedAssignments returns hand-assigned account mappings. These take
// precedence over rule evaluation when consolidating.
func (r *Repository) PinnedAssignments(ctx context.Context, orgID int64) (map[int64]int64, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("consolidation repo not initialised")
	}
	const query = `
SELECT cm.account_id, cm.template_id
FROM consol_mappings cm
JOIN consol_templates ct ON ct.id = cm.template_id
WHERE ct.org_id = $1 AND cm.pinned`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	assigned := make(map[int64]int64)
	for rows.Next() {
		var accountID, templateID int64
		if err := rows.Scan(&accountID, &templateID); err != nil {
			return nil, err
		}
		assigned[accountID] = templateID
	}
	return assigned, rows.Err()
}

// SaveMappings upserts the resolved mapping snapshot inside one transaction,
// so a refresh lands whole or not at all. Pinned rows are left untouched so a
// refresh never undoes a hand assignment.
func (r *Repository) SaveMappings(ctx context.Context, mappings []Mapping) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("consolidation repo not initialised")
	}
	if len(mappings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
INSERT INTO consol_mappings (account_id, template_id, rule_id, pinned, updated_at)
VALUES ($1, $2, NULLIF($3, 0), $4, $5)
ON CONFLICT (account_id)
DO UPDATE SET template_id = EXCLUDED.template_id, rule_id = EXCLUDED.rule_id, updated_at = EXCLUDED.updated_at
WHERE NOT consol_mappings.pinned`
	now := time.Now().UTC()
	for _, m := range mappings {
		batch.Queue(query, m.AccountID, m.TemplateID, m.RuleID, m.Pinned, now)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range mappings {
			if _, err := results.Exec(); err != nil {
				results.Close()
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23503" {
					return ErrTemplateMissing
				}
				return err
			}
		}
		return results.Close()
	})
}
