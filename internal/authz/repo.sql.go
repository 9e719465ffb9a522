package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLRepository loads API keys and grants from Postgres.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs an authz repository.
func NewRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

// FindKey fetches one key with its grants.
func (r *SQLRepository) FindKey(ctx context.Context, keyID string) (KeyRecord, error) {
	if r == nil || r.pool == nil {
		return KeyRecord{}, fmt.Errorf("authz repo not initialised")
	}
	const keyQuery = `SELECT key_id, secret_hash, name, active FROM api_keys WHERE key_id = $1`
	var record KeyRecord
	if err := r.pool.QueryRow(ctx, keyQuery, keyID).Scan(&record.KeyID, &record.SecretHash, &record.Name, &record.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return KeyRecord{}, ErrInvalidKey
		}
		return KeyRecord{}, err
	}

	const grantQuery = `SELECT scope, target_id FROM api_key_grants WHERE key_id = $1 ORDER BY scope, target_id`
	rows, err := r.pool.Query(ctx, grantQuery, keyID)
	if err != nil {
		return KeyRecord{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.Scope, &g.TargetID); err != nil {
			return KeyRecord{}, err
		}
		record.Grants = append(record.Grants, g)
	}
	return record, rows.Err()
}
