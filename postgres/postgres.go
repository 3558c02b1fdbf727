package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ckbridge/idempotency"
	"ckbridge/types"
)

// Store is the PostgreSQL backend. Hash order comes from the BIGSERIAL id.
type Store struct {
	pool *pgxpool.Pool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS claimed_hashes (
    id BIGSERIAL PRIMARY KEY,
    asset TEXT NOT NULL,
    hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS claimed_hashes_asset_idx ON claimed_hashes (asset, id);

CREATE TABLE IF NOT EXISTS hash_statuses (
    asset TEXT NOT NULL,
    hash TEXT NOT NULL,
    result TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    checked_at BIGINT NOT NULL,
    PRIMARY KEY (asset, hash)
);

CREATE TABLE IF NOT EXISTS withdrawal_operations (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    ts_created BIGINT NOT NULL,
    data JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS withdrawal_operations_status_idx ON withdrawal_operations (status, ts_created);

CREATE TABLE IF NOT EXISTS idempotency_records (
    key TEXT PRIMARY KEY,
    status_code INT NOT NULL,
    response BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// New connects using the DSN and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Append(ctx context.Context, asset, hash string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO claimed_hashes (asset, hash) VALUES ($1, $2)`, asset, hash)
	return err
}

func (s *Store) List(ctx context.Context, asset string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT hash FROM claimed_hashes WHERE asset = $1 ORDER BY id`, asset)
	if err != nil {
		return nil, err
	}
	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if hashes == nil {
		hashes = []string{}
	}
	return hashes, nil
}

func (s *Store) SetHashStatus(ctx context.Context, asset string, status types.HashStatus) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO hash_statuses (asset, hash, result, message, checked_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (asset, hash) DO UPDATE
SET result = EXCLUDED.result,
    message = EXCLUDED.message,
    checked_at = EXCLUDED.checked_at
`, asset, status.Hash, status.Result, status.Message, status.CheckedAt)
	return err
}

func (s *Store) HashStatuses(ctx context.Context, asset string) ([]types.HashStatus, error) {
	rows, err := s.pool.Query(ctx, `
SELECT hash, result, message, checked_at
FROM hash_statuses
WHERE asset = $1
ORDER BY hash
`, asset)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.HashStatus, error) {
		var st types.HashStatus
		err := row.Scan(&st.Hash, &st.Result, &st.Message, &st.CheckedAt)
		return st, err
	})
}

func (s *Store) Upsert(ctx context.Context, op *types.WithdrawalOperation) error {
	if op == nil {
		return errors.New("null object to store")
	}
	if op.Status == "" {
		return errors.New("withdrawal operation cannot have empty status")
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO withdrawal_operations (id, status, ts_created, data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status,
    data = EXCLUDED.data
`, op.ID, op.Status, op.TsCreated, data)
	return err
}

// ChangeStatus only moves op if it is still in prevStatus.
func (s *Store) ChangeStatus(ctx context.Context, op *types.WithdrawalOperation, prevStatus string) error {
	if op == nil || op.ID == "" {
		return errors.New("cannot change status of an operation without id")
	}
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE withdrawal_operations
SET status = $2, data = $3
WHERE id = $1 AND status = $4
`, op.ID, op.Status, data, prevStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s is not in status %s", op.ID, prevStatus)
	}
	return nil
}

func (s *Store) FindByStatus(ctx context.Context, status string) ([]*types.WithdrawalOperation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT data FROM withdrawal_operations
WHERE status = $1
ORDER BY ts_created, id
`, status)
	if err != nil {
		return nil, err
	}
	ops, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*types.WithdrawalOperation, error) {
		var raw []byte
		if err := row.Scan(&raw); err != nil {
			return nil, err
		}
		var op types.WithdrawalOperation
		if err := json.Unmarshal(raw, &op); err != nil {
			return nil, err
		}
		return &op, nil
	})
	if err != nil {
		return nil, err
	}
	if ops == nil {
		ops = []*types.WithdrawalOperation{}
	}
	return ops, nil
}

func (s *Store) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	row := s.pool.QueryRow(ctx, `
SELECT status_code, response, created_at, expires_at
FROM idempotency_records
WHERE key = $1
`, key)

	var rec idempotency.Record
	if err := row.Scan(&rec.StatusCode, &rec.Response, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if time.Now().After(rec.ExpiresAt) {
		_, _ = s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1`, key)
		return nil, nil
	}
	return &rec, nil
}

// Reserve inserts a status_code 0 row; an expired row for the key is
// cleared first.
func (s *Store) Reserve(ctx context.Context, key string, until time.Time) (bool, error) {
	now := time.Now()
	if _, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1 AND expires_at < $2`, key, now); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO idempotency_records (key, status_code, response, created_at, expires_at)
VALUES ($1, 0, '', $2, $3)
ON CONFLICT (key) DO NOTHING
`, key, now, until)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1 AND status_code = 0`, key)
	return err
}

func (s *Store) Save(ctx context.Context, key string, record idempotency.Record) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO idempotency_records (key, status_code, response, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (key) DO UPDATE
SET status_code = EXCLUDED.status_code,
    response = EXCLUDED.response,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at
`, key, record.StatusCode, record.Response, record.CreatedAt, record.ExpiresAt)
	return err
}
