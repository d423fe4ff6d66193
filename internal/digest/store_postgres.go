package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS digest_results (
	id         TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS digest_usage (
	id         TEXT PRIMARY KEY,
	count      BIGINT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);`

// PostgresStore is a Store backed by PostgreSQL. Summaries are kept as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the tables if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create digest tables: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// GetResult implements Store.GetResult.
func (s *PostgresStore) GetResult(ctx context.Context, key string) (CacheEntry, bool, error) {
	var (
		payload   []byte
		expiresAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT payload, expires_at FROM digest_results WHERE id = $1`, key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("select result %s: %w", key, err)
	}

	e := CacheEntry{Key: key, ExpiresAt: expiresAt}
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return CacheEntry{}, false, fmt.Errorf("decode result %s: %w", key, err)
	}
	return e, true, nil
}

// SetResult implements Store.SetResult.
func (s *PostgresStore) SetResult(ctx context.Context, e CacheEntry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", e.Key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO digest_results (id, payload, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, expires_at = EXCLUDED.expires_at`,
		e.Key, payload, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert result %s: %w", e.Key, err)
	}
	return nil
}

// IncrementUsage implements Store.IncrementUsage.
func (s *PostgresStore) IncrementUsage(ctx context.Context, key string, now, expiresAt time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO digest_usage (id, count, expires_at) VALUES ($1, 1, $3)
		ON CONFLICT (id) DO UPDATE SET
			count = CASE WHEN digest_usage.expires_at > $2 THEN digest_usage.count + 1 ELSE 1 END,
			expires_at = EXCLUDED.expires_at
		RETURNING count`,
		key, now, expiresAt,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment usage %s: %w", key, err)
	}
	return count, nil
}

// ListUsage implements Store.ListUsage.
func (s *PostgresStore) ListUsage(ctx context.Context) ([]UsageCounter, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, count, expires_at FROM digest_usage`)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var out []UsageCounter
	for rows.Next() {
		var u UsageCounter
		if err := rows.Scan(&u.Key, &u.Count, &u.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountResults implements Store.CountResults.
func (s *PostgresStore) CountResults(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM digest_results WHERE expires_at > $1`, now,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}
