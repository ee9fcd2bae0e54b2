package advicestore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/daily-advisor/internal/domain/advice"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS advice_kv (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS advice_kv_expires_at_idx ON advice_kv (expires_at);
`

// PostgresStore implements advice.KVStore using pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store and ensures its table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (r *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.pool.QueryRow(ctx, `
		SELECT value
		FROM advice_kv
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (r *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO advice_kv (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, expiryFor(ttl))
	return err
}

// SetNX inserts key unless a live row exists. Expired rows are taken over.
func (r *PostgresStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var stored string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO advice_kv (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		WHERE advice_kv.expires_at IS NOT NULL AND advice_kv.expires_at <= now()
		RETURNING key
	`, key, value, expiryFor(ttl)).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (r *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM advice_kv WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func expiryFor(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := time.Now().Add(ttl).UTC()
	return &at
}

var _ advice.KVStore = (*PostgresStore)(nil)
