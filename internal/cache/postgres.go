package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dimitrije/communities/internal/database"
	"github.com/jackc/pgx/v5"
)

// PostgresStore shares entries between all instances through the
// cache_entries table.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.Pool.QueryRow(ctx, `
		SELECT value FROM cache_entries
		WHERE key = $1 AND expires_at > NOW()
	`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES ($1, $2, NOW() + $3::interval)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, ttl)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// SetNX inserts the entry, or takes over an expired one, in one statement.
// When a live entry exists the upsert returns no row and the current value
// is read back. If that entry expires in between, the insert is retried.
func (s *PostgresStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var stored string
		err := s.db.Pool.QueryRow(ctx, `
			INSERT INTO cache_entries (key, value, expires_at)
			VALUES ($1, $2, NOW() + $3::interval)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
			WHERE cache_entries.expires_at <= NOW()
			RETURNING value
		`, key, value, ttl).Scan(&stored)
		if err == nil {
			return true, "", nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, "", fmt.Errorf("cache setnx %s: %w", key, err)
		}

		existing, found, err := s.Get(ctx, key)
		if err != nil {
			return false, "", err
		}
		if found {
			return false, existing, nil
		}
	}
	return false, "", fmt.Errorf("cache setnx %s: entry churned during reservation", key)
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Cleanup purges expired rows.
func (s *PostgresStore) Cleanup(ctx context.Context) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= NOW()`)
	return err
}
