package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/brandsync/brandsync-api/internal/store"
)

// PostgresKV implements the store.KV interface using a single
// app_state table of serialized documents keyed by well-known strings.
// Each Set replaces the whole document; readers observe the last
// committed write (last writer wins across processes).
type PostgresKV struct {
	db store.DBTX
}

// NewPostgresKV creates a new PostgresKV.
func NewPostgresKV(db store.DBTX) *PostgresKV {
	return &PostgresKV{
		db: db,
	}
}

// Get returns the document stored under key.
// Returns store.ErrKeyNotFound if no document exists for the key.
func (s *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value
		FROM app_state
		WHERE key = $1
	`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrKeyNotFound, key)
		}
		return nil, store.NewStoreError(key, "get", "failed to read document", MapError(err))
	}

	return value, nil
}

// Set stores the document under key, replacing any prior value.
func (s *PostgresKV) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO app_state (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	if err != nil {
		return store.NewStoreError(key, "set", "failed to write document", MapError(err))
	}

	return nil
}

// Delete removes the document stored under key.
// Deleting a missing key is a no-op.
func (s *PostgresKV) Delete(ctx context.Context, key string) error {
	query := `
		DELETE FROM app_state
		WHERE key = $1
	`

	_, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return store.NewStoreError(key, "delete", "failed to delete document", MapError(err))
	}

	return nil
}
