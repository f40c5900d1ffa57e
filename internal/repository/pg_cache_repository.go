package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-discovery-service/internal/cache"
	"github.com/helixir/paper-discovery-service/internal/domain"
)

// Compile-time interface verification.
var _ cache.Store = (*PgCacheRepository)(nil)

// PgCacheRepository persists cached search results in the search_cache table.
type PgCacheRepository struct {
	db DBTX
}

// NewPgCacheRepository creates a new PostgreSQL cache repository.
func NewPgCacheRepository(db DBTX) *PgCacheRepository {
	return &PgCacheRepository{db: db}
}

// Get retrieves a cache entry by key. Absent keys yield domain.ErrNotFound.
func (r *PgCacheRepository) Get(ctx context.Context, key string) (*cache.Entry, error) {
	query := `SELECT cache_key, topic, papers, created_at FROM search_cache WHERE cache_key = $1`

	var entry cache.Entry
	var papersJSON []byte
	err := r.db.QueryRow(ctx, query, key).Scan(&entry.Key, &entry.Topic, &papersJSON, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if err := json.Unmarshal(papersJSON, &entry.Papers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached papers: %w", err)
	}
	return &entry, nil
}

// Put stores a cache entry, replacing any existing entry under the same key.
func (r *PgCacheRepository) Put(ctx context.Context, entry *cache.Entry) error {
	if entry == nil {
		return domain.NewValidationError("entry", "entry cannot be nil")
	}

	papersJSON, err := json.Marshal(entry.Papers)
	if err != nil {
		return fmt.Errorf("failed to marshal cached papers: %w", err)
	}

	query := `
		INSERT INTO search_cache (cache_key, topic, papers, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key) DO UPDATE SET
			topic = EXCLUDED.topic,
			papers = EXCLUDED.papers,
			created_at = EXCLUDED.created_at`

	if _, err := r.db.Exec(ctx, query, entry.Key, entry.Topic, papersJSON, entry.CreatedAt); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// DeleteExpired removes entries created before the given cutoff and returns
// the number of rows removed.
func (r *PgCacheRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM search_cache WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return result.RowsAffected(), nil
}
