// Package cache provides a time-boxed result cache for search responses.
//
// Cache keys are content-addressed: a SHA-256 over the canonical form of
// every request parameter that affects the result set. Two windows govern
// an entry's life: the freshness window decides whether a stored entry may
// be served as a hit, and the expiry window is the hard TTL after which
// stores purge the row entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/ranking"
)

// Params are the request parameters that determine a cache key. Requests
// that differ in any field must never share an entry.
type Params struct {
	Topic            string               `json:"topic"`
	Sources          []domain.SourceType  `json:"sources"`
	MaxResults       int                  `json:"max_results"`
	IncludePreprints bool                 `json:"include_preprints"`
	OpenAccessOnly   bool                 `json:"open_access_only"`
	FromYear         int                  `json:"from_year"`
	ToYear           int                  `json:"to_year"`
	Weights          ranking.Weights      `json:"weights"`
}

// ComputeKey derives the canonical cache key for the given parameters.
// The topic is case- and whitespace-insensitive and the source order is
// irrelevant: equivalent requests hash identically.
func ComputeKey(p Params) string {
	canonical := p
	canonical.Topic = strings.ToLower(strings.TrimSpace(p.Topic))
	canonical.Sources = append([]domain.SourceType(nil), p.Sources...)
	sort.Slice(canonical.Sources, func(i, j int) bool {
		return canonical.Sources[i] < canonical.Sources[j]
	})

	// Struct field order is fixed, so the JSON encoding is canonical.
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Entry is one cached result set.
type Entry struct {
	Key       string
	Topic     string
	Papers    []domain.CanonicalPaper
	CreatedAt time.Time
}

// Store is the persistence interface for cache entries. Get returns
// domain.ErrNotFound when no entry exists for the key.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Cache gates a Store behind the freshness and expiry windows.
type Cache struct {
	store     Store
	freshness time.Duration
	expiry    time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a cache over the given store. Freshness must not exceed
// expiry; config validation enforces this before the cache is built.
func New(store Store, freshness, expiry time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{
		store:     store,
		freshness: freshness,
		expiry:    expiry,
		logger:    logger.With().Str("component", "cache").Logger(),
		now:       time.Now,
	}
}

// Lookup returns the cached papers for the parameters if a fresh entry
// exists. Store errors are treated as misses: the cache never makes a
// search fail.
func (c *Cache) Lookup(ctx context.Context, p Params) ([]domain.CanonicalPaper, bool) {
	key := ComputeKey(p)

	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn().Err(err).Str("cache_key", key).Msg("cache read failed")
		}
		return nil, false
	}

	if c.now().Sub(entry.CreatedAt) > c.freshness {
		return nil, false
	}
	return entry.Papers, true
}

// Save stores the papers under the parameters' key. Empty result sets are
// never cached: a transient source outage must not pin an empty answer for
// the whole freshness window. Write failures are logged, not returned.
func (c *Cache) Save(ctx context.Context, p Params, papers []domain.CanonicalPaper) {
	if len(papers) == 0 {
		return
	}

	entry := &Entry{
		Key:       ComputeKey(p),
		Topic:     strings.ToLower(strings.TrimSpace(p.Topic)),
		Papers:    papers,
		CreatedAt: c.now().UTC(),
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.logger.Warn().Err(err).Str("cache_key", entry.Key).Msg("cache write failed")
	}
}

// PurgeExpired removes entries past the expiry window. Intended to run
// periodically from the server's background housekeeping loop.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	return c.store.DeleteExpired(ctx, c.now().UTC().Add(-c.expiry))
}
