// Package cache is the query-result cache middleware sitting in front of
// the deterministic data client: deterministic keys (pkg/dataquery/cachekey),
// TTL expiry, best-effort writes. Generalized from the teacher's
// pkg/runbook single-TTL string cache to a per-entry TTL, typed
// *models.QueryResult cache with a pluggable Store backend.
package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/albarami/qnwis/pkg/models"
)

// Store is the pluggable cache backend. Two implementations are provided:
// MemoryStore (single-process, default) and RedisStore (multi-pod tier).
type Store interface {
	// Get returns the cached result for key, or ok=false on miss/expiry.
	Get(ctx context.Context, key string) (*models.QueryResult, bool, error)
	// Set writes result under key with the given TTL, replacing any prior
	// entry atomically (spec §3 CacheEntry invariant).
	Set(ctx context.Context, key string, result *models.QueryResult, ttl time.Duration) error
	// InvalidatePrefix removes every key with the given prefix (used for
	// data-load-triggered invalidation scoped to one query_id).
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// MemoryStore is a thread-safe in-process cache, backed by
// patrickmn/go-cache's per-item-TTL map with a background janitor that
// sweeps expired entries (the same library pkg/runbook.Cache's teacher
// ancestor wires for its own TTL cache, generalized here to per-entry
// TTLs and *models.QueryResult values instead of a single cache-wide
// expiration).
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates an empty in-process cache. The janitor sweeps
// expired entries every minute; Get also double-checks expiry on read,
// so the sweep interval only bounds memory growth, not read correctness.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

// Get returns a defensive copy of the cached result, since callers must
// never be able to mutate a value shared across concurrent readers.
func (s *MemoryStore) Get(_ context.Context, key string) (*models.QueryResult, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.(*models.QueryResult).Clone(), true, nil
}

// Set replaces any prior entry for key atomically (go-cache's internal
// mutex serializes writes to its item map). A non-positive ttl means the
// entry is already expired, so it's removed rather than stored — go-cache
// treats a zero/negative duration as "never expires", the opposite of
// what an already-expired write means here.
func (s *MemoryStore) Set(_ context.Context, key string, result *models.QueryResult, ttl time.Duration) error {
	if ttl <= 0 {
		s.c.Delete(key)
		return nil
	}
	s.c.Set(key, result.Clone(), ttl)
	return nil
}

// InvalidatePrefix removes every key beginning with prefix.
func (s *MemoryStore) InvalidatePrefix(_ context.Context, prefix string) error {
	for k := range s.c.Items() {
		if strings.HasPrefix(k, prefix) {
			s.c.Delete(k)
		}
	}
	return nil
}
