package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/albarami/qnwis/pkg/dataquery/cachekey"
	"github.com/albarami/qnwis/pkg/metrics"
	"github.com/albarami/qnwis/pkg/models"
)

// Fetcher is the underlying call the middleware wraps on a cache miss —
// in pkg/app, a closure over *dataquery.Client.Execute.
type Fetcher func(ctx context.Context, queryID string, params map[string]any) (*models.QueryResult, error)

// Middleware is the read-through query-result cache. Reads: look up by
// deterministic key, return a defensive copy on hit; on miss, call the
// underlying fetcher, write the result (best-effort), then return.
type Middleware struct {
	store      Store
	namespace  string
	defaultTTL time.Duration
	op         string
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// New builds a cache middleware. op distinguishes key namespaces between
// different callers sharing one Store (e.g. "query" vs "scenario"). m may
// be nil, in which case hit/miss counters are not recorded.
func New(store Store, namespace string, defaultTTL time.Duration, op string, m *metrics.Metrics) *Middleware {
	return &Middleware{
		store:      store,
		namespace:  namespace,
		defaultTTL: defaultTTL,
		op:         op,
		logger:     slog.Default(),
		metrics:    m,
	}
}

// Result is the outcome of a Get-through-fetch call, including whether the
// value came from cache. A hit is counted in metrics only; no audit row is
// written for it.
type Result struct {
	QueryResult *models.QueryResult
	CacheHit    bool
}

// GetOrFetch returns the cached result for (queryID, params) if present and
// unexpired; otherwise calls fetch, caches the result with ttl (or the
// middleware default when ttl<=0), and returns it. Cache write failures are
// logged but never fail the call (spec §4.2: "best-effort").
func (m *Middleware) GetOrFetch(ctx context.Context, queryID string, params map[string]any, ttl time.Duration, fetch Fetcher) (Result, error) {
	key := cachekey.Build(m.namespace, m.op, queryID, params)

	if cached, ok, err := m.store.Get(ctx, key); err != nil {
		m.logger.Warn("cache read failed, falling through to fetch", "key", key, "error", err)
	} else if ok {
		m.recordHit(true)
		return Result{QueryResult: cached, CacheHit: true}, nil
	}
	m.recordHit(false)

	result, err := fetch(ctx, queryID, params)
	if err != nil {
		return Result{}, err
	}

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if err := m.store.Set(ctx, key, result, ttl); err != nil {
		m.logger.Warn("cache write failed", "key", key, "error", err)
	}

	return Result{QueryResult: result, CacheHit: false}, nil
}

func (m *Middleware) recordHit(hit bool) {
	if m.metrics == nil {
		return
	}
	if hit {
		m.metrics.CacheHits.Inc()
	} else {
		m.metrics.CacheMisses.Inc()
	}
}

// Invalidate drops every cached entry for queryID across all param sets,
// used on an externally signalled data-load event (spec §4.2 Invalidation).
func (m *Middleware) Invalidate(ctx context.Context, queryID string) error {
	prefix := m.namespace + ":qr:" + m.op + ":" + queryID + ":"
	return m.store.InvalidatePrefix(ctx, prefix)
}
