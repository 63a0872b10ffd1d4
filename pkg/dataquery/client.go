// Package dataquery is the deterministic data layer: it turns
// (query_id, params) into a *models.QueryResult in bounded time, with
// caching and retry, and without letting any caller influence the
// rendered query beyond declared parameter bindings (spec §4.2).
//
// Grounded on pkg/mcp.Client's CallTool/callToolOnce/recreateSession
// retry-once shape: a first attempt, error classification, one jittered
// retry. The jittered sleep itself is replaced by cenkalti/backoff, and a
// per-dataset sony/gobreaker circuit breaker sits in front of Engine.Run
// so a dataset in sustained failure stops being hammered between retries.
package dataquery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/dataquery/cachekey"
	"github.com/albarami/qnwis/pkg/metrics"
	"github.com/albarami/qnwis/pkg/models"
)

// DefaultRowCap is the per-query row cap (spec §4.2); exceeding it fails
// with ErrResultTooLarge rather than buffering unbounded memory.
const DefaultRowCap = 50_000

// Client executes registered queries against an Engine, enforcing the row
// cap, retrying once on transient backend failure, and recording one audit
// row per call. It does not itself cache — pkg/dataquery/cache.Middleware
// wraps Client.Execute for that.
type Client struct {
	registry *config.QueryRegistry
	engine   Engine
	pool     *ConnectionPool
	audit    AuditLog
	rowCap   int
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewClient builds a deterministic data client. requestID/userID are
// supplied per call through Execute's ExecuteArgs; this constructor only wires shared,
// process-wide infrastructure. m may be nil, in which case query/breaker
// metrics are not recorded.
func NewClient(registry *config.QueryRegistry, engine Engine, pool *ConnectionPool, audit AuditLog, m *metrics.Metrics) *Client {
	if audit == nil {
		audit = NullAuditLog{}
	}
	return &Client{
		registry: registry,
		engine:   engine,
		pool:     pool,
		audit:    audit,
		rowCap:   DefaultRowCap,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   slog.Default(),
		metrics:  m,
	}
}

func (c *Client) breakerFor(dataset string) *gobreaker.CircuitBreaker {
	if b, ok := c.breakers[dataset]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        dataset,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.metrics == nil {
				return
			}
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1.0
			}
			c.metrics.CircuitBreakerOpen.WithLabelValues(name).Set(open)
		},
	})
	c.breakers[dataset] = b
	return b
}

// ExecuteArgs carries the per-call identity the audit log records
// alongside the query outcome.
type ExecuteArgs struct {
	RequestID string
	UserID    string
}

// Execute validates and binds params against the registered definition,
// runs the query through the engine (with pool acquisition, one retry on
// transient failure, and a per-dataset circuit breaker), enforces the row
// cap, and records an audit row. cache_hit is always false here: a cache
// hit is answered by the cache middleware without reaching Execute, and no
// audit row is written for it.
func (c *Client) Execute(ctx context.Context, queryID string, params map[string]any, args ExecuteArgs) (*models.QueryResult, error) {
	start := time.Now()

	def, err := c.registry.Get(queryID)
	if err != nil {
		c.recordAudit(args, queryID, params, 0, start, false, "error", err)
		return nil, err
	}

	bound, err := BindParams(def, params)
	if err != nil {
		c.recordAudit(args, queryID, params, 0, start, false, "error", err)
		return nil, err
	}

	result, err := c.runWithRetry(ctx, def, bound)
	if err != nil {
		c.recordAudit(args, queryID, params, 0, start, false, "error", err)
		return nil, err
	}

	c.recordAudit(args, queryID, params, result.RowCount, start, false, "ok", nil)
	return result, nil
}

// runWithRetry acquires a pool slot, runs the query through the dataset's
// circuit breaker, and retries exactly once with a fresh connection on
// failure (spec §4.2: "the client retries once with a fresh connection").
func (c *Client) runWithRetry(ctx context.Context, def *models.QueryDefinition, params map[string]any) (*models.QueryResult, error) {
	attempt := func() (*models.QueryResult, error) {
		release, err := c.pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, err)
		}
		defer release()

		out, err := c.breakerFor(def.Dataset).Execute(func() (any, error) {
			return c.runOnce(ctx, def, params)
		})
		if err != nil {
			return nil, err
		}
		return out.(*models.QueryResult), nil
	}

	boff := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)

	var result2 *models.QueryResult
	var lastErr error
	retryErr := backoff.Retry(func() error {
		if lastErr != nil {
			c.logger.Warn("query execution failed, retrying with fresh connection",
				"query_id", def.QueryID, "error", lastErr)
		}
		result2, lastErr = attempt()
		return lastErr
	}, boff)
	if retryErr != nil {
		// Wrap retryErr with %w too (not %v): a deterministic failure like
		// ErrResultTooLarge reproduces on the retry, and codeFor's
		// errors.Is chain (pkg/pipeline/result.go) needs to see through
		// this wrap to classify it correctly instead of collapsing every
		// retry failure into the generic BackendFailure code (spec §7).
		return nil, fmt.Errorf("%w: %w", ErrBackendFailure, retryErr)
	}
	return result2, nil
}

// runOnce runs the query once and buffers rows up to the cap.
func (c *Client) runOnce(ctx context.Context, def *models.QueryDefinition, params map[string]any) (*models.QueryResult, error) {
	queryStart := time.Now()
	if c.metrics != nil {
		defer func() {
			c.metrics.QueryLatency.WithLabelValues(def.QueryID).Observe(time.Since(queryStart).Seconds())
		}()
	}

	iter, err := c.engine.Run(ctx, def, params, DataQueryTimeout(ctx))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	rows := make([]models.Row, 0, 256)
	for iter.Next(ctx) {
		if len(rows) >= c.rowCap {
			return nil, fmt.Errorf("%w: exceeded %d rows for query %q", ErrResultTooLarge, c.rowCap, def.QueryID)
		}
		rows = append(rows, iter.Row())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	return &models.QueryResult{
		QueryID:    def.QueryID,
		ParamsUsed: params,
		Rows:       rows,
		Provenance: models.Provenance{Dataset: def.Dataset, Source: def.QueryID},
		Freshness:  models.Freshness{AsOf: now, Age: 0},
		RowCount:   len(rows),
	}, nil
}

func (c *Client) recordAudit(args ExecuteArgs, queryID string, params map[string]any, rowCount int, start time.Time, cacheHit bool, status string, err error) {
	rec := AuditRecord{
		Timestamp:  start,
		RequestID:  args.RequestID,
		UserID:     args.UserID,
		QueryID:    queryID,
		ParamsHash: safeHash16(params),
		RowCount:   rowCount,
		ElapsedMs:  time.Since(start).Milliseconds(),
		CacheHit:   cacheHit,
		Status:     status,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	c.audit.Record(rec)
}

// safeHash16 hashes params for the audit log even when they fail to
// marshal (e.g. an unvalidated caller value on a ParamValidation error
// path) — the audit row must never itself crash the request.
func safeHash16(params map[string]any) (hash string) {
	defer func() {
		if recover() != nil {
			hash = "unhashable"
		}
	}()
	return cachekey.Hash16(params)
}

// DataQueryTimeout derives the per-query statement timeout from ctx's
// deadline when present, otherwise falls back to a fixed 5s;
// config.StageTimeouts.QueryMs is not consulted.
func DataQueryTimeout(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 5 * time.Second
}
