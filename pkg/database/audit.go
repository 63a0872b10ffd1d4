package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/albarami/qnwis/pkg/dataquery"
)

// auditQueueSize bounds how many audit records may be buffered; once it is
// full, Record drops each new record — the audit log must never
// apply backpressure to a query's request path (dataquery.AuditLog's own
// "must not block" contract).
const auditQueueSize = 1024

// AuditLog persists dataquery.AuditRecord rows to Postgres asynchronously:
// Record enqueues onto a buffered channel and returns immediately; a
// single background goroutine drains it. Grounded on the fan-out-via-
// channel idiom pkg/events.Hub already uses for the same "never block the
// caller" requirement.
type AuditLog struct {
	queue  chan dataquery.AuditRecord
	client *Client
	logger *slog.Logger
	done   chan struct{}
}

// NewAuditLog starts the background writer goroutine. Close must be
// called during shutdown to drain the queue before the process exits.
func NewAuditLog(client *Client) *AuditLog {
	a := &AuditLog{
		queue:  make(chan dataquery.AuditRecord, auditQueueSize),
		client: client,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues rec for asynchronous persistence. A full queue drops the
// record (logged) rather than blocking the caller's query path.
func (a *AuditLog) Record(rec dataquery.AuditRecord) {
	select {
	case a.queue <- rec:
	default:
		a.logger.Warn("audit queue full, dropping record", "query_id", rec.QueryID, "request_id", rec.RequestID)
	}
}

// Close stops accepting new records and waits for the queue to drain.
func (a *AuditLog) Close() {
	close(a.queue)
	<-a.done
}

func (a *AuditLog) run() {
	defer close(a.done)
	for rec := range a.queue {
		a.write(rec)
	}
}

func (a *AuditLog) write(rec dataquery.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := a.client.DB().ExecContext(ctx, `
		INSERT INTO audit_log_entries
			(occurred_at, request_id, user_id, query_id, params_hash, row_count, elapsed_ms, cache_hit, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.Timestamp, rec.RequestID, nullable(rec.UserID), rec.QueryID, rec.ParamsHash,
		rec.RowCount, rec.ElapsedMs, rec.CacheHit, rec.Status, nullable(rec.Error),
	)
	if err != nil {
		a.logger.Error("failed to persist audit record", "query_id", rec.QueryID, "error", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
