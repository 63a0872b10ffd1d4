package dataquery

import "time"

// AuditRecord is one row of the append-only audit log (spec §6.5).
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	RequestID  string         `json:"request_id"`
	UserID     string         `json:"user_id,omitempty"`
	QueryID    string         `json:"query_id"`
	ParamsHash string         `json:"params_hash"`
	RowCount   int            `json:"row_count"`
	ElapsedMs  int64          `json:"elapsed_ms"`
	CacheHit   bool           `json:"cache_hit"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
}

// AuditLog records one audit row per query execution. Implementations
// must not block the request path on slow storage — the database/sql
// implementation in pkg/database writes asynchronously.
type AuditLog interface {
	Record(rec AuditRecord)
}

// NullAuditLog discards every record; used in tests that don't care about
// audit-log side effects.
type NullAuditLog struct{}

// Record is a no-op.
func (NullAuditLog) Record(AuditRecord) {}
