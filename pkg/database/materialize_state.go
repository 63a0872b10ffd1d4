package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/albarami/qnwis/pkg/materialize"
)

// MaterializationStateStore persists each materialization refresh outcome
// to the materialization_states table, upserting by view name. Refresh
// outcomes come from a background cron goroutine (pkg/materialize),
// never the request path, so a synchronous write here is acceptable —
// unlike AuditLog there is no caller latency budget to protect.
type MaterializationStateStore struct {
	client *Client
	logger *slog.Logger
}

// NewMaterializationStateStore builds a store bound to client.
func NewMaterializationStateStore(client *Client) *MaterializationStateStore {
	return &MaterializationStateStore{client: client, logger: slog.Default()}
}

// RecordOutcome upserts the latest refresh outcome for o.Name.
func (s *MaterializationStateStore) RecordOutcome(o materialize.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var lastError any
	var lastSuccessAt any
	if o.Err != nil {
		lastError = o.Err.Error()
	} else {
		lastSuccessAt = o.StartedAt.Add(o.Duration)
	}

	_, err := s.client.DB().ExecContext(ctx, `
		INSERT INTO materialization_states (name, last_started_at, last_duration_ms, last_error, last_success_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			last_started_at = EXCLUDED.last_started_at,
			last_duration_ms = EXCLUDED.last_duration_ms,
			last_error = EXCLUDED.last_error,
			last_success_at = COALESCE(EXCLUDED.last_success_at, materialization_states.last_success_at)`,
		o.Name, o.StartedAt, o.Duration.Milliseconds(), lastError, lastSuccessAt,
	)
	if err != nil {
		s.logger.Error("failed to persist materialization outcome", "view", o.Name, "error", err)
	}
}
