// Package materialize runs the scheduled "create if absent, refresh
// concurrently" job per declarative materialized-view spec (spec §4.2,
// §4.6). Grounded on pkg/queue's runOrphanDetection heartbeat-goroutine
// shape (a ticking background goroutine with a stopCh/sync.Once
// shutdown), with robfig/cron/v3 driving each view's own schedule instead
// of one fixed interval.
package materialize

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/albarami/qnwis/pkg/metrics"
	"github.com/albarami/qnwis/pkg/models"
)

// Materializer performs the engine-specific work for one view: ensure the
// backing relation exists, refresh it concurrently (readers continue to
// see the previous snapshot during refresh), and ensure its declared
// indexes exist. Supplied by the storage layer the core treats as an
// external collaborator (spec §1).
type Materializer interface {
	EnsureExists(ctx context.Context, spec *models.MaterializationSpec) error
	RefreshConcurrently(ctx context.Context, spec *models.MaterializationSpec) error
	EnsureIndexes(ctx context.Context, spec *models.MaterializationSpec) error
}

// Outcome records one refresh attempt for the audit log / StateStore.
type Outcome struct {
	Name      string
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// StateStore persists each refresh outcome. Backed by plain SQL
// (pkg/database.MaterializationStateStore) in production;
// a NullStateStore discards in tests that don't assert on it.
type StateStore interface {
	RecordOutcome(o Outcome)
}

// NullStateStore discards every outcome.
type NullStateStore struct{}

// RecordOutcome is a no-op.
func (NullStateStore) RecordOutcome(Outcome) {}

// Refresher schedules and runs refreshes for every registered
// MaterializationSpec according to its own cron schedule.
type Refresher struct {
	specs        map[string]*models.MaterializationSpec
	materializer Materializer
	state        StateStore
	cron         *cron.Cron
	logger       *slog.Logger
	metrics      *metrics.Metrics

	stopOnce sync.Once
}

// New builds a Refresher over the given spec set. RefreshSchedule on each
// spec is a standard 5-field cron expression. m may be nil, in which case
// refresh outcomes are not recorded to prometheus.
func New(specs map[string]*models.MaterializationSpec, materializer Materializer, state StateStore, m *metrics.Metrics) *Refresher {
	if state == nil {
		state = NullStateStore{}
	}
	return &Refresher{
		specs:        specs,
		materializer: materializer,
		state:        state,
		cron:         cron.New(),
		logger:       slog.Default(),
		metrics:      m,
	}
}

// Start registers every spec's schedule and begins the cron loop. It is
// safe to call RunOnce directly (e.g. at startup, before the first
// scheduled tick) to guarantee every view exists before the first user
// request reads through it.
func (r *Refresher) Start(ctx context.Context) error {
	for _, spec := range r.specs {
		spec := spec
		if _, err := r.cron.AddFunc(spec.RefreshSchedule, func() {
			r.runOne(ctx, spec)
		}); err != nil {
			return err
		}
	}
	r.cron.Start()
	return nil
}

// Stop halts the cron scheduler. Idempotent.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		ctx := r.cron.Stop()
		<-ctx.Done()
	})
}

// RunOnce runs every registered spec's refresh immediately and
// synchronously, regardless of its cron schedule — used at startup and by
// tests.
func (r *Refresher) RunOnce(ctx context.Context) {
	for _, spec := range r.specs {
		r.runOne(ctx, spec)
	}
}

// runOne performs create-if-absent → concurrent-refresh → ensure-indexes
// for one spec. Failures are logged and recorded; they never propagate to
// a caller, and are retried at the next scheduled tick (spec §4.6).
func (r *Refresher) runOne(ctx context.Context, spec *models.MaterializationSpec) {
	start := time.Now()
	err := r.refreshSequence(ctx, spec)
	outcome := Outcome{Name: spec.Name, StartedAt: start, Duration: time.Since(start), Err: err}
	r.state.RecordOutcome(outcome)

	if err != nil {
		r.recordRun(spec.Name, "failure")
		r.logger.Error("materialization refresh failed, will retry next tick",
			"view", spec.Name, "error", err)
		return
	}
	r.recordRun(spec.Name, "success")
	r.logger.Info("materialization refreshed", "view", spec.Name, "duration", outcome.Duration)
}

func (r *Refresher) recordRun(view, outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.MaterializationRun.WithLabelValues(view, outcome).Inc()
}

func (r *Refresher) refreshSequence(ctx context.Context, spec *models.MaterializationSpec) error {
	if err := r.materializer.EnsureExists(ctx, spec); err != nil {
		return err
	}
	if err := r.materializer.RefreshConcurrently(ctx, spec); err != nil {
		return err
	}
	return r.materializer.EnsureIndexes(ctx, spec)
}
