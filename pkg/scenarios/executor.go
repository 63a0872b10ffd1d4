// Package scenarios runs a batch of scenarios concurrently under a bounded
// worker pool with per-worker affinity-slot exclusivity, preserving input
// order in the result slice regardless of completion order (spec §4.3).
//
// Grounded on pkg/queue's WorkerPool/Worker pair (fixed worker count, each
// pulling from a shared queue, graceful drain on stop) and
// pkg/agent/orchestrator.SubAgentRunner's channel-as-semaphore idiom,
// adapted here to a fixed affinity-slot pool instead of a concurrency
// counter.
package scenarios

import (
	"context"
	"fmt"
	"sync"

	"github.com/albarami/qnwis/pkg/metrics"
	"github.com/albarami/qnwis/pkg/models"
)

// WorkFunc runs one scenario's sub-pipeline (pkg/app runs agents then
// debate) on the given affinity slot, reporting incremental progress via
// onProgress.
type WorkFunc func(ctx context.Context, scenario models.Scenario, slot int, onProgress func(phase string, percent int)) (*models.ScenarioResult, error)

// ProgressEvent is emitted as workers publish per-scenario progress
// (spec §4.3: "{stage=parallel_exec, status=streaming, ...}").
type ProgressEvent struct {
	ScenarioID string
	Phase      string
	Percent    int
}

// Options configures one Execute call.
type Options struct {
	Parallelism        int           // W: number of concurrent workers
	AffinityPoolSize   int           // |P|: number of affinity slots; W <= |P|
	PerScenarioTimeout func() context.Context
	OnProgress         func(ProgressEvent)
	Metrics            *metrics.Metrics // nil-able; when set, failures increment ScenarioFailures
}

// ErrAllScenariosFailed is returned when every scenario in the batch
// failed — the stage itself fails per spec §4.3.
var ErrAllScenariosFailed = fmt.Errorf("all scenarios failed")

// Execute runs scenarios under a pool of opts.Parallelism workers pulling
// from a queue bounded at 2*Parallelism (spec §4.3 backpressure), each
// holding an exclusive affinity slot in [0, AffinityPoolSize) for the
// duration of its work call. Results are returned in input order. If ctx
// is cancelled, all in-flight workers observe it at their next suspension
// point and the remaining queued scenarios are reported as
// ScenarioFailure{reason=cancelled}.
func Execute(ctx context.Context, scns []models.Scenario, work WorkFunc, opts Options) ([]models.ScenarioResult, error) {
	if opts.Parallelism > opts.AffinityPoolSize {
		return nil, fmt.Errorf("parallelism %d exceeds affinity pool size %d", opts.Parallelism, opts.AffinityPoolSize)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}

	results := make([]models.ScenarioResult, len(scns))

	type job struct {
		index    int
		scenario models.Scenario
	}
	queue := make(chan job, 2*opts.Parallelism)
	slots := make(chan int, opts.AffinityPoolSize)
	for i := 0; i < opts.AffinityPoolSize; i++ {
		slots <- i
	}

	var wg sync.WaitGroup
	for w := 0; w < opts.Parallelism; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				results[j.index] = runOne(ctx, j.scenario, work, slots, opts.OnProgress, opts.Metrics)
			}
		}()
	}

	// Enqueuer: blocks on the bounded queue, naturally throttling
	// scenario generation to executor throughput (spec §4.3 backpressure).
	// On cancellation, remaining un-enqueued scenarios are reported
	// directly as cancelled without ever touching a worker.
enqueue:
	for i, s := range scns {
		select {
		case queue <- job{index: i, scenario: s}:
		case <-ctx.Done():
			for j := i; j < len(scns); j++ {
				results[j] = models.ScenarioResult{
					ScenarioID: scns[j].ScenarioID,
					Failure:    &models.ScenarioFailure{ScenarioID: scns[j].ScenarioID, Reason: "cancelled"},
				}
			}
			break enqueue
		}
	}
	close(queue)
	wg.Wait()

	allFailed := true
	for _, r := range results {
		if !r.Failed() {
			allFailed = false
			break
		}
	}
	if allFailed && len(results) > 0 {
		return results, ErrAllScenariosFailed
	}
	return results, nil
}

// runOne acquires a free affinity slot, runs work, and always releases the
// slot — even on panic recovery, a failed scenario must not leak a slot.
// m may be nil, in which case scenario failures are not recorded to
// prometheus.
func runOne(ctx context.Context, scenario models.Scenario, work WorkFunc, slots chan int, onProgress func(ProgressEvent), m *metrics.Metrics) (result models.ScenarioResult) {
	result.ScenarioID = scenario.ScenarioID

	defer func() {
		if result.Failed() && m != nil {
			m.ScenarioFailures.Inc()
		}
	}()

	if ctx.Err() != nil {
		result.Failure = &models.ScenarioFailure{ScenarioID: scenario.ScenarioID, Reason: "cancelled"}
		return result
	}

	var slot int
	select {
	case slot = <-slots:
	case <-ctx.Done():
		result.Failure = &models.ScenarioFailure{ScenarioID: scenario.ScenarioID, Reason: "cancelled"}
		return result
	}
	defer func() { slots <- slot }()

	defer func() {
		if r := recover(); r != nil {
			result.Failure = &models.ScenarioFailure{ScenarioID: scenario.ScenarioID, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	report := func(phase string, percent int) {
		if onProgress != nil {
			onProgress(ProgressEvent{ScenarioID: scenario.ScenarioID, Phase: phase, Percent: percent})
		}
	}

	out, err := work(ctx, scenario, slot, report)
	if err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		result.Failure = &models.ScenarioFailure{ScenarioID: scenario.ScenarioID, Reason: reason}
		return result
	}
	if out == nil {
		result.Failure = &models.ScenarioFailure{ScenarioID: scenario.ScenarioID, Reason: "empty result"}
		return result
	}
	out.ScenarioID = scenario.ScenarioID
	return *out
}
