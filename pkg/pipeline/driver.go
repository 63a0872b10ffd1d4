// Package pipeline drives the ministerial decision-support state machine:
// classify → prefetch → rag → scenario_gen → parallel_exec →
// meta_synthesis → agent_selection → agents → debate → critique →
// verify → synthesize → done (spec §4.1).
//
// Grounded on pkg/queue's WorkerPool/Worker split, generalized from "one
// worker pulls sessions off a queue" to "one driver walks one run through
// a tagged-sum state machine": a Driver owns process-wide shared
// resources (registries, the data client, the cancel registry) and a
// run walks the state machine once, driven by a tail loop over the pure
// nextStage transition function — the "tagged sum + pure transition
// function" strategy the spec's own design notes call for.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/metrics"
	"github.com/albarami/qnwis/pkg/models"
	"github.com/albarami/qnwis/pkg/telemetry"
)

// StageFunc executes one stage against the run's mutable state, updating
// run.state in place. A nil error means the stage succeeded.
type StageFunc func(ctx context.Context, run *runContext) error

// runContext carries the one RunState the orchestrator owns, plus the
// per-run collaborators every stage needs. Stage collaborators (scenario
// runner, agent runner, synthesis functions) receive the *models.RunState
// pointer itself; each stage function stores the values they return back
// into it.
type runContext struct {
	ctx            context.Context
	state          *models.RunState
	deps           *Deps
	emit           func(models.ProgressEvent)
	selectedAgents []string
}

// Deps bundles every external collaborator a Driver needs. All fields are
// required except Retrieve, which defaults to a null implementation
// (spec §6.3: "a null implementation is acceptable").
type Deps struct {
	Catalog      *config.Catalog
	Classifier   Classifier
	Prefetch     PrefetchFunc
	Retrieve     RetrieveFunc
	ScenarioGen  ScenarioGenFunc
	Scenarios    ScenarioRunner
	MetaSynth    MetaSynthesizeFunc
	SelectAgents AgentSelectFunc
	Agents       AgentRunner
	Debate       DebateFunc
	Critique     CritiqueFunc
	Verify       VerifyFunc
	Synthesize   SynthesizeFunc
}

// Classifier assigns a Complexity to a Task, the sole input to routing.
type Classifier interface {
	Classify(ctx context.Context, task models.Task) (models.Complexity, error)
}

// PrefetchFunc resolves a set of query IDs through the deterministic data
// layer (pkg/dataquery, behind its cache middleware).
type PrefetchFunc func(ctx context.Context, queryIDs []string, params map[string]any) (map[string]*models.QueryResult, error)

// RetrieveFunc is the rag stage's embedding/context retriever (spec §6.3).
type RetrieveFunc func(ctx context.Context, query string, topK int) ([]models.RAGSnippet, error)

// ScenarioGenFunc produces the policy-variant scenario set for complex
// and critical runs.
type ScenarioGenFunc func(ctx context.Context, run *models.RunState) ([]models.Scenario, error)

// ScenarioRunner executes the fan-out described in spec §4.3. parallel is
// false for complex depth (the generated scenarios run one at a time) and
// true for critical depth with EnableParallelScenarios set.
type ScenarioRunner interface {
	Run(ctx context.Context, scenarios []models.Scenario, run *models.RunState, parallel bool, onProgress func(scenarioID, phase string, percent int)) ([]models.ScenarioResult, error)
}

// MetaSynthesizeFunc combines the scenario results into the narrative
// that seeds agent selection.
type MetaSynthesizeFunc func(ctx context.Context, run *models.RunState) (string, error)

// AgentSelectFunc chooses which registered agents run for this request.
type AgentSelectFunc func(ctx context.Context, run *models.RunState) ([]string, error)

// AgentRunner executes the set of selected agents for the current run
// (spec §4.4), bounded by a per-run concurrency cap.
type AgentRunner interface {
	Run(ctx context.Context, agentNames []string, run *models.RunState) ([]models.AgentReport, []string, error)
}

// DebateFunc synthesizes the cross-agent debate narrative, optionally
// streaming chunks through onChunk.
type DebateFunc func(ctx context.Context, run *models.RunState, onChunk func(string)) (string, error)

// CritiqueFunc produces critique notes over the debate narrative.
type CritiqueFunc func(ctx context.Context, run *models.RunState) ([]string, error)

// VerifyFunc runs the claim verifier over the assembled narrative.
type VerifyFunc func(narrative string, results map[string]*models.QueryResult) models.VerificationReport

// SynthesizeFunc produces the terminal narrative, optionally streaming
// chunks through onChunk before returning the full text.
type SynthesizeFunc func(ctx context.Context, run *models.RunState, onChunk func(string)) (string, error)

// Driver owns shared resources across every run in the process.
type Driver struct {
	deps         *Deps
	timeouts     config.StageTimeouts
	strictVerify bool
	registry     *runRegistry
	metrics      *metrics.Metrics
}

// New builds a Driver. timeouts supplies the per-stage/query/agent
// budgets (spec §6.4); deps.Retrieve may be nil, in which case the rag
// stage emits {status=complete} with an empty payload per spec §6.3.
// strictVerify mirrors config.VerificationConfig.Strict: when set, a
// failed verification is fatal rather than a degrading warning. m may be
// nil, in which case stage metrics are not recorded.
func New(deps *Deps, timeouts config.StageTimeouts, strictVerify bool, m *metrics.Metrics) *Driver {
	if deps.Retrieve == nil {
		deps.Retrieve = func(context.Context, string, int) ([]models.RAGSnippet, error) { return nil, nil }
	}
	return &Driver{deps: deps, timeouts: timeouts, strictVerify: strictVerify, registry: newRunRegistry(), metrics: m}
}

// Run starts one run's state-machine walk in a background goroutine and
// returns its progress-event stream plus a terminal-result pointer
// (populated exactly once the stream's final {stage=done} event has been
// delivered). The channel is unbuffered: events are emitted in order, and
// a slow subscriber applies backpressure to stage execution, matching the
// suspension-point list in spec §5.
func (d *Driver) Run(ctx context.Context, task models.Task) (<-chan models.ProgressEvent, *Handle) {
	runCtx, cancel := context.WithCancel(ctx)
	d.registry.register(task.RequestID, cancel)

	handle := newHandle()
	events := make(chan models.ProgressEvent)
	go func() {
		defer close(events)
		defer d.registry.unregister(task.RequestID)
		defer cancel()
		d.drive(runCtx, task, events, handle)
	}()
	return events, handle
}

// Cancel stops the named run. Idempotent: a second call, or a call after
// the run has already finished, is a no-op (spec §5 cancellation
// semantics).
func (d *Driver) Cancel(requestID string) {
	d.registry.cancel(requestID)
}

// drive walks the state machine to completion, emitting progress events
// as it goes, always finishes with exactly one {stage=done} event, and
// resolves handle to the terminal BriefingResult or FailureReport before
// that event is considered delivered.
func (d *Driver) drive(ctx context.Context, task models.Task, events chan<- models.ProgressEvent, handle *Handle) {
	emit := func(ev models.ProgressEvent) {
		ev.Timestamp = nowFunc()
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	ctx, runSpan := telemetry.StartRun(ctx, task.RequestID, task.Intent)
	defer runSpan.End()

	// An unrecognized intent fails before any stage runs at all (spec §8
	// scenario 6: "single-event stream {done, error, code=UnknownIntent};
	// no stages executed; no audit log entries for queries").
	if _, ok := d.deps.Catalog.Intents[task.Intent]; !ok {
		d.fail(task.RequestID, "UnknownIntent", fmt.Sprintf("%v: %q", config.ErrUnknownIntent, task.Intent), "", emit, handle)
		return
	}

	state := &models.RunState{Task: task, StrictVerify: d.strictVerify}
	run := &runContext{ctx: ctx, state: state, deps: d.deps, emit: emit}

	stage := models.StageClassify
	for stage != models.StageDone {
		select {
		case <-ctx.Done():
			d.fail(task.RequestID, "Cancelled", "run cancelled", "cancelled", emit, handle)
			return
		default:
		}

		emit(models.ProgressEvent{Stage: stage, Status: models.StatusRunning})

		stageCtx, cancelStage := d.contextFor(ctx, stage)
		stageCtx, stageSpan := telemetry.StartStage(stageCtx, string(stage))
		run.ctx = stageCtx
		start := nowFunc()
		err := d.stageFuncs()[stage](stageCtx, run)
		elapsed := nowFunc().Sub(start).Milliseconds()
		stageSpan.End()
		cancelStage()

		d.recordStage(string(stage), elapsed, err == nil)

		if err != nil {
			reason := reasonFor(stageCtx, err)
			code := codeFor(stage, stageCtx, ctx, err)
			emit(models.ProgressEvent{Stage: stage, Status: models.StatusError, LatencyMs: &elapsed, Payload: map[string]string{"error": err.Error()}})
			d.fail(task.RequestID, code, err.Error(), reason, emit, handle)
			return
		}
		emit(models.ProgressEvent{Stage: stage, Status: models.StatusComplete, LatencyMs: &elapsed})

		stage = nextStage(stage, state.Complexity, task.FeatureFlags)
	}

	handle.resolveBriefing(buildBriefing(state))
	emit(models.ProgressEvent{
		Stage:  models.StageDone,
		Status: models.StatusComplete,
		Payload: models.DonePayload{
			RequestID: task.RequestID,
		},
	})
}

// fail resolves handle to a FailureReport and emits the terminal
// {stage=done, status=error} event. Sanitized per spec §7: message is the
// underlying error text (never a stack trace or another run's identifier).
func (d *Driver) fail(requestID, code, message, reason string, emit func(models.ProgressEvent), handle *Handle) {
	handle.resolveFailure(models.FailureReport{
		RequestID: requestID,
		Code:      code,
		Message:   message,
		Reason:    reason,
	})
	emit(models.ProgressEvent{
		Stage:  models.StageDone,
		Status: models.StatusError,
		Payload: models.DonePayload{
			RequestID: requestID,
			Code:      code,
			Message:   message,
			Reason:    reason,
		},
	})
}

// contextFor derives a per-stage context bounded by the configured
// per-stage budget (spec §5 timeouts; §6.4 defaults).
func (d *Driver) contextFor(parent context.Context, stage models.StageName) (context.Context, context.CancelFunc) {
	budget := d.timeouts.StageMs
	if budget <= 0 {
		budget = 30 * time.Second
	}
	return context.WithTimeout(parent, budget)
}

func reasonFor(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout"
	}
	if ctx.Err() == context.Canceled {
		return "cancelled"
	}
	return fmt.Sprintf("%v", err)
}

// nowFunc is indirected so tests can pin time; production always uses
// time.Now.
var nowFunc = time.Now

func (d *Driver) recordStage(stage string, elapsedMs int64, ok bool) {
	if d.metrics == nil {
		return
	}
	status := "complete"
	if !ok {
		status = "error"
	}
	d.metrics.StageLatency.WithLabelValues(stage).Observe(float64(elapsedMs) / 1000)
	d.metrics.StageTotal.WithLabelValues(stage, status).Inc()
}
