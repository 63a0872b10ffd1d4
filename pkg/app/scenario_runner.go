// Package app wires every concrete collaborator (database, cache,
// agents, LLM provider, verifier) into one pipeline.Driver and HTTP
// server, the job cmd/qnwis/main.go's teacher ancestor does inline in
// main() for its own (ent-backed) services. The wiring here is split
// into its own package because one piece of it — the per-scenario
// agents→debate sub-pipeline the scenario executor drives — is
// genuine business logic, not just constructor calls.
package app

import (
	"context"
	"fmt"

	"github.com/albarami/qnwis/pkg/agents"
	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/metrics"
	"github.com/albarami/qnwis/pkg/models"
	"github.com/albarami/qnwis/pkg/pipeline"
	"github.com/albarami/qnwis/pkg/scenarios"
	"github.com/albarami/qnwis/pkg/synthesis"
)

// ScenarioRunner implements pipeline.ScenarioRunner on top of
// pkg/scenarios.Execute, running each scenario's own agents→debate
// sub-pipeline (no critique pass runs per scenario) with the scenario's
// Assumptions overriding the run's task params (spec §4.3: "a scenario is
// the same question
// answered under a different set of parameter assumptions").
type ScenarioRunner struct {
	catalog     *config.Catalog
	agentRunner *agents.Runner
	stages      *synthesis.Stages
	parallelism int
	poolSize    int
	metrics     *metrics.Metrics
}

// NewScenarioRunner builds a ScenarioRunner. parallelism/poolSize mirror
// config.ScenarioConfig (parallelism <= poolSize, spec §6.4). m may be nil.
func NewScenarioRunner(catalog *config.Catalog, agentRunner *agents.Runner, stages *synthesis.Stages, parallelism, poolSize int, m *metrics.Metrics) *ScenarioRunner {
	return &ScenarioRunner{catalog: catalog, agentRunner: agentRunner, stages: stages, parallelism: parallelism, poolSize: poolSize, metrics: m}
}

// Run satisfies pipeline.ScenarioRunner.
func (r *ScenarioRunner) Run(ctx context.Context, scns []models.Scenario, run *models.RunState, parallel bool, onProgress func(scenarioID, phase string, percent int)) ([]models.ScenarioResult, error) {
	parallelism := r.parallelism
	if !parallel {
		parallelism = 1
	}
	poolSize := r.poolSize
	if poolSize < parallelism {
		poolSize = parallelism
	}

	return scenarios.Execute(ctx, scns, r.work(run), scenarios.Options{
		Parallelism:      parallelism,
		AffinityPoolSize: poolSize,
		OnProgress: func(ev scenarios.ProgressEvent) {
			if onProgress != nil {
				onProgress(ev.ScenarioID, ev.Phase, ev.Percent)
			}
		},
		Metrics: r.metrics,
	})
}

// work builds the scenarios.WorkFunc closing over the parent run's
// task/intent — each invocation clones the run into a scenario-scoped
// RunState whose Task.Params is the parent's params overridden by the
// scenario's Assumptions, so agent prompts/prefetch see the scenario's
// own parameter set without mutating the parent run.
func (r *ScenarioRunner) work(parent *models.RunState) scenarios.WorkFunc {
	return func(ctx context.Context, scenario models.Scenario, slot int, onProgress func(phase string, percent int)) (*models.ScenarioResult, error) {
		intent, ok := r.catalog.Intents[parent.Task.Intent]
		if !ok {
			return nil, fmt.Errorf("%w: %q", config.ErrUnknownIntent, parent.Task.Intent)
		}

		scenarioRun := &models.RunState{
			Task:         scenarioTask(parent.Task, scenario),
			Complexity:   parent.Complexity,
			Prefetched:   parent.Prefetched,
			RAGSnippets:  parent.RAGSnippets,
			StrictVerify: parent.StrictVerify,
		}

		onProgress("agents", 10)
		reports, warnings, err := r.agentRunner.Run(ctx, intent.AgentNames, scenarioRun)
		if err != nil {
			return nil, err
		}
		scenarioRun.AgentReports = reports
		scenarioRun.Warnings = warnings

		onProgress("debate", 60)
		narrative, err := r.stages.Debate(ctx, scenarioRun, func(string) {})
		if err != nil {
			return nil, err
		}
		if narrative == "" {
			narrative = concatNarratives(reports)
		}

		onProgress("synthesis", 90)
		successRate := successRate(len(reports), len(intent.AgentNames))
		confidence := averageConfidence(reports)

		return &models.ScenarioResult{
			ScenarioID:    scenario.ScenarioID,
			SuccessRate:   successRate,
			Confidence:    confidence,
			Findings:      collectFindings(reports),
			SynthesisText: narrative,
		}, nil
	}
}

// scenarioTask clones task with its Params overridden by the scenario's
// Assumptions; the original map is never mutated since a new map is
// always allocated.
func scenarioTask(task models.Task, scenario models.Scenario) models.Task {
	merged := make(map[string]any, len(task.Params)+len(scenario.Assumptions))
	for k, v := range task.Params {
		merged[k] = v
	}
	for k, v := range scenario.Assumptions {
		merged[k] = v
	}
	task.Params = merged
	return task
}

func concatNarratives(reports []models.AgentReport) string {
	text := ""
	for _, r := range reports {
		text += r.Narrative + "\n"
	}
	return text
}

func collectFindings(reports []models.AgentReport) []models.Finding {
	var findings []models.Finding
	for _, r := range reports {
		findings = append(findings, r.Findings...)
	}
	return findings
}

func averageConfidence(reports []models.AgentReport) float64 {
	if len(reports) == 0 {
		return 0
	}
	var sum float64
	for _, r := range reports {
		sum += r.Confidence
	}
	return sum / float64(len(reports))
}

func successRate(succeeded, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(succeeded) / float64(total)
}
