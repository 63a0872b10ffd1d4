package pipeline

import (
	"context"
	"fmt"

	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/dataquery"
	"github.com/albarami/qnwis/pkg/models"
)

// stageFuncs returns the stage dispatch table. Built fresh per call (the
// map itself is cheap and closes over d) rather than stored, so tests can
// swap d.deps between runs without rebuilding a Driver.
func (d *Driver) stageFuncs() map[models.StageName]StageFunc {
	return map[models.StageName]StageFunc{
		models.StageClassify:       d.runClassify,
		models.StagePrefetch:       d.runPrefetch,
		models.StageRAG:            d.runRAG,
		models.StageScenarioGen:    d.runScenarioGen,
		models.StageParallelExec:   d.runParallelExec,
		models.StageMetaSynthesis:  d.runMetaSynthesis,
		models.StageAgentSelection: d.runAgentSelection,
		models.StageAgents:         d.runAgents,
		models.StageDebate:         d.runDebate,
		models.StageCritique:       d.runCritique,
		models.StageVerify:         d.runVerify,
		models.StageSynthesize:     d.runSynthesize,
	}
}

func (d *Driver) runClassify(ctx context.Context, run *runContext) error {
	intent, ok := d.deps.Catalog.Intents[run.state.Task.Intent]
	if !ok {
		return fmt.Errorf("%w: %q", config.ErrUnknownIntent, run.state.Task.Intent)
	}
	if _, err := dataquery.ValidateParams(intent.ParamSchema, run.state.Task.Params); err != nil {
		return err
	}
	complexity, err := d.deps.Classifier.Classify(ctx, run.state.Task)
	if err != nil {
		return err
	}
	run.state.Complexity = complexity
	return nil
}

func (d *Driver) runPrefetch(ctx context.Context, run *runContext) error {
	intent := d.deps.Catalog.Intents[run.state.Task.Intent]
	results, err := d.deps.Prefetch(ctx, intent.PrefetchQueryIDs, run.state.Task.Params)
	if err != nil {
		return err
	}
	run.state.Prefetched = results
	return nil
}

func (d *Driver) runRAG(ctx context.Context, run *runContext) error {
	snippets, err := d.deps.Retrieve(ctx, run.state.Task.QuestionText, 5)
	if err != nil {
		return err
	}
	run.state.RAGSnippets = snippets
	return nil
}

func (d *Driver) runScenarioGen(ctx context.Context, run *runContext) error {
	scenarios, err := d.deps.ScenarioGen(ctx, run.state)
	if err != nil {
		return err
	}
	run.state.Scenarios = scenarios
	return nil
}

func (d *Driver) runParallelExec(ctx context.Context, run *runContext) error {
	parallel := runsScenariosInParallel(run.state.Complexity, run.state.Task.FeatureFlags)
	onProgress := func(scenarioID, phase string, percent int) {
		run.emit(models.ProgressEvent{
			Stage:  models.StageParallelExec,
			Status: models.StatusStreaming,
			Payload: map[string]any{
				"scenario_id": scenarioID,
				"phase":       phase,
				"percent":     percent,
			},
		})
	}
	results, err := d.deps.Scenarios.Run(ctx, run.state.Scenarios, run.state, parallel, onProgress)
	if err != nil {
		return err
	}
	run.state.ScenarioResults = results
	for _, r := range results {
		if r.Failed() {
			run.state.Warnings = append(run.state.Warnings, "scenario_failed:"+r.ScenarioID)
		}
	}
	return nil
}

func (d *Driver) runMetaSynthesis(ctx context.Context, run *runContext) error {
	text, err := d.deps.MetaSynth(ctx, run.state)
	if err != nil {
		return err
	}
	run.state.MetaSynthesis = text
	return nil
}

func (d *Driver) runAgentSelection(ctx context.Context, run *runContext) error {
	names, err := d.deps.SelectAgents(ctx, run.state)
	if err != nil {
		return err
	}
	const maxConcurrentAgents = 8
	if len(names) > maxConcurrentAgents {
		names = names[:maxConcurrentAgents]
	}
	run.selectedAgents = names
	return nil
}

func (d *Driver) runAgents(ctx context.Context, run *runContext) error {
	names := run.selectedAgents
	if names == nil {
		if intent := d.deps.Catalog.Intents[run.state.Task.Intent]; intent != nil {
			names = intent.AgentNames
		}
	}
	reports, warnings, err := d.deps.Agents.Run(ctx, names, run.state)
	if err != nil {
		return err
	}
	run.state.AgentReports = reports
	run.state.Warnings = append(run.state.Warnings, warnings...)
	return nil
}

func (d *Driver) runDebate(ctx context.Context, run *runContext) error {
	onChunk := func(chunk string) {
		run.emit(models.ProgressEvent{Stage: models.StageDebate, Status: models.StatusStreaming, Payload: chunk})
	}
	text, err := d.deps.Debate(ctx, run.state, onChunk)
	if err != nil {
		return err
	}
	run.state.DebateNarrative = text
	return nil
}

func (d *Driver) runCritique(ctx context.Context, run *runContext) error {
	notes, err := d.deps.Critique(ctx, run.state)
	if err != nil {
		return err
	}
	run.state.CritiqueNotes = notes
	return nil
}

func (d *Driver) runVerify(ctx context.Context, run *runContext) error {
	narrative := verificationNarrative(run.state)
	report := d.deps.Verify(narrative, run.state.Prefetched)
	run.state.Verification = &report
	if !report.OK {
		if run.state.StrictVerify {
			return fmt.Errorf("verification failed under strict mode")
		}
		run.state.Warnings = append(run.state.Warnings, "verification_failed")
	}
	return nil
}

func (d *Driver) runSynthesize(ctx context.Context, run *runContext) error {
	onChunk := func(chunk string) {
		run.emit(models.ProgressEvent{Stage: models.StageSynthesize, Status: models.StatusStreaming, Payload: chunk})
	}
	narrative, err := d.deps.Synthesize(ctx, run.state, onChunk)
	if err != nil {
		return err
	}
	run.state.MetaSynthesis = narrative
	return nil
}

// verificationNarrative assembles the text the claim verifier checks:
// the debate narrative when the run went through scenarios/debate, else
// the concatenation of every agent report's narrative.
func verificationNarrative(state *models.RunState) string {
	if state.DebateNarrative != "" {
		return state.DebateNarrative
	}
	narrative := ""
	for _, report := range state.AgentReports {
		narrative += report.Narrative + "\n"
	}
	return narrative
}
