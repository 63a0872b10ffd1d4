package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/llm"
	"github.com/albarami/qnwis/pkg/models"
)

// Stages bundles the LLM-backed pipeline.Deps functions this package
// provides. A single instance is shared across every run in the process
// (it holds no per-run state — every method takes the run's
// *models.RunState explicitly, the same "collaborator, not owner" shape
// pkg/pipeline.runContext uses for every other dependency).
type Stages struct {
	provider      llm.Provider
	catalog       *config.Catalog
	maxTokens     int
	scenarioNames []string
}

// New builds a Stages bundle. scenarioNames is the fixed policy-variant
// pool scenario generation draws from (spec §4.3: "a declarative pool of
// named policy variants, not LLM-invented ones" keeps the scenario set
// itself deterministic even though each scenario's narrative is not).
func New(provider llm.Provider, catalog *config.Catalog, scenarioNames []string) *Stages {
	return &Stages{provider: provider, catalog: catalog, maxTokens: 2048, scenarioNames: scenarioNames}
}

// ScenarioGen produces the policy-variant scenario set for complex and
// critical runs by pairing the task's question against the declarative
// scenario-name pool — the scenario identities are deterministic; only
// their downstream narratives (via the scenario executor's agents/debate
// sub-pipeline) are LLM-generated.
func (s *Stages) ScenarioGen(_ context.Context, run *models.RunState) ([]models.Scenario, error) {
	names := s.scenarioNames
	if len(names) == 0 {
		names = []string{"baseline", "accelerated", "conservative"}
	}
	scenarios := make([]models.Scenario, 0, len(names))
	for i, name := range names {
		scenarios = append(scenarios, models.Scenario{
			ScenarioID:  fmt.Sprintf("%s-%s-%02d", run.Task.RequestID, name, i),
			Name:        name,
			Description: fmt.Sprintf("%s policy variant for: %s", capitalize(name), run.Task.QuestionText),
		})
	}
	return scenarios, nil
}

// MetaSynthesize asks the model to combine every scenario's result into
// the narrative that seeds agent selection and, ultimately, the briefing.
func (s *Stages) MetaSynthesize(ctx context.Context, run *models.RunState) (string, error) {
	if len(run.ScenarioResults) == 0 {
		return "", nil
	}
	prompt := fmt.Sprintf(
		"Combine these scenario analyses into one coherent narrative answering: %s\n\n%s\n\nCite query_ids the same way the scenario text does.",
		run.Task.QuestionText, renderScenarioResults(run.ScenarioResults),
	)
	text, _, err := s.provider.Complete(ctx, prompt, s.maxTokens, nil)
	if err != nil {
		return "", fmt.Errorf("meta-synthesis completion failed: %w", err)
	}
	return text, nil
}

// SelectAgents chooses which registered agents run for this request:
// every agent the task's intent declares (pkg/config cross-reference
// validation already guarantees each name resolves to a registered
// agent). The driver's runAgentSelection caps the result at 8 before the
// agents stage runs, so this need not cap it itself.
func (s *Stages) SelectAgents(_ context.Context, run *models.RunState) ([]string, error) {
	intent, ok := s.catalog.Intents[run.Task.Intent]
	if !ok {
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownIntent, run.Task.Intent)
	}
	return intent.AgentNames, nil
}

// Debate synthesizes the cross-agent debate narrative: one LLM call
// streamed chunk by chunk (spec §4.4's single-black-box-agent resolution
// to the debate Open Question), consuming every specialist's report.
func (s *Stages) Debate(ctx context.Context, run *models.RunState, onChunk func(string)) (string, error) {
	if len(run.AgentReports) == 0 {
		return "", nil
	}
	prompt := fmt.Sprintf(
		"Reconcile these specialist reports into one debate narrative answering: %s\n\n%s\n\nResolve disagreements explicitly; keep every citation the agents used.",
		run.Task.QuestionText, renderAgentReports(run.AgentReports),
	)
	return s.completeStreaming(ctx, prompt, onChunk)
}

// Critique produces critique notes over the debate narrative — a second,
// independent pass asked to find gaps or unsupported claims rather than
// restate the narrative.
func (s *Stages) Critique(ctx context.Context, run *models.RunState) ([]string, error) {
	if run.DebateNarrative == "" {
		return nil, nil
	}
	prompt := fmt.Sprintf(
		"Critique the following briefing narrative for unsupported claims, missing caveats, or internal contradictions. Respond with a JSON array of short strings, one per issue found (empty array if none).\n\n%s",
		run.DebateNarrative,
	)
	text, _, err := s.provider.Complete(ctx, prompt, s.maxTokens, nil)
	if err != nil {
		return nil, fmt.Errorf("critique completion failed: %w", err)
	}
	return parseNotes(text), nil
}

// Synthesize produces the terminal narrative, streaming chunks as they
// arrive and returning the full text once the stream closes.
func (s *Stages) Synthesize(ctx context.Context, run *models.RunState, onChunk func(string)) (string, error) {
	base := run.DebateNarrative
	if base == "" {
		base = run.MetaSynthesis
	}
	if base == "" {
		base = renderAgentReports(run.AgentReports)
	}

	var critique string
	if len(run.CritiqueNotes) > 0 {
		critique = "\n\nAddress these critique notes in your final answer: " + strings.Join(run.CritiqueNotes, "; ")
	}

	prompt := fmt.Sprintf(
		"Write the final ministerial briefing answering: %s\n\nSource material:\n%s%s\n\nKeep every citation the source material used; do not introduce uncited figures.",
		run.Task.QuestionText, base, critique,
	)
	return s.completeStreaming(ctx, prompt, onChunk)
}

func (s *Stages) completeStreaming(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	chunks, err := s.provider.CompleteStreaming(ctx, prompt, s.maxTokens, nil)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for chunk := range chunks {
		if chunk.Delta != "" {
			onChunk(chunk.Delta)
			b.WriteString(chunk.Delta)
		}
	}
	return b.String(), nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func parseNotes(text string) []string {
	trimmed := strings.TrimSpace(text)
	var notes []string
	if err := json.Unmarshal([]byte(trimmed), &notes); err == nil {
		return notes
	}
	if trimmed == "" {
		return nil
	}
	return []string{trimmed}
}
