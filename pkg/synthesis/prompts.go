package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/albarami/qnwis/pkg/models"
)

// renderFacts composes the prefetched query results into a citation-
// friendly block every prompt in this package includes: one "[query_id]"
// prefixed section per result, rows rendered as compact JSON so an agent
// can quote exact figures rather than paraphrase them (spec §4.4's
// citation-first requirement starts with the prompt giving the model
// something to cite).
func renderFacts(facts map[string]*models.QueryResult) string {
	if len(facts) == 0 {
		return "(no prefetched facts available)"
	}
	var b strings.Builder
	for queryID, result := range facts {
		fmt.Fprintf(&b, "[%s] as_of=%s rows=%d\n", queryID, result.Freshness.AsOf.Format("2006-01-02"), result.RowCount)
		for _, row := range result.Rows {
			encoded, _ := json.Marshal(row)
			b.Write(encoded)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// renderOffending lists the verification issues a retry prompt must fix,
// so the second attempt gets concrete, actionable feedback instead of a
// bare "try again".
func renderOffending(offending []models.VerificationIssue) string {
	if len(offending) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nYour previous answer failed verification on these claims:\n")
	for _, issue := range offending {
		fmt.Fprintf(&b, "- %q (%s): %s\n", issue.Claim.Sentence, issue.Code, issue.Detail)
	}
	b.WriteString("Revise your answer so every numeric claim is directly supported by a cited query result.\n")
	return b.String()
}

const reportFormatInstructions = `Respond with a single JSON object matching this shape:
{"agent_name": "...", "narrative": "...", "findings": [{"text": "...", "query_id": "...", "confidence": 0.0}], "citations": [{"query_id": "...", "text": "..."}], "confidence": 0.0, "evidence_query_ids": ["..."]}
Every numeric claim in narrative must sit in a sentence that carries its supporting query_id as an inline QID annotation, e.g. "QID:budget_by_ministry spending rose 4.2%.". Do not invent figures not present in the prefetched facts.`

// BuildAgentPrompt composes the prompt one specialist agent sees for the
// given run, closing over the task, prefetched facts and (on retry) the
// offending verification issues — the shape agentharness.Harness expects
// from a agents.PromptBuilderFor closure.
func BuildAgentPrompt(def *models.AgentDefinition, task models.Task) func(facts map[string]*models.QueryResult, retry bool, offending []models.VerificationIssue) string {
	return func(facts map[string]*models.QueryResult, retry bool, offending []models.VerificationIssue) string {
		var b strings.Builder
		fmt.Fprintf(&b, "You are the %q specialist agent advising on a ministerial decision.\n\n", def.Name)
		fmt.Fprintf(&b, "Question: %s\n\n", task.QuestionText)
		b.WriteString("Prefetched facts:\n")
		b.WriteString(renderFacts(facts))
		if retry {
			b.WriteString(renderOffending(offending))
		}
		b.WriteString("\n")
		b.WriteString(reportFormatInstructions)
		return b.String()
	}
}

// renderScenarioResults composes the scenario set a meta-synthesis or debate
// prompt needs to see, one block per scenario result.
func renderScenarioResults(results []models.ScenarioResult) string {
	if len(results) == 0 {
		return "(no scenario results)"
	}
	var b strings.Builder
	for _, r := range results {
		if r.Failed() {
			fmt.Fprintf(&b, "Scenario %s: failed (%s)\n", r.ScenarioID, r.Failure.Reason)
			continue
		}
		fmt.Fprintf(&b, "Scenario %s (confidence=%.2f, success_rate=%.2f): %s\n", r.ScenarioID, r.Confidence, r.SuccessRate, r.SynthesisText)
	}
	return b.String()
}

// renderAgentReports composes every specialist agent's narrative for the
// debate/critique/synthesis stages.
func renderAgentReports(reports []models.AgentReport) string {
	if len(reports) == 0 {
		return "(no agent reports)"
	}
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "--- %s (confidence=%.2f) ---\n%s\n", r.AgentName, r.Confidence, r.Narrative)
	}
	return b.String()
}
