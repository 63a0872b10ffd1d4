// Package agentharness executes a single specialist agent: prefetch its
// declared queries, invoke the LLM provider, parse the response into an
// AgentReport, verify its numeric claims against the prefetched facts, and
// retry once with an enhanced prompt on a citation/strict verifier error
// (spec §4.4).
//
// Grounded on pkg/agent/orchestrator.SubAgentRunner's dispatch-execute-
// complete shape and pkg/mcp.Client.CallTool's retry-once-with-context
// pattern, generalized from transport retry to verifier-driven retry.
package agentharness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/albarami/qnwis/pkg/llm"
	"github.com/albarami/qnwis/pkg/models"
)

// Verifier is the subset of pkg/verifier.Verifier the harness depends on,
// named here to avoid a hard import cycle between the two packages.
type Verifier interface {
	Verify(narrative string, results map[string]*models.QueryResult) models.VerificationReport
}

// Prefetcher resolves a set of query_ids through the deterministic data
// layer. Supplied by the pipeline, backed by pkg/dataquery + its cache.
type Prefetcher func(ctx context.Context, queryIDs []string) (map[string]*models.QueryResult, error)

// Config controls retry/strictness behavior that mirrors
// config.VerificationConfig without importing pkg/config directly.
type Config struct {
	RequireCitationFirst bool
	Strict               bool
	AgentTimeout         time.Duration
}

// Harness executes one agent definition end to end.
type Harness struct {
	provider llm.Provider
	verifier Verifier
	cfg      Config
}

// New builds a Harness. cfg.AgentTimeout defaults to 30s if zero (spec §4.4).
func New(provider llm.Provider, verifier Verifier, cfg Config) *Harness {
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 30 * time.Second
	}
	return &Harness{provider: provider, verifier: verifier, cfg: cfg}
}

// Outcome is the result of one Run call: exactly one of Report is
// populated (possibly carrying Warnings) — a failed agent is represented
// by Failed=true, never by a nil Report with a nil error, so callers
// cannot forget to check one or the other.
type Outcome struct {
	Report       *models.AgentReport
	Verification *models.VerificationReport
	Failed       bool
	Reason       string
}

// Run executes def's prompt template against prefetched facts, verifies
// the result, and retries once on a citation/strict verifier failure.
func (h *Harness) Run(ctx context.Context, def *models.AgentDefinition, promptBuilder func(facts map[string]*models.QueryResult, retry bool, offending []models.VerificationIssue) string, prefetch Prefetcher) Outcome {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.AgentTimeout)
	defer cancel()

	facts, err := prefetch(ctx, def.SelectableQueryIDs)
	if err != nil {
		return Outcome{Failed: true, Reason: fmt.Sprintf("prefetch failed: %v", err)}
	}

	report, verification, err := h.attempt(ctx, def, facts, promptBuilder, false, nil)
	if err != nil {
		return Outcome{Failed: true, Reason: err.Error()}
	}

	if needsRetry(verification, h.cfg) {
		offending := offendingIssues(verification)
		retryReport, retryVerification, retryErr := h.attempt(ctx, def, facts, promptBuilder, true, offending)
		if retryErr == nil {
			report, verification = retryReport, retryVerification
		}
		// retryErr != nil: keep the first attempt's report/verification —
		// "on repeated failure, surfaces the report with warnings but does
		// not fail the run" (spec §4.4 step 6).
	}

	if !verification.OK {
		if h.cfg.Strict {
			return Outcome{Failed: true, Reason: "verification failed under strict mode", Report: report, Verification: &verification}
		}
		report.Warnings = append(report.Warnings, "verification_failed")
	}

	return Outcome{Report: report, Verification: &verification}
}

func (h *Harness) attempt(ctx context.Context, def *models.AgentDefinition, facts map[string]*models.QueryResult, promptBuilder func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string, retry bool, offending []models.VerificationIssue) (*models.AgentReport, models.VerificationReport, error) {
	prompt := promptBuilder(facts, retry, offending)

	text, _, err := h.provider.Complete(ctx, prompt, 4096, nil)
	if err != nil {
		return nil, models.VerificationReport{}, fmt.Errorf("llm completion failed: %w", err)
	}

	report, err := ParseReport(def.Name, text)
	if err != nil {
		return nil, models.VerificationReport{}, fmt.Errorf("failed to parse agent report: %w", err)
	}

	verification := h.verifier.Verify(report.Narrative, facts)
	return report, verification, nil
}

// needsRetry decides whether to spend the harness's one allowed retry
// (spec §4.4 step 5). It keys off the presence of issues, not
// VerificationReport.OK: a citation-only issue under RequireCitationFirst
// is Warning-severity (OK stays true) by design, but it is still the
// exact "offending claim" this retry exists to fix, so gating on OK
// would make RequireCitationFirst's retry never fire.
func needsRetry(v models.VerificationReport, cfg Config) bool {
	if len(v.Issues) == 0 {
		return false
	}
	if cfg.Strict {
		return true
	}
	if !cfg.RequireCitationFirst {
		return false
	}
	for _, issue := range v.Issues {
		if issue.Code == models.IssueClaimUncited {
			return true
		}
	}
	return false
}

func offendingIssues(v models.VerificationReport) []models.VerificationIssue {
	out := make([]models.VerificationIssue, 0, len(v.Issues))
	for _, issue := range v.Issues {
		out = append(out, issue)
	}
	return out
}

// ParseReport parses the agent's raw completion text into an AgentReport.
// Agents are instructed to emit a JSON object matching AgentReport's
// shape; a plain-text fallback treats the entire response as the
// narrative when it isn't valid JSON (some prompt templates, e.g. the
// debate stage, return free text rather than structured JSON).
func ParseReport(agentName, text string) (*models.AgentReport, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var report models.AgentReport
		if err := json.Unmarshal([]byte(trimmed), &report); err == nil {
			if report.AgentName == "" {
				report.AgentName = agentName
			}
			return &report, nil
		}
	}
	return &models.AgentReport{AgentName: agentName, Narrative: trimmed, Confidence: 0.5}, nil
}
