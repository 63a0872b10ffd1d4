package agentharness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/qnwis/pkg/llm"
	"github.com/albarami/qnwis/pkg/models"
)

type stubProvider struct {
	responses []string
	calls     int
	err       error
}

func (s *stubProvider) Complete(ctx context.Context, prompt string, maxTokens int, stop []string) (string, llm.Usage, error) {
	if s.err != nil {
		return "", llm.Usage{}, s.err
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], llm.Usage{}, nil
}

func (s *stubProvider) CompleteStreaming(ctx context.Context, prompt string, maxTokens int, stop []string) (<-chan llm.StreamChunk, error) {
	panic("not used by harness")
}

type stubVerifier struct {
	reports []models.VerificationReport
	calls   int
}

func (s *stubVerifier) Verify(narrative string, results map[string]*models.QueryResult) models.VerificationReport {
	idx := s.calls
	if idx >= len(s.reports) {
		idx = len(s.reports) - 1
	}
	s.calls++
	return s.reports[idx]
}

func noopPrefetch(ctx context.Context, queryIDs []string) (map[string]*models.QueryResult, error) {
	return map[string]*models.QueryResult{}, nil
}

func promptBuilder(facts map[string]*models.QueryResult, retry bool, offending []models.VerificationIssue) string {
	return "prompt"
}

func TestHarness_SuccessfulFirstAttempt(t *testing.T) {
	provider := &stubProvider{responses: []string{`{"agent_name":"econ","narrative":"all good","confidence":0.9}`}}
	verifier := &stubVerifier{reports: []models.VerificationReport{{OK: true}}}
	h := New(provider, verifier, Config{})

	def := &models.AgentDefinition{Name: "econ"}
	outcome := h.Run(context.Background(), def, promptBuilder, noopPrefetch)

	require.False(t, outcome.Failed)
	require.NotNil(t, outcome.Report)
	assert.Equal(t, "econ", outcome.Report.AgentName)
	assert.Equal(t, 1, provider.calls)
}

func TestHarness_RetriesOnceOnUncitedClaimWhenCitationFirstRequired(t *testing.T) {
	provider := &stubProvider{responses: []string{
		`{"agent_name":"econ","narrative":"first pass"}`,
		`{"agent_name":"econ","narrative":"second pass"}`,
	}}
	verifier := &stubVerifier{reports: []models.VerificationReport{
		{OK: false, Issues: []models.VerificationIssue{{Code: models.IssueClaimUncited, Severity: models.SeverityError}}},
		{OK: true},
	}}
	h := New(provider, verifier, Config{RequireCitationFirst: true})

	outcome := h.Run(context.Background(), &models.AgentDefinition{Name: "econ"}, promptBuilder, noopPrefetch)

	require.False(t, outcome.Failed)
	assert.Equal(t, 2, provider.calls, "should have retried once")
	assert.Equal(t, "second pass", outcome.Report.Narrative)
}

func TestHarness_RetriesOnUncitedClaimEvenWhenOKStaysTrue(t *testing.T) {
	// Mirrors pkg/verifier's real non-strict classification: a citation-only
	// issue is Warning-severity and does not flip OK to false. needsRetry
	// must still see the issue and retry — gating on OK alone would mean
	// RequireCitationFirst's retry never fires in production.
	provider := &stubProvider{responses: []string{
		`{"agent_name":"econ","narrative":"first pass"}`,
		`{"agent_name":"econ","narrative":"second pass"}`,
	}}
	verifier := &stubVerifier{reports: []models.VerificationReport{
		{OK: true, Issues: []models.VerificationIssue{{Code: models.IssueClaimUncited, Severity: models.SeverityWarning}}},
		{OK: true},
	}}
	h := New(provider, verifier, Config{RequireCitationFirst: true})

	outcome := h.Run(context.Background(), &models.AgentDefinition{Name: "econ"}, promptBuilder, noopPrefetch)

	require.False(t, outcome.Failed)
	assert.Equal(t, 2, provider.calls, "should have retried once despite OK=true")
	assert.Equal(t, "second pass", outcome.Report.Narrative)
}

func TestHarness_DoesNotRetryWhenCitationFirstNotRequired(t *testing.T) {
	provider := &stubProvider{responses: []string{`{"agent_name":"econ","narrative":"first pass"}`}}
	verifier := &stubVerifier{reports: []models.VerificationReport{
		{OK: false, Issues: []models.VerificationIssue{{Code: models.IssueClaimUncited, Severity: models.SeverityError}}},
	}}
	h := New(provider, verifier, Config{RequireCitationFirst: false, Strict: false})

	outcome := h.Run(context.Background(), &models.AgentDefinition{Name: "econ"}, promptBuilder, noopPrefetch)

	require.False(t, outcome.Failed)
	assert.Equal(t, 1, provider.calls)
	assert.Contains(t, outcome.Report.Warnings, "verification_failed")
}

func TestHarness_StrictModeFailsRunOnPersistentVerificationFailure(t *testing.T) {
	provider := &stubProvider{responses: []string{
		`{"agent_name":"econ","narrative":"first"}`,
		`{"agent_name":"econ","narrative":"second"}`,
	}}
	verifier := &stubVerifier{reports: []models.VerificationReport{
		{OK: false, Issues: []models.VerificationIssue{{Code: models.IssueClaimNotFound, Severity: models.SeverityError}}},
		{OK: false, Issues: []models.VerificationIssue{{Code: models.IssueClaimNotFound, Severity: models.SeverityError}}},
	}}
	h := New(provider, verifier, Config{Strict: true})

	outcome := h.Run(context.Background(), &models.AgentDefinition{Name: "econ"}, promptBuilder, noopPrefetch)

	require.True(t, outcome.Failed)
	assert.Equal(t, "verification failed under strict mode", outcome.Reason)
}

func TestHarness_PrefetchFailureFailsRun(t *testing.T) {
	provider := &stubProvider{responses: []string{`{}`}}
	verifier := &stubVerifier{reports: []models.VerificationReport{{OK: true}}}
	h := New(provider, verifier, Config{})

	failingPrefetch := func(ctx context.Context, queryIDs []string) (map[string]*models.QueryResult, error) {
		return nil, fmt.Errorf("dataquery unavailable")
	}

	outcome := h.Run(context.Background(), &models.AgentDefinition{Name: "econ"}, promptBuilder, failingPrefetch)
	require.True(t, outcome.Failed)
	assert.Contains(t, outcome.Reason, "prefetch failed")
}

func TestHarness_RetryFailureKeepsFirstAttempt(t *testing.T) {
	verifier := &stubVerifier{reports: []models.VerificationReport{
		{OK: false, Issues: []models.VerificationIssue{{Code: models.IssueClaimUncited, Severity: models.SeverityError}}},
	}}
	// The retry's LLM call itself fails, so the harness must keep the first attempt.
	h := New(&erroringOnSecondCallProvider{first: `{"agent_name":"econ","narrative":"first pass"}`}, verifier, Config{RequireCitationFirst: true})

	outcome := h.Run(context.Background(), &models.AgentDefinition{Name: "econ"}, promptBuilder, noopPrefetch)

	require.False(t, outcome.Failed)
	assert.Equal(t, "first pass", outcome.Report.Narrative)
	assert.Contains(t, outcome.Report.Warnings, "verification_failed")
}

type erroringOnSecondCallProvider struct {
	first string
	calls int
}

func (p *erroringOnSecondCallProvider) Complete(ctx context.Context, prompt string, maxTokens int, stop []string) (string, llm.Usage, error) {
	p.calls++
	if p.calls == 1 {
		return p.first, llm.Usage{}, nil
	}
	return "", llm.Usage{}, fmt.Errorf("llm provider unavailable")
}

func (p *erroringOnSecondCallProvider) CompleteStreaming(ctx context.Context, prompt string, maxTokens int, stop []string) (<-chan llm.StreamChunk, error) {
	panic("not used")
}

func TestParseReport_ValidJSON(t *testing.T) {
	report, err := ParseReport("econ", `{"agent_name":"econ","narrative":"hello","confidence":0.8}`)
	require.NoError(t, err)
	assert.Equal(t, "econ", report.AgentName)
	assert.Equal(t, "hello", report.Narrative)
	assert.Equal(t, 0.8, report.Confidence)
}

func TestParseReport_PlainTextFallback(t *testing.T) {
	report, err := ParseReport("debate", "This is free-form debate prose, not JSON.")
	require.NoError(t, err)
	assert.Equal(t, "debate", report.AgentName)
	assert.Equal(t, "This is free-form debate prose, not JSON.", report.Narrative)
	assert.Equal(t, 0.5, report.Confidence)
}

func TestParseReport_MalformedJSONFallsBackToPlainText(t *testing.T) {
	report, err := ParseReport("econ", `{"agent_name": "econ", "narrative": unterminated`)
	require.NoError(t, err)
	assert.Equal(t, "econ", report.AgentName)
	assert.Contains(t, report.Narrative, "unterminated")
}

func TestHarness_AgentTimeoutDefaultsWhenZero(t *testing.T) {
	h := New(&stubProvider{responses: []string{"{}"}}, &stubVerifier{reports: []models.VerificationReport{{OK: true}}}, Config{})
	assert.Equal(t, 30*time.Second, h.cfg.AgentTimeout)
}
