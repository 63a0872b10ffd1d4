package agents

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/qnwis/pkg/agentharness"
	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/llm"
	"github.com/albarami/qnwis/pkg/models"
)

type fakeProvider struct {
	fail map[string]bool
}

func (p *fakeProvider) Complete(ctx context.Context, prompt string, maxTokens int, stop []string) (string, llm.Usage, error) {
	return prompt, llm.Usage{}, nil
}

func (p *fakeProvider) CompleteStreaming(ctx context.Context, prompt string, maxTokens int, stop []string) (<-chan llm.StreamChunk, error) {
	panic("not used")
}

type alwaysOKVerifier struct{}

func (alwaysOKVerifier) Verify(narrative string, results map[string]*models.QueryResult) models.VerificationReport {
	return models.VerificationReport{OK: true}
}

func buildRegistry(names ...string) *config.AgentRegistry {
	defs := make(map[string]*models.AgentDefinition, len(names))
	for _, n := range names {
		defs[n] = &models.AgentDefinition{Name: n}
	}
	return config.NewAgentRegistry(defs)
}

func noopPrefetch(ctx context.Context, queryIDs []string) (map[string]*models.QueryResult, error) {
	return map[string]*models.QueryResult{}, nil
}

func TestRunner_AllAgentsSucceedPreservesOrder(t *testing.T) {
	names := []string{"econ", "labor", "trade"}
	registry := buildRegistry(names...)
	h := agentharness.New(&fakeProvider{}, alwaysOKVerifier{}, agentharness.Config{})
	promptFor := func(agentName string, run *models.RunState) func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
		return func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
			return fmt.Sprintf(`{"agent_name":"%s","narrative":"ok"}`, agentName)
		}
	}
	r := New(registry, h, noopPrefetch, promptFor, 8)

	reports, warnings, err := r.Run(context.Background(), names, &models.RunState{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, reports, 3)
	for i, name := range names {
		assert.Equal(t, name, reports[i].AgentName)
	}
}

func TestRunner_PartialFailureProducesWarningsNotError(t *testing.T) {
	names := []string{"econ", "missing-agent"}
	registry := buildRegistry("econ")
	h := agentharness.New(&fakeProvider{}, alwaysOKVerifier{}, agentharness.Config{})
	promptFor := func(agentName string, run *models.RunState) func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
		return func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
			return fmt.Sprintf(`{"agent_name":"%s","narrative":"ok"}`, agentName)
		}
	}
	r := New(registry, h, noopPrefetch, promptFor, 8)

	reports, warnings, err := r.Run(context.Background(), names, &models.RunState{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "agent_not_found:missing-agent")
}

func TestRunner_AllAgentsFailReturnsError(t *testing.T) {
	names := []string{"ghost1", "ghost2"}
	registry := buildRegistry()
	h := agentharness.New(&fakeProvider{}, alwaysOKVerifier{}, agentharness.Config{})
	promptFor := func(agentName string, run *models.RunState) func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
		return func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string { return "" }
	}
	r := New(registry, h, noopPrefetch, promptFor, 8)

	reports, _, err := r.Run(context.Background(), names, &models.RunState{})
	require.Error(t, err)
	assert.Nil(t, reports)
}

func TestRunner_ConcurrencyDefaultsAndCapsToMax(t *testing.T) {
	registry := buildRegistry("a")
	h := agentharness.New(&fakeProvider{}, alwaysOKVerifier{}, agentharness.Config{})
	promptFor := func(agentName string, run *models.RunState) func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
		return func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string { return "{}" }
	}

	r1 := New(registry, h, noopPrefetch, promptFor, 0)
	assert.Equal(t, MaxConcurrentAgents, r1.concurrency)

	r2 := New(registry, h, noopPrefetch, promptFor, 100)
	assert.Equal(t, MaxConcurrentAgents, r2.concurrency)

	r3 := New(registry, h, noopPrefetch, promptFor, 3)
	assert.Equal(t, 3, r3.concurrency)
}

func TestRunner_EmptyAgentListReturnsNoReportsNoError(t *testing.T) {
	registry := buildRegistry()
	h := agentharness.New(&fakeProvider{}, alwaysOKVerifier{}, agentharness.Config{})
	promptFor := func(agentName string, run *models.RunState) func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
		return func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string { return "{}" }
	}
	r := New(registry, h, noopPrefetch, promptFor, 8)

	reports, warnings, err := r.Run(context.Background(), nil, &models.RunState{})
	require.NoError(t, err)
	assert.Nil(t, reports)
	assert.Nil(t, warnings)
}
