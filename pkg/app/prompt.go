package app

import (
	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/models"
	"github.com/albarami/qnwis/pkg/synthesis"
)

// newPromptBuilder adapts synthesis.BuildAgentPrompt (which closes over a
// fixed AgentDefinition/Task pair) into agents.PromptBuilderFor's
// by-name-and-run-state shape, looking the definition up from the agent
// registry each time a run needs it.
func newPromptBuilder(registry *config.AgentRegistry) func(agentName string, run *models.RunState) func(facts map[string]*models.QueryResult, retry bool, offending []models.VerificationIssue) string {
	return func(agentName string, run *models.RunState) func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
		def, err := registry.Get(agentName)
		if err != nil {
			return func(map[string]*models.QueryResult, bool, []models.VerificationIssue) string {
				return "agent definition not found: " + agentName
			}
		}
		return synthesis.BuildAgentPrompt(def, run.Task)
	}
}
