package config

import (
	"fmt"
	"sync"

	"github.com/albarami/qnwis/pkg/models"
)

// QueryRegistry stores query definitions in memory with thread-safe access.
// Populated once at startup; immutable after load.
type QueryRegistry struct {
	queries map[string]*models.QueryDefinition
	mu      sync.RWMutex
}

// NewQueryRegistry creates a registry from a loaded set of definitions,
// defensively copying the input map to prevent external mutation.
func NewQueryRegistry(queries map[string]*models.QueryDefinition) *QueryRegistry {
	copied := make(map[string]*models.QueryDefinition, len(queries))
	for k, v := range queries {
		copied[k] = v
	}
	return &QueryRegistry{queries: copied}
}

// Get returns the definition for queryID, or ErrUnknownQuery if absent.
func (r *QueryRegistry) Get(queryID string) (*models.QueryDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.queries[queryID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuery, queryID)
	}
	return def, nil
}

// All returns a defensive copy of the full registered set.
func (r *QueryRegistry) All() map[string]*models.QueryDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.QueryDefinition, len(r.queries))
	for k, v := range r.queries {
		out[k] = v
	}
	return out
}

// Len reports the number of registered query definitions.
func (r *QueryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queries)
}

// IntentDefinition declares one registered intent: the params schema it
// accepts and the query/agent IDs a run of that intent may touch.
type IntentDefinition struct {
	Name               string              `yaml:"name" json:"name" validate:"required"`
	Description        string              `yaml:"description,omitempty" json:"description,omitempty"`
	ParamSchema         []models.ParamDefinition `yaml:"param_schema,omitempty" json:"param_schema,omitempty"`
	PrefetchQueryIDs   []string            `yaml:"prefetch_query_ids,omitempty" json:"prefetch_query_ids,omitempty"`
	AgentNames         []string            `yaml:"agent_names,omitempty" json:"agent_names,omitempty"`
}

// IntentRegistry stores the set of intents the orchestrator will accept.
type IntentRegistry struct {
	intents map[string]*IntentDefinition
	mu      sync.RWMutex
}

// NewIntentRegistry creates a registry from a loaded set of intents.
func NewIntentRegistry(intents map[string]*IntentDefinition) *IntentRegistry {
	copied := make(map[string]*IntentDefinition, len(intents))
	for k, v := range intents {
		copied[k] = v
	}
	return &IntentRegistry{intents: copied}
}

// Get returns the intent definition for name, or ErrUnknownIntent if absent.
func (r *IntentRegistry) Get(name string) (*IntentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.intents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, name)
	}
	return def, nil
}

// Names returns the set of registered intent names.
func (r *IntentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.intents))
	for k := range r.intents {
		out = append(out, k)
	}
	return out
}

// MaterializationRegistry stores materialized-view specs loaded at startup.
type MaterializationRegistry struct {
	specs map[string]*models.MaterializationSpec
	mu    sync.RWMutex
}

// NewMaterializationRegistry creates a registry from a loaded spec set.
func NewMaterializationRegistry(specs map[string]*models.MaterializationSpec) *MaterializationRegistry {
	copied := make(map[string]*models.MaterializationSpec, len(specs))
	for k, v := range specs {
		copied[k] = v
	}
	return &MaterializationRegistry{specs: copied}
}

// All returns a defensive copy of every registered materialization spec.
func (r *MaterializationRegistry) All() map[string]*models.MaterializationSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.MaterializationSpec, len(r.specs))
	for k, v := range r.specs {
		out[k] = v
	}
	return out
}

// Get returns the named materialization spec, or false if absent.
func (r *MaterializationRegistry) Get(name string) (*models.MaterializationSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// AgentRegistry stores agent definitions loaded at startup.
type AgentRegistry struct {
	agents map[string]*models.AgentDefinition
	mu     sync.RWMutex
}

// NewAgentRegistry creates a registry from a loaded agent set.
func NewAgentRegistry(agents map[string]*models.AgentDefinition) *AgentRegistry {
	copied := make(map[string]*models.AgentDefinition, len(agents))
	for k, v := range agents {
		copied[k] = v
	}
	return &AgentRegistry{agents: copied}
}

// Get returns the named agent definition, or ErrAgentNotFound if absent.
func (r *AgentRegistry) Get(name string) (*models.AgentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return def, nil
}
