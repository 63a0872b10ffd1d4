package config

import (
	"fmt"
	"regexp"

	"github.com/albarami/qnwis/pkg/models"
)

// namedParamRe matches ":name"-style named substitutions in a query
// template, the only substitution form the registry permits (spec §4.2:
// "never by string concatenation").
var namedParamRe = regexp.MustCompile(`:([a-zA-Z_][a-zA-Z0-9_]*)`)

// checkTemplateParams rejects a template that references a substitution
// not declared in allowed_params, and (the converse integrity check) does
// not itself try to verify every declared param is used — an unused
// declared param is harmless, an undeclared substitution is not.
func checkTemplateParams(def *models.QueryDefinition) error {
	allowed := def.AllowedParamNames()
	for _, m := range namedParamRe.FindAllStringSubmatch(def.Template, -1) {
		name := m[1]
		if !allowed[name] {
			return fmt.Errorf("%w: template references undeclared param %q", ErrInvalidReference, name)
		}
	}
	return nil
}

// checkUniqueOutputNames rejects duplicate output_schema column names.
func checkUniqueOutputNames(def *models.QueryDefinition) error {
	seen := make(map[string]bool, len(def.OutputSchema))
	for _, f := range def.OutputSchema {
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate output_schema field %q", ErrInvalidValue, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Validate runs the cross-reference checks that span multiple registries:
// every prefetch_query_id an intent names, and every selectable_query_id
// an agent names, must resolve to a loaded query; the scenario pool must
// satisfy W <= |P| (spec §4.3); enabled_intents must all resolve.
func Validate(cat *Catalog) error {
	for _, intent := range cat.Intents {
		for _, qid := range intent.PrefetchQueryIDs {
			if _, ok := cat.Queries[qid]; !ok {
				return NewValidationError("intent", intent.Name, "prefetch_query_ids", fmt.Errorf("%w: query %q", ErrInvalidReference, qid))
			}
		}
		for _, agentName := range intent.AgentNames {
			if _, ok := cat.Agents[agentName]; !ok {
				return NewValidationError("intent", intent.Name, "agent_names", fmt.Errorf("%w: agent %q", ErrInvalidReference, agentName))
			}
		}
	}

	for _, agentDef := range cat.Agents {
		for _, qid := range agentDef.SelectableQueryIDs {
			if _, ok := cat.Queries[qid]; !ok {
				return NewValidationError("agent", agentDef.Name, "selectable_query_ids", fmt.Errorf("%w: query %q", ErrInvalidReference, qid))
			}
		}
	}

	for _, spec := range cat.Materializations {
		if _, ok := cat.Queries[spec.QueryID]; !ok {
			return NewValidationError("materialization", spec.Name, "query_id", fmt.Errorf("%w: query %q", ErrInvalidReference, spec.QueryID))
		}
	}

	if cat.Pipeline != nil {
		if cat.Pipeline.Scenarios.Parallelism > cat.Pipeline.Scenarios.AffinityPoolSize {
			return NewValidationError("pipeline", "scenarios", "parallelism",
				fmt.Errorf("%w: parallelism %d exceeds affinity_pool_size %d",
					ErrInvalidValue, cat.Pipeline.Scenarios.Parallelism, cat.Pipeline.Scenarios.AffinityPoolSize))
		}
		for _, name := range cat.Pipeline.EnabledIntents {
			if _, ok := cat.Intents[name]; !ok {
				return NewValidationError("pipeline", "enabled_intents", "", fmt.Errorf("%w: intent %q", ErrInvalidReference, name))
			}
		}
	}

	return nil
}
