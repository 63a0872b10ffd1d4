package config

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/albarami/qnwis/pkg/models"
)

// validate is the shared validator instance; struct tags drive validation
// the same way pkg/config's teacher ancestor validated chains/agents.
var validate = validator.New()

// Catalog is every declarative registry loaded from configDir at startup,
// merged built-in-then-user via dario.cat/mergo the same way the teacher
// layers its base config with operator overrides.
type Catalog struct {
	Queries          map[string]*models.QueryDefinition
	Intents          map[string]*IntentDefinition
	Agents           map[string]*models.AgentDefinition
	Materializations map[string]*models.MaterializationSpec
	Pipeline         *PipelineConfig
}

// Load reads every *.yaml file under configDir's queries/, intents/,
// agents/, materializations/ subdirectories plus a single pipeline.yaml,
// validates struct tags and cross-references, and returns the assembled
// Catalog. Built-in defaults (DefaultPipelineConfig) are merged under
// whatever pipeline.yaml supplies, so a partial override file is valid.
func Load(configDir string) (*Catalog, error) {
	queries, err := loadQueries(filepath.Join(configDir, "queries"))
	if err != nil {
		return nil, err
	}

	intents, err := loadDir[IntentDefinition](filepath.Join(configDir, "intents"))
	if err != nil {
		return nil, err
	}
	intentsByName := keyByName(intents, func(i *IntentDefinition) string { return i.Name })

	agents, err := loadDir[models.AgentDefinition](filepath.Join(configDir, "agents"))
	if err != nil {
		return nil, err
	}
	agentsByName := keyByName(agents, func(a *models.AgentDefinition) string { return a.Name })

	materializations, err := loadDir[models.MaterializationSpec](filepath.Join(configDir, "materializations"))
	if err != nil {
		return nil, err
	}
	materializationsByName := keyByName(materializations, func(m *models.MaterializationSpec) string { return m.Name })

	pipelineCfg, err := loadPipeline(filepath.Join(configDir, "pipeline.yaml"))
	if err != nil {
		return nil, err
	}

	cat := &Catalog{
		Queries:          queries,
		Intents:          intentsByName,
		Agents:           agentsByName,
		Materializations: materializationsByName,
		Pipeline:         pipelineCfg,
	}

	if err := Validate(cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func loadPipeline(path string) (*PipelineConfig, error) {
	base := DefaultPipelineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, NewLoadError(path, err)
	}

	var override PipelineConfig
	if err := yaml.Unmarshal(ExpandEnv(data), &override); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}

	if err := mergo.Merge(base, override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging pipeline config: %w", err)
	}
	return base, nil
}

// loadQueries is a thin specialization of loadDir that additionally
// rejects files whose template references a parameter not declared in
// allowed_params, duplicate query_ids, or a zero TTL (spec §6.1).
func loadQueries(dir string) (map[string]*models.QueryDefinition, error) {
	defs, err := loadDir[models.QueryDefinition](dir)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*models.QueryDefinition, len(defs))
	for _, def := range defs {
		if _, dup := out[def.QueryID]; dup {
			return nil, NewValidationError("query", def.QueryID, "query_id", fmt.Errorf("%w: duplicate query_id", ErrInvalidValue))
		}
		if def.CacheTTLSeconds <= 0 {
			return nil, NewValidationError("query", def.QueryID, "cache_ttl_seconds", ErrInvalidValue)
		}
		if err := checkTemplateParams(def); err != nil {
			return nil, NewValidationError("query", def.QueryID, "template", err)
		}
		if err := checkUniqueOutputNames(def); err != nil {
			return nil, NewValidationError("query", def.QueryID, "output_schema", err)
		}
		out[def.QueryID] = def
	}
	return out, nil
}

func keyByName[T any](items []*T, name func(*T) string) map[string]*T {
	out := make(map[string]*T, len(items))
	for _, item := range items {
		out[name(item)] = item
	}
	return out
}

// loadDir reads every *.yaml/*.yml file in dir (non-recursive) into a T,
// expanding ${VAR}/$VAR environment references first, then running struct
// tag validation. A missing directory yields an empty set, not an error —
// not every deployment wires every registry.
func loadDir[T any](dir string) ([]*T, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, NewLoadError(dir, err)
	}

	out := make([]*T, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, NewLoadError(path, err)
		}

		var item T
		if err := yaml.Unmarshal(ExpandEnv(data), &item); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
		}
		if err := validate.Struct(&item); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrValidationFailed, path, err)
		}
		out = append(out, &item)
	}
	return out, nil
}
