package models

import "time"

// AccessLevel gates who a registered query may be exposed to.
type AccessLevel string

const (
	AccessPublic       AccessLevel = "public"
	AccessRestricted    AccessLevel = "restricted"
	AccessConfidential AccessLevel = "confidential"
)

// ParamType is the declared type of a query parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamDate   ParamType = "date"
)

// ParamRange bounds a numeric or date parameter.
type ParamRange struct {
	Min any `yaml:"min,omitempty" json:"min,omitempty"`
	Max any `yaml:"max,omitempty" json:"max,omitempty"`
}

// ParamDefinition declares one named, typed, bounded query parameter.
type ParamDefinition struct {
	Name     string      `yaml:"name" json:"name" validate:"required"`
	Type     ParamType   `yaml:"type" json:"type" validate:"required"`
	Required bool        `yaml:"required" json:"required"`
	Default  any         `yaml:"default,omitempty" json:"default,omitempty"`
	Range    *ParamRange `yaml:"range,omitempty" json:"range,omitempty"`
}

// OutputField is one named, typed column of a query's result rows.
type OutputField struct {
	Name string    `yaml:"name" json:"name" validate:"required"`
	Type ParamType `yaml:"type" json:"type" validate:"required"`
}

// QueryDefinition is a registry entry loaded at startup from the
// declarative catalog. Immutable after load.
type QueryDefinition struct {
	QueryID             string            `yaml:"query_id" json:"query_id" validate:"required"`
	Description         string            `yaml:"description" json:"description"`
	Dataset             string            `yaml:"dataset" json:"dataset" validate:"required"`
	Template            string            `yaml:"sql" json:"template" validate:"required"`
	Parameters          []ParamDefinition `yaml:"parameters" json:"parameters"`
	OutputSchema        []OutputField     `yaml:"output_schema" json:"output_schema"`
	CacheTTLSeconds     int               `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds" validate:"required,gt=0"`
	FreshnessSLASeconds int               `yaml:"freshness_sla_seconds" json:"freshness_sla_seconds" validate:"required,gt=0"`
	AccessLevel         AccessLevel       `yaml:"access_level" json:"access_level" validate:"required"`
	Tags                []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// AllowedParamNames returns the set of parameter names this definition
// declares, used by the registry to reject undeclared template substitutions.
func (q *QueryDefinition) AllowedParamNames() map[string]bool {
	out := make(map[string]bool, len(q.Parameters))
	for _, p := range q.Parameters {
		out[p.Name] = true
	}
	return out
}

// Provenance names the dataset and source locator a QueryResult came from.
type Provenance struct {
	Dataset string `json:"dataset"`
	Source  string `json:"source"`
}

// Freshness reports how current a QueryResult is.
type Freshness struct {
	AsOf time.Time     `json:"as_of"`
	Age  time.Duration `json:"age"`
}

// QueryResult is the output of one registered query invocation.
type QueryResult struct {
	QueryID    string         `json:"query_id"`
	ParamsUsed map[string]any `json:"params_used"`
	Rows       []Row          `json:"rows"`
	Provenance Provenance     `json:"provenance"`
	Freshness  Freshness      `json:"freshness"`
	RowCount   int            `json:"row_count"`
}

// Row is one typed record matching a QueryDefinition's OutputSchema.
type Row map[string]any

// Clone returns a defensive copy of the result, safe to hand to a cache
// reader without risking a caller mutating the shared cached value.
func (r *QueryResult) Clone() *QueryResult {
	if r == nil {
		return nil
	}
	params := make(map[string]any, len(r.ParamsUsed))
	for k, v := range r.ParamsUsed {
		params[k] = v
	}
	rows := make([]Row, len(r.Rows))
	for i, row := range r.Rows {
		nr := make(Row, len(row))
		for k, v := range row {
			nr[k] = v
		}
		rows[i] = nr
	}
	cp := *r
	cp.ParamsUsed = params
	cp.Rows = rows
	return &cp
}
