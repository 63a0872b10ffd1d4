package models

// IndexDef declares one index to ensure exists on a materialized view.
type IndexDef struct {
	Name    string   `yaml:"name" json:"name"`
	Columns []string `yaml:"columns" json:"columns"`
	Unique  bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// MaterializationSpec is a declarative materialized-view definition
// loaded at startup and driven by the refresher's scheduler.
type MaterializationSpec struct {
	Name            string         `yaml:"name" json:"name" validate:"required"`
	QueryID         string         `yaml:"query_id" json:"query_id" validate:"required"`
	FixedParams     map[string]any `yaml:"fixed_params,omitempty" json:"fixed_params,omitempty"`
	IndexDefs       []IndexDef     `yaml:"index_defs,omitempty" json:"index_defs,omitempty"`
	RefreshSchedule string         `yaml:"refresh_schedule" json:"refresh_schedule" validate:"required"`
}
