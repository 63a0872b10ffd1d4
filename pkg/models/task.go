// Package models holds the data-model types shared across the pipeline,
// the deterministic data layer, the scenario executor and the verifier.
package models

// Depth controls how far a run is allowed to travel through the pipeline.
type Depth string

const (
	DepthStandard  Depth = "standard"
	DepthDeep      Depth = "deep"
	DepthLegendary Depth = "legendary"
)

// FeatureFlags toggles optional stages for a single run.
type FeatureFlags struct {
	EnableParallelScenarios bool `json:"enable_parallel_scenarios"`
	EnableVerification      bool `json:"enable_verification"`
	EnableRAG               bool `json:"enable_rag"`
}

// Task is the immutable input to one run. Created at request entry,
// destroyed on run completion or cancellation.
type Task struct {
	RequestID    string            `json:"request_id"`
	QuestionText string            `json:"question_text"`
	Intent       string            `json:"intent"`
	Params       map[string]any    `json:"params"`
	UserID       string            `json:"user_id,omitempty"`
	Depth        Depth             `json:"depth"`
	FeatureFlags FeatureFlags      `json:"feature_flags"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}
