package config

import "time"

// StageTimeouts holds the per-stage, per-query and per-agent time budgets.
type StageTimeouts struct {
	StageMs time.Duration `yaml:"stage_ms" json:"stage_ms"`
	QueryMs time.Duration `yaml:"query_ms" json:"query_ms"`
	AgentMs time.Duration `yaml:"agent_ms" json:"agent_ms"`
}

// ScenarioConfig controls the parallel scenario executor's sizing.
type ScenarioConfig struct {
	Parallelism      int `yaml:"parallelism" json:"parallelism" validate:"required,min=1"`
	AffinityPoolSize int `yaml:"affinity_pool_size" json:"affinity_pool_size" validate:"required,min=1"`
}

// CacheConfig names the query-result cache namespace and default TTL.
type CacheConfig struct {
	Namespace         string        `yaml:"namespace" json:"namespace" validate:"required"`
	DefaultTTLSeconds int           `yaml:"default_ttl_seconds" json:"default_ttl_seconds" validate:"required,min=1"`
	Backend           string        `yaml:"backend,omitempty" json:"backend,omitempty"`
	RedisAddr         string        `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
}

// RoundingConfig holds the verifier's absolute/relative numeric tolerances.
type RoundingConfig struct {
	AbsEpsilon float64 `yaml:"abs_epsilon" json:"abs_epsilon"`
	RelEpsilon float64 `yaml:"rel_epsilon" json:"rel_epsilon"`
}

// PercentConfig holds the verifier's percent-specific tolerances and rules.
type PercentConfig struct {
	EpsilonPct float64 `yaml:"epsilon_pct" json:"epsilon_pct"`
	SumTo100   bool    `yaml:"sum_to_100" json:"sum_to_100"`
}

// VerificationConfig holds every knob the claim verifier consults.
type VerificationConfig struct {
	Rounding              RoundingConfig `yaml:"rounding" json:"rounding"`
	Percent               PercentConfig  `yaml:"percent" json:"percent"`
	RequireCitationFirst  bool           `yaml:"require_citation_first" json:"require_citation_first"`
	Strict                bool           `yaml:"strict" json:"strict"`
	IgnoreNumbersBelow    float64        `yaml:"ignore_numbers_below" json:"ignore_numbers_below"`
	IgnoreYears           bool           `yaml:"ignore_years" json:"ignore_years"`
}

// PipelineConfig is the umbrella struct for every §6.4-enumerated option.
type PipelineConfig struct {
	EnabledIntents []string            `yaml:"enabled_intents" json:"enabled_intents"`
	Timeouts       StageTimeouts       `yaml:"timeouts" json:"timeouts"`
	Scenarios      ScenarioConfig      `yaml:"scenarios" json:"scenarios"`
	Cache          CacheConfig         `yaml:"cache" json:"cache"`
	Verification   VerificationConfig  `yaml:"verification" json:"verification"`
	FeatureFlags   PipelineFlags       `yaml:"feature_flags" json:"feature_flags"`
}

// PipelineFlags are the process-wide default feature flags; a Task's own
// FeatureFlags may further restrict (never relax) these.
type PipelineFlags struct {
	EnableParallelScenarios bool `yaml:"enable_parallel_scenarios" json:"enable_parallel_scenarios"`
	EnableVerification      bool `yaml:"enable_verification" json:"enable_verification"`
	EnableRAG               bool `yaml:"enable_rag" json:"enable_rag"`
}

// DefaultPipelineConfig returns the built-in defaults named in §6.4.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Timeouts: StageTimeouts{
			StageMs: 30_000 * time.Millisecond,
			QueryMs: 5_000 * time.Millisecond,
			AgentMs: 30_000 * time.Millisecond,
		},
		Scenarios: ScenarioConfig{
			Parallelism:      6,
			AffinityPoolSize: 6,
		},
		Cache: CacheConfig{
			Namespace:         "qnwis",
			DefaultTTLSeconds: 86400,
			Backend:           "memory",
		},
		Verification: VerificationConfig{
			Rounding: RoundingConfig{
				AbsEpsilon: 0.5,
				RelEpsilon: 0.01,
			},
			Percent: PercentConfig{
				EpsilonPct: 0.5,
				SumTo100:   true,
			},
			RequireCitationFirst: true,
			Strict:               false,
			IgnoreNumbersBelow:   1.0,
			IgnoreYears:          true,
		},
		FeatureFlags: PipelineFlags{
			EnableParallelScenarios: true,
			EnableVerification:      true,
			EnableRAG:               true,
		},
	}
}
