package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/albarami/qnwis/pkg/agentharness"
	"github.com/albarami/qnwis/pkg/agents"
	"github.com/albarami/qnwis/pkg/api"
	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/database"
	"github.com/albarami/qnwis/pkg/dataquery"
	"github.com/albarami/qnwis/pkg/dataquery/cache"
	"github.com/albarami/qnwis/pkg/events"
	"github.com/albarami/qnwis/pkg/llm"
	"github.com/albarami/qnwis/pkg/materialize"
	"github.com/albarami/qnwis/pkg/metrics"
	"github.com/albarami/qnwis/pkg/models"
	"github.com/albarami/qnwis/pkg/pipeline"
	"github.com/albarami/qnwis/pkg/synthesis"
	"github.com/albarami/qnwis/pkg/verifier"
)

// defaultScenarioPool is the declarative policy-variant name pool
// synthesis.Stages.ScenarioGen draws from when an intent doesn't need a
// narrower set (spec §4.3).
var defaultScenarioPool = []string{"baseline", "accelerated", "conservative"}

// App bundles every process-lifetime resource cmd/qnwis needs to start
// serving traffic and to shut down cleanly.
type App struct {
	Server    *api.Server
	Refresher *materialize.Refresher
	DBClient  *database.Client
	Registry  *prometheus.Registry
}

// Build loads the declarative catalog from configDir and wires every
// collaborator into a running Driver + HTTP server, the job
// cmd/tarsy/main.go's teacher ancestor does inline for its own
// (ent-backed) services.
func Build(ctx context.Context, configDir string, provider llm.Provider, retriever llm.Retriever) (*App, error) {
	cat, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}
	dbClient, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	queryRegistry := config.NewQueryRegistry(cat.Queries)
	agentRegistry := config.NewAgentRegistry(cat.Agents)

	engine := database.NewPostgresEngine(dbClient)
	auditLog := database.NewAuditLog(dbClient)
	pool := dataquery.NewConnectionPool(dbCfg.MaxOpenConns, 5*time.Second)
	dqClient := dataquery.NewClient(queryRegistry, engine, pool, auditLog, m)

	store, err := buildCacheStore(cat.Pipeline.Cache)
	if err != nil {
		return nil, err
	}
	cacheTTL := time.Duration(cat.Pipeline.Cache.DefaultTTLSeconds) * time.Second
	queryCache := cache.New(store, cat.Pipeline.Cache.Namespace, cacheTTL, "query", m)

	stateStore := database.NewMaterializationStateStore(dbClient)
	materializer := database.NewPostgresMaterializer(dbClient, queryRegistry)
	refresher := materialize.New(cat.Materializations, materializer, stateStore, m)

	verifierCfg := verifierConfigFrom(cat.Pipeline.Verification)
	claimVerifier := verifier.New(verifierCfg, m)

	stages := synthesis.New(provider, cat, defaultScenarioPool)

	harnessCfg := agentharness.Config{
		RequireCitationFirst: cat.Pipeline.Verification.RequireCitationFirst,
		Strict:               cat.Pipeline.Verification.Strict,
		AgentTimeout:         cat.Pipeline.Timeouts.AgentMs,
	}
	harness := agentharness.New(provider, claimVerifier, harnessCfg)

	agentPrefetcher := newAgentPrefetcher(queryRegistry, dqClient, queryCache)
	promptBuilder := newPromptBuilder(agentRegistry)
	agentRunner := agents.New(agentRegistry, harness, agentPrefetcher, promptBuilder, 0)

	scenarioRunner := NewScenarioRunner(cat, agentRunner, stages, cat.Pipeline.Scenarios.Parallelism, cat.Pipeline.Scenarios.AffinityPoolSize, m)

	retrieveFunc := newRetrieveFunc(retriever)

	deps := &pipeline.Deps{
		Catalog:      cat,
		Classifier:   synthesis.NewHeuristicClassifier(),
		Prefetch:     newPipelinePrefetch(queryRegistry, dqClient, queryCache),
		Retrieve:     retrieveFunc,
		ScenarioGen:  stages.ScenarioGen,
		Scenarios:    scenarioRunner,
		MetaSynth:    stages.MetaSynthesize,
		SelectAgents: stages.SelectAgents,
		Agents:       agentRunner,
		Debate:       stages.Debate,
		Critique:     stages.Critique,
		Verify:       claimVerifier.Verify,
		Synthesize:   stages.Synthesize,
	}

	driver := pipeline.New(deps, cat.Pipeline.Timeouts, cat.Pipeline.Verification.Strict, m)
	hub := events.NewHub()
	server := api.NewServer(driver, hub, dbClient)

	return &App{Server: server, Refresher: refresher, DBClient: dbClient, Registry: reg}, nil
}

func buildCacheStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return cache.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func verifierConfigFrom(cfg config.VerificationConfig) verifier.Config {
	def := verifier.DefaultConfig()
	return verifier.Config{
		AbsEpsilon:           decimalFromFloat(cfg.Rounding.AbsEpsilon),
		RelEpsilon:           decimalFromFloat(cfg.Rounding.RelEpsilon),
		EpsilonPct:           decimalFromFloat(cfg.Percent.EpsilonPct),
		SumTo100:             cfg.Percent.SumTo100,
		RequireCitationFirst: cfg.RequireCitationFirst,
		Strict:               cfg.Strict,
		IgnoreNumbersBelow:   cfg.IgnoreNumbersBelow,
		IgnoreYears:          cfg.IgnoreYears,
		PreferQueryID:        def.PreferQueryID,
	}
}

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// newRetrieveFunc adapts an llm.Retriever (nil-able: spec §6.3 treats a
// null retriever as acceptable) into the pipeline's RetrieveFunc shape.
func newRetrieveFunc(retriever llm.Retriever) func(ctx context.Context, query string, topK int) ([]models.RAGSnippet, error) {
	return func(ctx context.Context, query string, topK int) ([]models.RAGSnippet, error) {
		if retriever == nil {
			return nil, nil
		}
		hits, err := retriever.Retrieve(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		snippets := make([]models.RAGSnippet, 0, len(hits))
		for _, h := range hits {
			snippets = append(snippets, models.RAGSnippet{Source: h.Source, Snippet: h.Snippet, Score: h.Score})
		}
		return snippets, nil
	}
}
