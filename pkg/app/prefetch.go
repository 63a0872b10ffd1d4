package app

import (
	"context"
	"time"

	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/dataquery"
	"github.com/albarami/qnwis/pkg/dataquery/cache"
	"github.com/albarami/qnwis/pkg/models"
)

// fetchQueries resolves every query_id in queryIDs through the cache
// middleware, scoping params down per query (a query's BindParams
// rejects any param it doesn't declare, so one shared param map can't be
// forwarded to every query verbatim).
func fetchQueries(ctx context.Context, registry *config.QueryRegistry, client *dataquery.Client, mw *cache.Middleware, args dataquery.ExecuteArgs, queryIDs []string, params map[string]any) (map[string]*models.QueryResult, error) {
	out := make(map[string]*models.QueryResult, len(queryIDs))
	for _, queryID := range queryIDs {
		def, err := registry.Get(queryID)
		if err != nil {
			return nil, err
		}
		scoped := filterParams(params, def.AllowedParamNames())

		ttl := time.Duration(def.CacheTTLSeconds) * time.Second
		result, err := mw.GetOrFetch(ctx, queryID, scoped, ttl, func(ctx context.Context, queryID string, params map[string]any) (*models.QueryResult, error) {
			return client.Execute(ctx, queryID, params, args)
		})
		if err != nil {
			return nil, err
		}
		out[queryID] = result.QueryResult
	}
	return out, nil
}

func filterParams(params map[string]any, allowed map[string]bool) map[string]any {
	scoped := make(map[string]any, len(allowed))
	for name, value := range params {
		if allowed[name] {
			scoped[name] = value
		}
	}
	return scoped
}

// newPipelinePrefetch builds the prefetch stage's pipeline.PrefetchFunc,
// scoping the task's declared params per query.
func newPipelinePrefetch(registry *config.QueryRegistry, client *dataquery.Client, mw *cache.Middleware) func(ctx context.Context, queryIDs []string, params map[string]any) (map[string]*models.QueryResult, error) {
	return func(ctx context.Context, queryIDs []string, params map[string]any) (map[string]*models.QueryResult, error) {
		return fetchQueries(ctx, registry, client, mw, dataquery.ExecuteArgs{}, queryIDs, params)
	}
}

// newAgentPrefetcher builds the agentharness.Prefetcher every specialist
// agent invocation uses for its own declared selectable_query_ids.
// agentharness.Prefetcher carries no per-call params (an agent's
// selectable queries are facts looked up by id, not re-parametrized per
// task), so every declared parameter is left to its default.
func newAgentPrefetcher(registry *config.QueryRegistry, client *dataquery.Client, mw *cache.Middleware) func(ctx context.Context, queryIDs []string) (map[string]*models.QueryResult, error) {
	return func(ctx context.Context, queryIDs []string) (map[string]*models.QueryResult, error) {
		return fetchQueries(ctx, registry, client, mw, dataquery.ExecuteArgs{}, queryIDs, nil)
	}
}
