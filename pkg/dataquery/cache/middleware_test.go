package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/qnwis/pkg/models"
)

func countingFetcher(calls *int) Fetcher {
	return func(ctx context.Context, queryID string, params map[string]any) (*models.QueryResult, error) {
		*calls++
		return &models.QueryResult{QueryID: queryID, RowCount: 1}, nil
	}
}

func TestMiddleware_MissThenHit(t *testing.T) {
	m := New(NewMemoryStore(), "qnwis", time.Hour, "query", nil)
	calls := 0
	fetch := countingFetcher(&calls)
	params := map[string]any{"metric": "unemployment"}

	res1, err := m.GetOrFetch(context.Background(), "unemployment_rate_latest", params, 0, fetch)
	require.NoError(t, err)
	assert.False(t, res1.CacheHit)
	assert.Equal(t, 1, calls)

	res2, err := m.GetOrFetch(context.Background(), "unemployment_rate_latest", params, 0, fetch)
	require.NoError(t, err)
	assert.True(t, res2.CacheHit)
	assert.Equal(t, 1, calls, "a cache hit must not call the underlying fetcher again")
}

func TestMiddleware_FetchErrorNotCached(t *testing.T) {
	m := New(NewMemoryStore(), "qnwis", time.Hour, "query", nil)
	wantErr := fmt.Errorf("backend failure")
	fetch := func(ctx context.Context, queryID string, params map[string]any) (*models.QueryResult, error) {
		return nil, wantErr
	}

	_, err := m.GetOrFetch(context.Background(), "q1", map[string]any{}, 0, fetch)
	require.ErrorIs(t, err, wantErr)
}

func TestMiddleware_DistinctParamsDoNotShareCacheEntries(t *testing.T) {
	m := New(NewMemoryStore(), "qnwis", time.Hour, "query", nil)
	calls := 0
	fetch := countingFetcher(&calls)

	_, err := m.GetOrFetch(context.Background(), "q1", map[string]any{"metric": "a"}, 0, fetch)
	require.NoError(t, err)
	_, err = m.GetOrFetch(context.Background(), "q1", map[string]any{"metric": "b"}, 0, fetch)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestMiddleware_InvalidateForcesRefetch(t *testing.T) {
	m := New(NewMemoryStore(), "qnwis", time.Hour, "query", nil)
	calls := 0
	fetch := countingFetcher(&calls)
	params := map[string]any{"metric": "unemployment"}

	_, err := m.GetOrFetch(context.Background(), "unemployment_rate_latest", params, 0, fetch)
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(context.Background(), "unemployment_rate_latest"))

	_, err = m.GetOrFetch(context.Background(), "unemployment_rate_latest", params, 0, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
