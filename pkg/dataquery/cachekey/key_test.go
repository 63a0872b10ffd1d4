package cachekey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuild_SameParamsDifferentOrderSameKey(t *testing.T) {
	k1 := Build("qnwis", "query", "unemployment_rate_latest", map[string]any{"a": 1, "b": 2})
	k2 := Build("qnwis", "query", "unemployment_rate_latest", map[string]any{"b": 2, "a": 1})
	assert.Equal(t, k1, k2)
}

func TestBuild_DifferentParamsDifferentKey(t *testing.T) {
	k1 := Build("qnwis", "query", "unemployment_rate_latest", map[string]any{"metric": "unemployment"})
	k2 := Build("qnwis", "query", "unemployment_rate_latest", map[string]any{"metric": "vacancies"})
	assert.NotEqual(t, k1, k2)
}

func TestBuild_DifferentQueryIDDifferentKey(t *testing.T) {
	k1 := Build("qnwis", "query", "query_a", map[string]any{"x": 1})
	k2 := Build("qnwis", "query", "query_b", map[string]any{"x": 1})
	assert.NotEqual(t, k1, k2)
}

func TestBuild_IncludesNamespaceOpSchemaVersion(t *testing.T) {
	k := Build("qnwis", "query", "unemployment_rate_latest", map[string]any{})
	assert.Contains(t, k, "qnwis:qr:query:unemployment_rate_latest:")
	assert.Contains(t, k, ":"+SchemaVersion)
}

func TestHash16_Length(t *testing.T) {
	h := Hash16(map[string]any{"a": 1})
	assert.Len(t, h, 16)
}

func TestCanonicalize_NestedMapsSortedRecursively(t *testing.T) {
	c1 := Canonicalize(map[string]any{
		"outer": map[string]any{"z": 1, "a": 2},
		"top":   "value",
	})
	c2 := Canonicalize(map[string]any{
		"top":   "value",
		"outer": map[string]any{"a": 2, "z": 1},
	})
	assert.Equal(t, c1, c2)
}

func TestCanonicalize_DatesRenderedISO8601(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2024, 1, 15, 12, 0, 0, 0, loc)
	out := Canonicalize(map[string]any{"asof": ts})
	assert.Contains(t, string(out), "2024-01-15T09:00:00Z")
}

func TestCanonicalize_SliceElementsNormalized(t *testing.T) {
	c1 := Canonicalize(map[string]any{"tags": []any{map[string]any{"b": 1, "a": 2}}})
	c2 := Canonicalize(map[string]any{"tags": []any{map[string]any{"a": 2, "b": 1}}})
	assert.Equal(t, c1, c2)
}

func TestBuild_DeterministicAcrossCalls(t *testing.T) {
	params := map[string]any{"metric": "unemployment", "min_year": 2010}
	k1 := Build("qnwis", "query", "unemployment_rate_latest", params)
	k2 := Build("qnwis", "query", "unemployment_rate_latest", params)
	assert.Equal(t, k1, k2)
}
