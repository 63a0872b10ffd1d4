package verifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/albarami/qnwis/pkg/models"
)

func defaultTolerances() Tolerances {
	return Tolerances{
		AbsEpsilon: decimal.NewFromFloat(0.5),
		RelEpsilon: decimal.NewFromFloat(0.01),
		EpsilonPct: decimal.NewFromFloat(0.5),
		PreferQID:  true,
	}
}

func TestBind_CountMatchesRowCount(t *testing.T) {
	claim := models.NumericClaim{Value: decimal.NewFromInt(1234), Unit: models.UnitCount}
	results := map[string]*models.QueryResult{
		"headcount_latest": {QueryID: "headcount_latest", RowCount: 1234},
	}

	binding := bind(claim, results, defaultTolerances())
	assert.True(t, binding.Matched)
	assert.Equal(t, "headcount_latest", binding.MatchedQueryID)
	assert.Equal(t, "row_count", binding.MatchedLocation)
}

func TestBind_CountMatchesFieldValue(t *testing.T) {
	claim := models.NumericClaim{Value: decimal.NewFromInt(500), Unit: models.UnitCount}
	results := map[string]*models.QueryResult{
		"vacancies_by_sector": {
			QueryID: "vacancies_by_sector",
			Rows: []models.Row{
				{"sector": "construction", "count": 500},
			},
		},
	}

	binding := bind(claim, results, defaultTolerances())
	assert.True(t, binding.Matched)
	assert.Contains(t, binding.MatchedLocation, "count")
}

func TestBind_CountWithinAbsoluteTolerance(t *testing.T) {
	claim := models.NumericClaim{Value: decimal.NewFromFloat(1234.3), Unit: models.UnitCount}
	results := map[string]*models.QueryResult{
		"headcount_latest": {QueryID: "headcount_latest", RowCount: 1234},
	}

	binding := bind(claim, results, defaultTolerances())
	assert.True(t, binding.Matched)
}

func TestBind_NoMatchOutsideTolerance(t *testing.T) {
	claim := models.NumericClaim{Value: decimal.NewFromInt(1500), Unit: models.UnitCount}
	results := map[string]*models.QueryResult{
		"headcount_latest": {QueryID: "headcount_latest", RowCount: 1234},
	}

	binding := bind(claim, results, defaultTolerances())
	assert.False(t, binding.Matched)
}

func TestBind_PercentMatchesBothRepresentations(t *testing.T) {
	tol := defaultTolerances()

	t.Run("claim in [0,1], data in [0,100]", func(t *testing.T) {
		claim := models.NumericClaim{Value: decimal.NewFromFloat(0.042), Unit: models.UnitPercent}
		results := map[string]*models.QueryResult{
			"unemployment_rate_latest": {
				QueryID: "unemployment_rate_latest",
				Rows:    []models.Row{{"rate": decimal.NewFromFloat(4.2)}},
			},
		}
		binding := bind(claim, results, tol)
		assert.True(t, binding.Matched)
	})

	t.Run("claim in [0,100], data in [0,100]", func(t *testing.T) {
		claim := models.NumericClaim{Value: decimal.NewFromFloat(4.2), Unit: models.UnitPercent}
		results := map[string]*models.QueryResult{
			"unemployment_rate_latest": {
				QueryID: "unemployment_rate_latest",
				Rows:    []models.Row{{"rate": decimal.NewFromFloat(4.2)}},
			},
		}
		binding := bind(claim, results, tol)
		assert.True(t, binding.Matched)
	})
}

func TestBind_QueryIDAnnotationRestrictsCandidates(t *testing.T) {
	claim := models.NumericClaim{Value: decimal.NewFromInt(10), Unit: models.UnitCount, QueryID: "target_query"}
	results := map[string]*models.QueryResult{
		"target_query": {QueryID: "target_query", RowCount: 10},
		"other_query":  {QueryID: "other_query", RowCount: 10},
	}

	binding := bind(claim, results, defaultTolerances())
	assert.True(t, binding.Matched)
	assert.Equal(t, "target_query", binding.MatchedQueryID)
}

func TestBind_QueryIDAnnotationNotFoundYieldsNoMatch(t *testing.T) {
	claim := models.NumericClaim{Value: decimal.NewFromInt(10), Unit: models.UnitCount, QueryID: "missing_query"}
	results := map[string]*models.QueryResult{
		"other_query": {QueryID: "other_query", RowCount: 10},
	}

	binding := bind(claim, results, defaultTolerances())
	assert.False(t, binding.Matched)
}

func TestBind_SourceFamilyRestrictsCandidates(t *testing.T) {
	claim := models.NumericClaim{Value: decimal.NewFromInt(7), Unit: models.UnitCount, SourceFamily: "lmis"}
	results := map[string]*models.QueryResult{
		"lmis_query":  {QueryID: "lmis_query", RowCount: 7, Provenance: models.Provenance{Dataset: "lmis"}},
		"other_query": {QueryID: "other_query", RowCount: 999, Provenance: models.Provenance{Dataset: "gcc-stat"}},
	}

	binding := bind(claim, results, defaultTolerances())
	assert.True(t, binding.Matched)
	assert.Equal(t, "lmis_query", binding.MatchedQueryID)
}
