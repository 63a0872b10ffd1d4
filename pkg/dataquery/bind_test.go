package dataquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/qnwis/pkg/models"
)

func sampleQueryDef() *models.QueryDefinition {
	return &models.QueryDefinition{
		QueryID: "unemployment_rate_latest",
		Dataset: "lmis",
		Template: "SELECT rate FROM rates WHERE metric = :metric AND year >= :min_year",
		Parameters: []models.ParamDefinition{
			{Name: "metric", Type: models.ParamString, Required: true},
			{Name: "min_year", Type: models.ParamInt, Required: false, Default: 2000, Range: &models.ParamRange{Min: 1990, Max: 2100}},
		},
		CacheTTLSeconds:     3600,
		FreshnessSLASeconds: 86400,
		AccessLevel:         models.AccessPublic,
	}
}

func TestBindParams_RejectsUndeclaredParam(t *testing.T) {
	def := sampleQueryDef()
	_, err := BindParams(def, map[string]any{"metric": "unemployment", "evil": "' OR 1=1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParamValidation)
}

func TestBindParams_AppliesDefaultForMissingOptional(t *testing.T) {
	def := sampleQueryDef()
	bound, err := BindParams(def, map[string]any{"metric": "unemployment"})
	require.NoError(t, err)
	assert.Equal(t, "unemployment", bound["metric"])
	assert.Equal(t, 2000, bound["min_year"])
}

func TestBindParams_MissingRequiredFails(t *testing.T) {
	def := sampleQueryDef()
	_, err := BindParams(def, map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParamValidation)
}

func TestBindParams_RangeViolationFails(t *testing.T) {
	def := sampleQueryDef()
	_, err := BindParams(def, map[string]any{"metric": "unemployment", "min_year": 1800})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParamValidation)
}

func TestBindParams_RangeWithinBoundsSucceeds(t *testing.T) {
	def := sampleQueryDef()
	bound, err := BindParams(def, map[string]any{"metric": "unemployment", "min_year": 2010})
	require.NoError(t, err)
	assert.Equal(t, 2010, bound["min_year"])
}

func TestValidateParams_CoercesFloatIntToInt(t *testing.T) {
	params := []models.ParamDefinition{{Name: "count", Type: models.ParamInt, Required: true}}
	bound, err := ValidateParams(params, map[string]any{"count": float64(42)})
	require.NoError(t, err)
	assert.Equal(t, 42, bound["count"])
}

func TestValidateParams_RejectsNonIntegralFloat(t *testing.T) {
	params := []models.ParamDefinition{{Name: "count", Type: models.ParamInt, Required: true}}
	_, err := ValidateParams(params, map[string]any{"count": 42.5})
	require.Error(t, err)
}

func TestValidateParams_CoercesDateFromRFC3339AndShortForm(t *testing.T) {
	params := []models.ParamDefinition{{Name: "asof", Type: models.ParamDate, Required: true}}

	bound, err := ValidateParams(params, map[string]any{"asof": "2024-01-15"})
	require.NoError(t, err)
	_, ok := bound["asof"].(time.Time)
	assert.True(t, ok)

	bound, err = ValidateParams(params, map[string]any{"asof": "2024-01-15T00:00:00Z"})
	require.NoError(t, err)
	_, ok = bound["asof"].(time.Time)
	assert.True(t, ok)
}

func TestValidateParams_RejectsWrongType(t *testing.T) {
	params := []models.ParamDefinition{{Name: "flag", Type: models.ParamBool, Required: true}}
	_, err := ValidateParams(params, map[string]any{"flag": "yes"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParamValidation)
}

func TestValidateParams_OptionalWithoutDefaultOmitted(t *testing.T) {
	params := []models.ParamDefinition{{Name: "optional_tag", Type: models.ParamString, Required: false}}
	bound, err := ValidateParams(params, map[string]any{})
	require.NoError(t, err)
	_, present := bound["optional_tag"]
	assert.False(t, present)
}
