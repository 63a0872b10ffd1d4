package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/qnwis/pkg/models"
)

func TestQueryRegistry_GetKnownAndUnknown(t *testing.T) {
	reg := NewQueryRegistry(map[string]*models.QueryDefinition{
		"unemployment_rate_latest": {QueryID: "unemployment_rate_latest"},
	})

	def, err := reg.Get("unemployment_rate_latest")
	require.NoError(t, err)
	assert.Equal(t, "unemployment_rate_latest", def.QueryID)

	_, err = reg.Get("nope")
	require.ErrorIs(t, err, ErrUnknownQuery)
}

func TestQueryRegistry_ConstructorDefensiveCopy(t *testing.T) {
	src := map[string]*models.QueryDefinition{"q1": {QueryID: "q1"}}
	reg := NewQueryRegistry(src)

	src["q2"] = &models.QueryDefinition{QueryID: "q2"}
	_, err := reg.Get("q2")
	assert.ErrorIs(t, err, ErrUnknownQuery, "mutating the caller's map after construction must not affect the registry")
}

func TestQueryRegistry_AllReturnsDefensiveCopy(t *testing.T) {
	reg := NewQueryRegistry(map[string]*models.QueryDefinition{"q1": {QueryID: "q1"}})

	all := reg.All()
	all["q2"] = &models.QueryDefinition{QueryID: "q2"}

	assert.Equal(t, 1, reg.Len(), "mutating the returned map must not affect the registry")
}

func TestIntentRegistry_GetKnownAndUnknown(t *testing.T) {
	reg := NewIntentRegistry(map[string]*IntentDefinition{
		"labor_market_overview": {Name: "labor_market_overview"},
	})

	def, err := reg.Get("labor_market_overview")
	require.NoError(t, err)
	assert.Equal(t, "labor_market_overview", def.Name)

	_, err = reg.Get("bogus")
	require.ErrorIs(t, err, ErrUnknownIntent)
}

func TestIntentRegistry_NamesListsAllRegistered(t *testing.T) {
	reg := NewIntentRegistry(map[string]*IntentDefinition{
		"a": {Name: "a"},
		"b": {Name: "b"},
	})
	assert.ElementsMatch(t, []string{"a", "b"}, reg.Names())
}

func TestMaterializationRegistry_GetKnownAndUnknown(t *testing.T) {
	reg := NewMaterializationRegistry(map[string]*models.MaterializationSpec{
		"unemployment_daily": {Name: "unemployment_daily"},
	})

	spec, ok := reg.Get("unemployment_daily")
	require.True(t, ok)
	assert.Equal(t, "unemployment_daily", spec.Name)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestAgentRegistry_GetKnownAndUnknown(t *testing.T) {
	reg := NewAgentRegistry(map[string]*models.AgentDefinition{
		"econ": {Name: "econ"},
	})

	def, err := reg.Get("econ")
	require.NoError(t, err)
	assert.Equal(t, "econ", def.Name)

	_, err = reg.Get("ghost")
	require.ErrorIs(t, err, ErrAgentNotFound)
}
