package verifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albarami/qnwis/pkg/models"
)

func TestExtract_BasicTokens(t *testing.T) {
	narrative := "Per LMIS: the unemployment rate was 4.2% in the labor force. Total headcount was 1,234 workers."
	claims := Extract(narrative, ExtractOptions{IgnoreYears: true, IgnoreNumbersBelow: 0})

	require.Len(t, claims, 2)

	pct := claims[0]
	assert.Equal(t, models.UnitPercent, pct.Unit)
	assert.True(t, pct.Value.Equal(decimal.NewFromFloat(4.2)))
	assert.Equal(t, "LMIS", pct.CitationPrefix)

	count := claims[1]
	assert.Equal(t, models.UnitCount, count.Unit)
	assert.True(t, count.Value.Equal(decimal.NewFromFloat(1234)))
}

func TestExtract_CurrencyUnits(t *testing.T) {
	narrative := "According to GCC-STAT: salaries averaged 5000 QAR last quarter."
	claims := Extract(narrative, ExtractOptions{IgnoreYears: true, IgnoreNumbersBelow: 0})

	require.Len(t, claims, 1)
	assert.Equal(t, models.ClaimUnit("currency"), claims[0].Unit)
	assert.Equal(t, "GCC-STAT", claims[0].CitationPrefix)
}

func TestExtract_IgnoresYearsWhenConfigured(t *testing.T) {
	narrative := "In 2023 the rate was 4.2%."
	claims := Extract(narrative, ExtractOptions{IgnoreYears: true, IgnoreNumbersBelow: 0})

	require.Len(t, claims, 1)
	assert.Equal(t, models.UnitPercent, claims[0].Unit)
}

func TestExtract_KeepsYearsWhenNotIgnored(t *testing.T) {
	narrative := "In 2023 the rate was 4.2%."
	claims := Extract(narrative, ExtractOptions{IgnoreYears: false, IgnoreNumbersBelow: 0})

	require.Len(t, claims, 2)
}

func TestExtract_FiltersBelowThreshold(t *testing.T) {
	narrative := "The adjustment factor was 0.3 this cycle, affecting 500 employees."
	claims := Extract(narrative, ExtractOptions{IgnoreYears: true, IgnoreNumbersBelow: 1.0})

	require.Len(t, claims, 1)
	assert.True(t, claims[0].Value.Equal(decimal.NewFromFloat(500)))
}

func TestExtract_QIDAnnotation(t *testing.T) {
	narrative := "Headcount was 1,500 workers QID:unemployment_rate_latest."
	claims := Extract(narrative, ExtractOptions{IgnoreYears: true, IgnoreNumbersBelow: 0})

	require.Len(t, claims, 1)
	assert.Equal(t, "unemployment_rate_latest", claims[0].QueryID)
}

func TestExtract_NoCitationLeavesPrefixEmpty(t *testing.T) {
	narrative := "Approximately 42 vacancies were reported this month."
	claims := Extract(narrative, ExtractOptions{IgnoreYears: true, IgnoreNumbersBelow: 0})

	require.Len(t, claims, 1)
	assert.Empty(t, claims[0].CitationPrefix)
}
