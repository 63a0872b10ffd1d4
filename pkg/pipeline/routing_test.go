package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/albarami/qnwis/pkg/models"
)

func TestNextStage_SimplePath(t *testing.T) {
	flags := models.FeatureFlags{EnableVerification: true}
	assert.Equal(t, models.StagePrefetch, nextStage(models.StageClassify, models.ComplexitySimple, flags))
	assert.Equal(t, models.StageSynthesize, nextStage(models.StagePrefetch, models.ComplexitySimple, flags))
	assert.Equal(t, models.StageDone, nextStage(models.StageSynthesize, models.ComplexitySimple, flags))
}

func TestNextStage_MediumPathWithVerification(t *testing.T) {
	flags := models.FeatureFlags{EnableVerification: true}
	assert.Equal(t, models.StageRAG, nextStage(models.StagePrefetch, models.ComplexityMedium, flags))
	assert.Equal(t, models.StageAgents, nextStage(models.StageRAG, models.ComplexityMedium, flags))
	assert.Equal(t, models.StageVerify, nextStage(models.StageAgents, models.ComplexityMedium, flags))
	assert.Equal(t, models.StageSynthesize, nextStage(models.StageVerify, models.ComplexityMedium, flags))
}

func TestNextStage_MediumPathSkipsVerificationWhenDisabled(t *testing.T) {
	flags := models.FeatureFlags{EnableVerification: false}
	assert.Equal(t, models.StageSynthesize, nextStage(models.StageAgents, models.ComplexityMedium, flags))
}

func TestNextStage_ComplexPathRunsFullFanOut(t *testing.T) {
	flags := models.FeatureFlags{EnableVerification: true}
	assert.Equal(t, models.StageScenarioGen, nextStage(models.StageRAG, models.ComplexityComplex, flags))
	assert.Equal(t, models.StageParallelExec, nextStage(models.StageScenarioGen, models.ComplexityComplex, flags))
	assert.Equal(t, models.StageMetaSynthesis, nextStage(models.StageParallelExec, models.ComplexityComplex, flags))
	assert.Equal(t, models.StageAgentSelection, nextStage(models.StageMetaSynthesis, models.ComplexityComplex, flags))
	assert.Equal(t, models.StageAgents, nextStage(models.StageAgentSelection, models.ComplexityComplex, flags))
	assert.Equal(t, models.StageDebate, nextStage(models.StageAgents, models.ComplexityComplex, flags))
	assert.Equal(t, models.StageCritique, nextStage(models.StageDebate, models.ComplexityComplex, flags))
	assert.Equal(t, models.StageVerify, nextStage(models.StageCritique, models.ComplexityComplex, flags))
}

func TestNextStage_CriticalPathSameShapeAsComplex(t *testing.T) {
	flags := models.FeatureFlags{EnableVerification: true}
	assert.Equal(t, models.StageScenarioGen, nextStage(models.StageRAG, models.ComplexityCritical, flags))
	assert.Equal(t, models.StageDebate, nextStage(models.StageAgents, models.ComplexityCritical, flags))
}

func TestNextStage_CritiqueSkipsVerifyWhenDisabled(t *testing.T) {
	flags := models.FeatureFlags{EnableVerification: false}
	assert.Equal(t, models.StageSynthesize, nextStage(models.StageCritique, models.ComplexityComplex, flags))
}

func TestNextStage_UnknownStageTerminates(t *testing.T) {
	assert.Equal(t, models.StageDone, nextStage(models.StageName("bogus"), models.ComplexitySimple, models.FeatureFlags{}))
}

func TestRunsScenariosInParallel_CriticalWithFlagEnabled(t *testing.T) {
	assert.True(t, runsScenariosInParallel(models.ComplexityCritical, models.FeatureFlags{EnableParallelScenarios: true}))
}

func TestRunsScenariosInParallel_CriticalWithFlagDisabled(t *testing.T) {
	assert.False(t, runsScenariosInParallel(models.ComplexityCritical, models.FeatureFlags{EnableParallelScenarios: false}))
}

func TestRunsScenariosInParallel_ComplexNeverParallel(t *testing.T) {
	assert.False(t, runsScenariosInParallel(models.ComplexityComplex, models.FeatureFlags{EnableParallelScenarios: true}))
}

func TestVerifyOrSynthesize(t *testing.T) {
	assert.Equal(t, models.StageVerify, verifyOrSynthesize(models.FeatureFlags{EnableVerification: true}))
	assert.Equal(t, models.StageSynthesize, verifyOrSynthesize(models.FeatureFlags{EnableVerification: false}))
}
