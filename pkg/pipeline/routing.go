package pipeline

import "github.com/albarami/qnwis/pkg/models"

// nextStage is the pure transition function the driver's tail loop pumps:
// given the current stage, the complexity the classify stage assigned,
// and the task's feature flags, it returns the next stage to run (spec
// §4.1 routing table, §9 design notes).
//
// simple:   classify -> prefetch -> synthesize -> done
// medium:   classify -> prefetch -> rag -> agents -> verify -> synthesize -> done
// complex:  classify -> prefetch -> rag -> scenario_gen -> parallel_exec (serial) ->
//           meta_synthesis -> agent_selection -> agents -> debate -> critique -> verify -> synthesize -> done
// critical: same as complex, but parallel_exec fans out over every generated scenario.
//
// Feature flags may force parallel_exec to run serially (EnableParallelScenarios=false)
// or skip verify entirely (EnableVerification=false).
func nextStage(stage models.StageName, complexity models.Complexity, flags models.FeatureFlags) models.StageName {
	switch stage {
	case models.StageClassify:
		return models.StagePrefetch

	case models.StagePrefetch:
		if complexity == models.ComplexitySimple {
			return models.StageSynthesize
		}
		return models.StageRAG

	case models.StageRAG:
		if complexity == models.ComplexityMedium {
			return models.StageAgents
		}
		return models.StageScenarioGen

	case models.StageScenarioGen:
		return models.StageParallelExec

	case models.StageParallelExec:
		return models.StageMetaSynthesis

	case models.StageMetaSynthesis:
		return models.StageAgentSelection

	case models.StageAgentSelection:
		return models.StageAgents

	case models.StageAgents:
		if complexity == models.ComplexityMedium {
			return verifyOrSynthesize(flags)
		}
		return models.StageDebate

	case models.StageDebate:
		return models.StageCritique

	case models.StageCritique:
		return verifyOrSynthesize(flags)

	case models.StageVerify:
		return models.StageSynthesize

	case models.StageSynthesize:
		return models.StageDone

	default:
		return models.StageDone
	}
}

func verifyOrSynthesize(flags models.FeatureFlags) models.StageName {
	if flags.EnableVerification {
		return models.StageVerify
	}
	return models.StageSynthesize
}

// runsScenariosInParallel reports whether parallel_exec should fan the
// scenario set out concurrently (critical depth, flag not forced off) or
// run the generated scenarios serially.
func runsScenariosInParallel(complexity models.Complexity, flags models.FeatureFlags) bool {
	return complexity == models.ComplexityCritical && flags.EnableParallelScenarios
}
