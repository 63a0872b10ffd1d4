// Package synthesis supplies the concrete pipeline.Deps stage
// implementations the bare pipeline.Driver needs to actually run:
// complexity classification, scenario generation, meta-synthesis, agent
// selection, debate, critique and final synthesis, each composing
// prompt text and (where applicable) calling through pkg/llm.Provider.
//
// Grounded on pkg/agent/prompt/builder.go's stateless, no-mutable-state
// composition style (plain methods over strings.Builder, package-level
// constants for fixed fragments) generalized from ReAct/chat prompt
// assembly to this pipeline's six LLM-backed stages.
package synthesis

import (
	"context"
	"strings"

	"github.com/albarami/qnwis/pkg/models"
)

// HeuristicClassifier assigns Complexity from a Task's declared Depth and
// a coarse question-length heuristic, deterministically — routing must
// stay reproducible across identical runs (spec §8's idempotence
// property), so this never consults the LLM.
type HeuristicClassifier struct {
	// SimpleQuestionWords is the word-count threshold below which a
	// standard-depth, single-or-no-param question classifies as simple
	// rather than medium.
	SimpleQuestionWords int
}

// NewHeuristicClassifier builds a classifier with the default threshold.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{SimpleQuestionWords: 12}
}

// Classify implements pipeline.Classifier.
func (c *HeuristicClassifier) Classify(_ context.Context, task models.Task) (models.Complexity, error) {
	switch task.Depth {
	case models.DepthLegendary:
		return models.ComplexityCritical, nil
	case models.DepthDeep:
		return models.ComplexityComplex, nil
	default:
		if c.isSimple(task) {
			return models.ComplexitySimple, nil
		}
		return models.ComplexityMedium, nil
	}
}

func (c *HeuristicClassifier) isSimple(task models.Task) bool {
	threshold := c.SimpleQuestionWords
	if threshold <= 0 {
		threshold = 12
	}
	return len(task.Params) <= 1 && len(strings.Fields(task.QuestionText)) < threshold
}
