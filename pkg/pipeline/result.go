package pipeline

import (
	"context"
	"errors"
	"sort"

	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/dataquery"
	"github.com/albarami/qnwis/pkg/models"
)

// Handle is returned alongside a run's event stream (pipeline.Driver.Run)
// and resolves to the terminal result once the stream's final
// {stage=done} event has been delivered — the "terminal BriefingResult |
// FailureReport" half of the public contract in spec §4.1.
type Handle struct {
	done     chan struct{}
	briefing models.BriefingResult
	failure  *models.FailureReport
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Result blocks until the run has finished and returns its terminal
// value: exactly one of (briefing, nil) or (zero value, failure) is
// meaningful, distinguished by whether failure is nil.
func (h *Handle) Result() (models.BriefingResult, *models.FailureReport) {
	<-h.done
	return h.briefing, h.failure
}

func (h *Handle) resolveBriefing(b models.BriefingResult) {
	h.briefing = b
	close(h.done)
}

func (h *Handle) resolveFailure(f models.FailureReport) {
	h.failure = &f
	close(h.done)
}

// buildDeterministicFields assembles the idempotence-checked subset of a
// BriefingResult (spec §8): what ran, not the LLM-generated prose.
func buildDeterministicFields(state *models.RunState) models.DeterministicFields {
	fields := models.DeterministicFields{
		ParamsUsed: make(map[string]map[string]any, len(state.Prefetched)),
		RowCounts:  make(map[string]int, len(state.Prefetched)),
	}
	for qid, result := range state.Prefetched {
		fields.QueryIDsExecuted = append(fields.QueryIDsExecuted, qid)
		if result != nil {
			fields.ParamsUsed[qid] = result.ParamsUsed
			fields.RowCounts[qid] = result.RowCount
		}
	}
	sort.Strings(fields.QueryIDsExecuted)
	if state.Verification != nil {
		fields.VerificationOK = state.Verification.OK
	} else {
		fields.VerificationOK = true
	}
	return fields
}

func buildBriefing(state *models.RunState) models.BriefingResult {
	return models.BriefingResult{
		RequestID:           state.Task.RequestID,
		Narrative:           state.MetaSynthesis,
		Warnings:            state.Warnings,
		Verification:        state.Verification,
		DeterministicFields: buildDeterministicFields(state),
	}
}

// codeFor maps a failing stage's error to the taxonomy in spec §7.
func codeFor(stage models.StageName, stageCtx context.Context, runCtx context.Context, err error) string {
	switch {
	case runCtx.Err() == context.Canceled:
		return "Cancelled"
	case stageCtx.Err() == context.DeadlineExceeded:
		return "StageTimeout"
	case errors.Is(err, config.ErrUnknownIntent):
		return "UnknownIntent"
	case errors.Is(err, dataquery.ErrParamValidation):
		return "ParamValidation"
	case errors.Is(err, config.ErrUnknownQuery), errors.Is(err, dataquery.ErrUnknownQuery):
		return "UnknownQuery"
	case errors.Is(err, dataquery.ErrResultTooLarge):
		return "ResultTooLarge"
	case errors.Is(err, dataquery.ErrBackendFailure), errors.Is(err, dataquery.ErrPoolExhausted):
		return "BackendFailure"
	case stage == models.StageVerify:
		return "VerificationFailed"
	default:
		return "StageFailure"
	}
}
