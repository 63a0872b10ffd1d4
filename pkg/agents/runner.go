// Package agents fans a run's selected specialist agents out across a
// bounded pool of goroutines (spec §4.4: "Agents in one run execute in
// parallel, bounded by a per-run concurrency limit (default = number of
// selected agents, capped at 8). No state sharing between agents.").
//
// Grounded on pkg/agent/orchestrator.SubAgentRunner's concurrency-bounded
// fan-out, simplified from its push/Dispatch+resultsCh protocol (needed
// there because sub-agents are spawned mid-iteration from inside a ReAct
// loop) to a single blocking call: every stage wanting "run N things now,
// bounded by W, give me everything back" is the same shape, so this uses
// golang.org/x/sync/errgroup's bounded-limit group instead of hand-rolling
// the semaphore the teacher needed for its more dynamic dispatch pattern.
package agents

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/albarami/qnwis/pkg/agentharness"
	"github.com/albarami/qnwis/pkg/config"
	"github.com/albarami/qnwis/pkg/models"
)

// MaxConcurrentAgents is the hard cap on per-run agent concurrency
// regardless of how many agents are selected (spec §4.4).
const MaxConcurrentAgents = 8

// PromptBuilderFor returns the prompt-building closure for one agent in
// the context of the current run — it closes over the run's task,
// prefetched facts and (for the debate stage reused as an "agent") other
// agents' reports, so the harness itself stays agent-agnostic.
type PromptBuilderFor func(agentName string, run *models.RunState) func(facts map[string]*models.QueryResult, retry bool, offending []models.VerificationIssue) string

// Runner executes the set of selected agents for one run, implementing
// pipeline.AgentRunner.
type Runner struct {
	registry    *config.AgentRegistry
	harness     *agentharness.Harness
	prefetch    agentharness.Prefetcher
	promptFor   PromptBuilderFor
	concurrency int
}

// New builds a Runner. concurrency<=0 defaults to MaxConcurrentAgents.
func New(registry *config.AgentRegistry, harness *agentharness.Harness, prefetch agentharness.Prefetcher, promptFor PromptBuilderFor, concurrency int) *Runner {
	if concurrency <= 0 || concurrency > MaxConcurrentAgents {
		concurrency = MaxConcurrentAgents
	}
	return &Runner{registry: registry, harness: harness, prefetch: prefetch, promptFor: promptFor, concurrency: concurrency}
}

// Run executes every named agent concurrently, bounded by r.concurrency,
// and returns every successful AgentReport plus a warning for every agent
// that failed. An agent failure never fails the run by itself (spec §7:
// "agent failures when >= one agent succeeded" are warnings only); if
// every selected agent fails, Run returns an error.
func (r *Runner) Run(ctx context.Context, names []string, run *models.RunState) ([]models.AgentReport, []string, error) {
	limit := r.concurrency
	if len(names) < limit {
		limit = len(names)
	}
	if limit <= 0 {
		limit = 1
	}

	type slot struct {
		report  *models.AgentReport
		warning string
	}
	slots := make([]slot, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			def, err := r.registry.Get(name)
			if err != nil {
				slots[i] = slot{warning: fmt.Sprintf("agent_not_found:%s", name)}
				return nil
			}

			outcome := r.harness.Run(gctx, def, r.promptFor(name, run), r.prefetch)
			if outcome.Failed {
				slots[i] = slot{warning: fmt.Sprintf("agent_failed:%s:%s", name, outcome.Reason)}
				return nil
			}
			slots[i] = slot{report: outcome.Report}
			return nil
		})
	}

	// g.Wait's error is always nil here: agent failures are captured per-
	// slot and every goroutine returns nil. Cancellation of ctx is not
	// reported by Wait; it surfaces via ctx.Err() below.
	_ = g.Wait()

	var reports []models.AgentReport
	var warnings []string
	for _, s := range slots {
		if s.report != nil {
			reports = append(reports, *s.report)
		}
		if s.warning != "" {
			warnings = append(warnings, s.warning)
		}
	}

	if len(reports) == 0 && len(names) > 0 {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("all %d agents failed", len(names))
	}
	return reports, warnings, nil
}
