package executor

import (
	"context"

	"github.com/harrison/pursuit/internal/models"
)

// runParallel runs ready actions concurrently, bounded by maxConcurrency.
// Each round launches every Pending action whose dependencies have succeeded,
// up to the remaining budget, then waits for the next completion. Results
// arrive on a channel buffered for every action, so workers never block on
// send even after the plan has been abandoned.
func (e *PlanExecutor) runParallel(ctx context.Context, plan *models.Plan, run *planRun) {
	limit := e.maxConcurrency
	if limit <= 0 {
		limit = 1
	}
	resultsCh := make(chan actionOutcome, len(plan.Actions))
	inFlight := make(map[string]bool)

	e.mu.Lock()
	defer e.mu.Unlock()

	for !plan.Status.IsTerminal() {
		if ctx.Err() != nil {
			e.abortPlan(plan, models.PlanCancelled, run.reason(ctx))
			break
		}
		e.propagateSkips(plan)
		if lost := plan.FailedCritical(); lost != nil {
			e.abortPlan(plan, models.PlanFailedAction, lossReason(lost))
			break
		}
		if plan.Status.IsTerminal() {
			break
		}

		settled := false
		if !run.pause {
			for _, action := range plan.Actions {
				if len(inFlight) >= limit {
					break
				}
				if action.Status != models.ActionPending {
					continue
				}
				if ready, _ := dependencyState(plan, action); !ready {
					continue
				}
				bound, ok := e.startAction(plan, action)
				if !ok {
					settled = true
					continue
				}
				inFlight[action.ID] = true
				go func(a models.Action) {
					result, err := e.invoke(ctx, a)
					resultsCh <- actionOutcome{id: a.ID, result: result, err: err}
				}(bound)
			}
		}

		if len(inFlight) == 0 {
			if settled {
				// a param failed to resolve; re-evaluate skips and losses
				continue
			}
			switch {
			case plan.Status.IsTerminal():
			case run.pause:
				e.pausePlan(plan)
			case plan.Outstanding() == 0:
				e.finishPlan(plan)
			default:
				e.abortPlan(plan, models.PlanFailedValidation, "no runnable actions remain")
			}
			break
		}

		e.mu.Unlock()
		out := <-resultsCh
		e.mu.Lock()

		delete(inFlight, out.id)
		if action := plan.Action(out.id); action != nil {
			e.completeAction(ctx, plan, action, out.result, out.err, run)
		}
	}

	if len(inFlight) == 0 {
		return
	}

	// The plan ended with actions still running: cancel them and wait for
	// their workers, which return as soon as ctx is done.
	run.cancel()
	for len(inFlight) > 0 {
		e.mu.Unlock()
		out := <-resultsCh
		e.mu.Lock()
		delete(inFlight, out.id)
	}
}

// propagateSkips marks every Pending action with a blocked dependency as
// SkippedDependency, repeating until no more actions change so the skip
// propagates transitively.
func (e *PlanExecutor) propagateSkips(plan *models.Plan) {
	for changed := true; changed; {
		changed = false
		for _, action := range plan.Actions {
			if action.Status != models.ActionPending {
				continue
			}
			if _, blocked := dependencyState(plan, action); blocked != nil {
				e.settleAction(plan, action, models.ActionSkippedDependency, nil, blocked)
				changed = true
			}
		}
	}
}
