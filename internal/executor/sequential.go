package executor

import (
	"context"
	"errors"

	"github.com/harrison/pursuit/internal/models"
)

var errDependenciesIncomplete = errors.New("dependencies have not completed")

// runSequential runs actions one at a time in declared order, starting at the
// plan cursor. A critical failure halts the plan; the remaining actions are
// cancelled without being attempted.
func (e *PlanExecutor) runSequential(ctx context.Context, plan *models.Plan, run *planRun) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkSequentialOrder(plan.Actions); err != nil {
		e.abortPlan(plan, models.PlanFailedValidation, err.Error())
		return
	}

	for plan.Cursor < len(plan.Actions) {
		if plan.Status.IsTerminal() {
			return
		}
		if ctx.Err() != nil {
			e.abortPlan(plan, models.PlanCancelled, run.reason(ctx))
			return
		}
		if run.pause {
			e.pausePlan(plan)
			return
		}

		action := plan.Actions[plan.Cursor]
		if action.Status.IsTerminal() {
			// settled before a restart
			plan.Cursor++
			continue
		}

		ready, blocked := dependencyState(plan, action)
		switch {
		case blocked != nil:
			e.settleAction(plan, action, models.ActionSkippedDependency, nil, blocked)
		case !ready:
			e.settleAction(plan, action, models.ActionSkippedDependency, nil, errDependenciesIncomplete)
		default:
			if bound, ok := e.startAction(plan, action); ok {
				e.mu.Unlock()
				result, err := e.invoke(ctx, bound)
				e.mu.Lock()
				e.completeAction(ctx, plan, action, result, err, run)
			}
		}
		plan.Cursor++

		if criticalLoss(action) {
			e.abortPlan(plan, models.PlanFailedAction, lossReason(action))
			return
		}
	}

	if ctx.Err() != nil && !plan.Status.IsTerminal() {
		e.abortPlan(plan, models.PlanCancelled, run.reason(ctx))
		return
	}
	if !plan.Status.IsTerminal() {
		e.finishPlan(plan)
	}
}
