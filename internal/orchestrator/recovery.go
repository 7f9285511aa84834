package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/harrison/pursuit/internal/models"
	"github.com/harrison/pursuit/internal/planning"
	"github.com/harrison/pursuit/internal/recovery"
)

// Goal metadata written while recovering.
const (
	MetaLastFailure    = "last_failure"
	MetaLastStrategy   = "last_strategy"
	MetaRecoveries     = "recovery_attempts"
	MetaEscalated      = "escalated"
	MetaManualFallback = "manual_fallback"
)

// handleFailure records the failed attempt, asks the analyzer for a strategy
// and applies it. done is true once the goal has been settled.
func (o *Orchestrator) handleFailure(ctx context.Context, st *attempt, f *failure) (done bool, err error) {
	o.settleOutcome(ctx, st, false)

	if o.analyzer == nil {
		return true, o.finish(st, f.status, f.reason)
	}

	failureType := models.FailurePlanningError
	if f.status != models.GoalFailedPlanning {
		failureType = o.analyzer.Classify(f.err)
	}

	var exclude []models.RecoveryStrategy
	if f.action == nil || o.nextAlternative(f.action, st.alternatives[f.action.ID]) < 0 {
		exclude = append(exclude, models.StrategyUseAlternativeTool)
	}
	strategy := o.analyzer.SelectStrategy(failureType, recovery.FailureContext{
		Attempt:     st.recoveries,
		MaxAttempts: o.maxAttempts,
		Exclude:     exclude,
	})

	current, _ := o.store.Get(st.goal.ID)
	if o.logger != nil {
		o.logger.LogRecovery(current, failureType, strategy, st.recoveries+1)
	}
	o.annotate(st, MetaLastFailure, string(failureType))
	o.annotate(st, MetaLastStrategy, string(strategy))

	if strategy.IsTerminal() {
		switch strategy {
		case models.StrategyEscalate:
			o.annotate(st, MetaEscalated, true)
		case models.StrategyManualFallback:
			o.annotate(st, MetaManualFallback, true)
		}
		reason := fmt.Sprintf("%s (failure %s, %s after %d recovery %s)",
			f.reason, failureType, strategy, st.recoveries, pluralize(st.recoveries, "attempt"))
		return true, o.finish(st, f.status, reason)
	}

	st.recoveries++
	o.mu.Lock()
	o.recoveries++
	o.mu.Unlock()
	o.annotate(st, MetaRecoveries, st.recoveries)
	st.pending = &pendingOutcome{failure: failureType, strategy: strategy}
	st.planCtx["attempt"] = st.recoveries
	st.planCtx["failure_type"] = string(failureType)

	switch strategy {
	case models.StrategyRetryWithDelay:
		delay := o.retryDelay * time.Duration(st.recoveries)
		if err := o.sleep(ctx, delay); err != nil {
			st.pending = nil
			o.finish(st, models.GoalCancelled, fmt.Sprintf("run interrupted during retry back-off: %v", err))
			return true, err
		}
	case models.StrategyUseAlternativeTool:
		st.alternatives[f.action.ID] = o.nextAlternative(f.action, st.alternatives[f.action.ID]) + 1
	case models.StrategySimplifyApproach:
		st.planCtx[planning.ContextSimplify] = true
	}
	return false, nil
}

// settleOutcome records the result of the pending strategy, if any.
func (o *Orchestrator) settleOutcome(ctx context.Context, st *attempt, succeeded bool) {
	if st.pending == nil || o.analyzer == nil {
		return
	}
	pending := st.pending
	st.pending = nil
	if err := o.analyzer.RecordOutcome(context.WithoutCancel(ctx), pending.failure, pending.strategy, succeeded); err != nil {
		o.warn(fmt.Sprintf("failed to record recovery outcome: %v", err))
	}
}

// nextAlternative returns the index of the first alternative at or after
// used whose type has a handler, or -1.
func (o *Orchestrator) nextAlternative(action *models.Action, used int) int {
	registry := o.executor.Registry()
	for i := used; i < len(action.Alternatives); i++ {
		alt := action.Alternatives[i]
		if alt != action.Type && registry.Supports(alt) {
			return i
		}
	}
	return -1
}

// applyAlternatives swaps the type of every action that has been moved to an
// alternative tool. used holds the 1-based index of the chosen alternative.
func (o *Orchestrator) applyAlternatives(specs []models.ActionSpec, used map[string]int) []models.ActionSpec {
	if len(used) == 0 {
		return specs
	}
	for i := range specs {
		n := used[specs[i].ID]
		if n > 0 && n <= len(specs[i].Alternatives) {
			specs[i].Type = specs[i].Alternatives[n-1]
		}
	}
	return specs
}

func (o *Orchestrator) annotate(st *attempt, key string, value any) {
	if err := o.store.Annotate(st.goal.ID, key, value); err != nil {
		o.warn(fmt.Sprintf("annotate goal %s: %v", st.goal.ID, err))
	}
}

func pluralize(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
