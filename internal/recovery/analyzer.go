// Package recovery classifies action failures and recommends a recovery
// strategy from success rates learned per (failure type, strategy) pair.
//
// Estimates start at a neutral prior and move by exponential moving average:
//
//	estimate += alpha * (outcome - estimate)
//
// where outcome is 1 for success and 0 for failure. The analyzer only
// recommends; applying a strategy is the caller's job.
package recovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harrison/pursuit/internal/models"
)

const (
	// DefaultLearningRate is the EMA weight given to each new outcome.
	DefaultLearningRate = 0.2
	// DefaultPrior is the estimate of a pair that has never been observed.
	DefaultPrior = 0.5
	// DefaultMaxAttempts is how many recovery attempts a goal gets before
	// GracefulAbort is forced.
	DefaultMaxAttempts = 3
)

// EstimateStore persists estimates across runs.
type EstimateStore interface {
	LoadEstimates(ctx context.Context) ([]models.StrategyEstimate, error)
	SaveOutcome(ctx context.Context, estimate models.StrategyEstimate, succeeded bool) error
}

// FailureContext carries what the caller knows about the failing goal.
type FailureContext struct {
	Attempt     int                       // recovery attempts already made for this goal
	MaxAttempts int                       // 0 uses the analyzer default
	Exclude     []models.RecoveryStrategy // strategies that cannot apply here
}

type pairKey struct {
	failure  models.FailureType
	strategy models.RecoveryStrategy
}

// Analyzer holds the learned estimates. It is safe for concurrent use.
type Analyzer struct {
	mu          sync.RWMutex
	estimates   map[pairKey]*models.StrategyEstimate
	alpha       float64
	prior       float64
	maxAttempts int
	classifier  *Classifier
	store       EstimateStore
	now         func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLearningRate sets alpha. Values outside (0, 1] are ignored.
func WithLearningRate(alpha float64) Option {
	return func(a *Analyzer) {
		if alpha > 0 && alpha <= 1 {
			a.alpha = alpha
		}
	}
}

// WithPrior sets the estimate of unseen pairs. Values outside [0, 1] are ignored.
func WithPrior(prior float64) Option {
	return func(a *Analyzer) {
		if prior >= 0 && prior <= 1 {
			a.prior = prior
		}
	}
}

// WithMaxAttempts sets the default attempt bound.
func WithMaxAttempts(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithStore writes every recorded outcome through to store.
func WithStore(store EstimateStore) Option {
	return func(a *Analyzer) {
		a.store = store
	}
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *Classifier) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.classifier = c
		}
	}
}

// NewAnalyzer creates an analyzer with no observations.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		estimates:   make(map[pairKey]*models.StrategyEstimate),
		alpha:       DefaultLearningRate,
		prior:       DefaultPrior,
		maxAttempts: DefaultMaxAttempts,
		classifier:  NewClassifier(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Load replaces the in-memory estimates with those held by the store.
func (a *Analyzer) Load(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	loaded, err := a.store.LoadEstimates(ctx)
	if err != nil {
		return fmt.Errorf("load estimates: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.estimates = make(map[pairKey]*models.StrategyEstimate, len(loaded))
	for i := range loaded {
		est := loaded[i]
		if !est.FailureType.Valid() || !est.Strategy.Valid() {
			continue
		}
		a.estimates[pairKey{est.FailureType, est.Strategy}] = &est
	}
	return nil
}

// Classify maps err onto the failure taxonomy.
func (a *Analyzer) Classify(err error) models.FailureType {
	return a.classifier.Classify(err)
}

// MaxAttempts returns the default attempt bound.
func (a *Analyzer) MaxAttempts() int {
	return a.maxAttempts
}

// SelectStrategy returns the strategy with the highest estimate for
// failureType. Unseen pairs score the prior; ties go to the cheaper strategy.
// Once the attempt bound is reached GracefulAbort is returned regardless.
func (a *Analyzer) SelectStrategy(failureType models.FailureType, fctx FailureContext) models.RecoveryStrategy {
	maxAttempts := fctx.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = a.maxAttempts
	}
	if fctx.Attempt >= maxAttempts {
		return models.StrategyGracefulAbort
	}

	excluded := make(map[models.RecoveryStrategy]bool, len(fctx.Exclude))
	for _, s := range fctx.Exclude {
		excluded[s] = true
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	best := models.StrategyGracefulAbort
	bestScore := -1.0
	// RecoveryStrategies is in tie-break order, so only a strictly higher
	// score displaces an earlier candidate.
	for _, s := range models.RecoveryStrategies {
		if excluded[s] {
			continue
		}
		if score := a.valueLocked(failureType, s); score > bestScore {
			best = s
			bestScore = score
		}
	}
	return best
}

// RecordOutcome folds one observed outcome into the estimate for the pair.
// The in-memory estimate is always updated; a store error is returned after.
func (a *Analyzer) RecordOutcome(ctx context.Context, failureType models.FailureType, strategy models.RecoveryStrategy, succeeded bool) error {
	if !failureType.Valid() {
		return fmt.Errorf("unknown failure type %q", failureType)
	}
	if !strategy.Valid() {
		return fmt.Errorf("unknown recovery strategy %q", strategy)
	}

	a.mu.Lock()
	key := pairKey{failureType, strategy}
	est, ok := a.estimates[key]
	if !ok {
		est = &models.StrategyEstimate{FailureType: failureType, Strategy: strategy, Value: a.prior}
		a.estimates[key] = est
	}
	outcome := 0.0
	if succeeded {
		outcome = 1.0
		est.Successes++
	}
	est.Value += a.alpha * (outcome - est.Value)
	est.Samples++
	est.UpdatedAt = a.now()
	snapshot := *est
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.SaveOutcome(ctx, snapshot, succeeded); err != nil {
			return fmt.Errorf("persist outcome: %w", err)
		}
	}
	return nil
}

// Estimate returns the current estimate for the pair, or the prior.
func (a *Analyzer) Estimate(failureType models.FailureType, strategy models.RecoveryStrategy) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.valueLocked(failureType, strategy)
}

// Estimates returns every observed pair ordered by failure type, then by
// descending estimate.
func (a *Analyzer) Estimates() []models.StrategyEstimate {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]models.StrategyEstimate, 0, len(a.estimates))
	for _, est := range a.estimates {
		out = append(out, *est)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FailureType != out[j].FailureType {
			return out[i].FailureType < out[j].FailureType
		}
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Strategy.Rank() < out[j].Strategy.Rank()
	})
	return out
}

func (a *Analyzer) valueLocked(failureType models.FailureType, strategy models.RecoveryStrategy) float64 {
	if est, ok := a.estimates[pairKey{failureType, strategy}]; ok {
		return est.Value
	}
	return a.prior
}
