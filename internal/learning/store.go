// Package learning persists recovery-strategy outcomes in SQLite so that
// learned estimates survive restarts.
package learning

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/pursuit/internal/models"
)

// Outcome is one recorded application of a recovery strategy.
type Outcome struct {
	ID            int64
	FailureType   models.FailureType
	Strategy      models.RecoveryStrategy
	Success       bool
	EstimateAfter float64
	RecordedAt    time.Time
}

// Store manages the SQLite database of strategy estimates
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	// Handle in-memory database
	if dbPath == ":memory:" {
		return openAndInitStore(dbPath)
	}

	// Ensure parent directory exists for file-based databases
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	return openAndInitStore(dbPath)
}

// openAndInitStore opens the database connection and initializes schema
func openAndInitStore(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		// pooled connections need the timeout too, not only the first one
		dsn = dbPath + "?_busy_timeout=5000&_txlock=immediate"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Set busy_timeout FIRST so subsequent operations wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, sql string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(sql)
		if err == nil {
			return nil
		}

		// Only retry on "database is locked" errors
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}

		lastErr = err
		delay := baseDelay * time.Duration(1<<attempt)
		time.Sleep(delay)
	}
	return lastErr
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadEstimates returns every stored estimate.
func (s *Store) LoadEstimates(ctx context.Context) ([]models.StrategyEstimate, error) {
	query := `SELECT failure_type, strategy, estimate, samples, successes, updated_at
		FROM strategy_estimates
		ORDER BY failure_type, estimate DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query estimates: %w", err)
	}
	defer rows.Close()

	var estimates []models.StrategyEstimate
	for rows.Next() {
		var est models.StrategyEstimate
		var failureType, strategy string
		if err := rows.Scan(&failureType, &strategy, &est.Value, &est.Samples, &est.Successes, &est.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		est.FailureType = models.FailureType(failureType)
		est.Strategy = models.RecoveryStrategy(strategy)
		estimates = append(estimates, est)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate estimates: %w", err)
	}
	return estimates, nil
}

// SaveOutcome appends the outcome and stores the updated estimate in one transaction.
func (s *Store) SaveOutcome(ctx context.Context, est models.StrategyEstimate, succeeded bool) error {
	updatedAt := est.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	insert := `INSERT INTO strategy_outcomes (failure_type, strategy, success, estimate_after, recorded_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, string(est.FailureType), string(est.Strategy), succeeded, est.Value, updatedAt); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	upsert := `INSERT INTO strategy_estimates (failure_type, strategy, estimate, samples, successes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(failure_type, strategy) DO UPDATE SET
			estimate = excluded.estimate,
			samples = excluded.samples,
			successes = excluded.successes,
			updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsert, string(est.FailureType), string(est.Strategy), est.Value, est.Samples, est.Successes, updatedAt); err != nil {
		return fmt.Errorf("upsert estimate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, failure_type, strategy, success, COALESCE(estimate_after, 0), recorded_at
		FROM strategy_outcomes
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var failureType, strategy string
		if err := rows.Scan(&o.ID, &failureType, &strategy, &o.Success, &o.EstimateAfter, &o.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.FailureType = models.FailureType(failureType)
		o.Strategy = models.RecoveryStrategy(strategy)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// Clear deletes every estimate and outcome.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"strategy_outcomes", "strategy_estimates"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}
