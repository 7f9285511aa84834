package learning

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of all database migrations
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with strategy_estimates and strategy_outcomes",
		SQL: `
-- Current estimate per (failure type, strategy) pair
CREATE TABLE IF NOT EXISTS strategy_estimates (
    failure_type TEXT NOT NULL,
    strategy TEXT NOT NULL,
    estimate REAL NOT NULL,
    samples INTEGER NOT NULL DEFAULT 0,
    successes INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (failure_type, strategy)
);

-- Every recorded outcome, append-only
CREATE TABLE IF NOT EXISTS strategy_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    failure_type TEXT NOT NULL,
    strategy TEXT NOT NULL,
    success BOOLEAN NOT NULL,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_strategy_outcomes_pair ON strategy_outcomes(failure_type, strategy);
CREATE INDEX IF NOT EXISTS idx_strategy_outcomes_recorded ON strategy_outcomes(recorded_at DESC);
`,
	},
	{
		Version:     2,
		Description: "Record the estimate each outcome produced",
		// SQLite has no ADD COLUMN IF NOT EXISTS; see applyMigration2Tx.
		SQL: ``,
	},
}

// MigrationVersion represents a record of an applied migration
type MigrationVersion struct {
	Version   int
	AppliedAt time.Time
}

// ApplyMigrations applies all pending migrations to the database.
// Uses a serializable transaction so concurrent initialization is safe.
func (s *Store) ApplyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin exclusive transaction: %w", err)
	}
	defer tx.Rollback() // no-op if committed

	if err := ensureSchemaVersionTableTx(tx); err != nil {
		return fmt.Errorf("ensure schema_version table: %w", err)
	}

	appliedVersions, err := getAppliedVersionsTx(tx)
	if err != nil {
		return fmt.Errorf("get applied versions: %w", err)
	}

	applied := make(map[int]bool)
	for _, v := range appliedVersions {
		applied[v.Version] = true
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		if migration.Version == 2 {
			if err := applyMigration2Tx(ctx, tx); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", migration.Version, migration.Description, err)
			}
		}

		if migration.SQL != "" {
			if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", migration.Version, migration.Description, err)
			}
		}

		if err := recordMigrationTx(ctx, tx, migration.Version); err != nil {
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}

	return nil
}

// GetAppliedVersions retrieves all applied migration versions
func (s *Store) GetAppliedVersions() ([]*MigrationVersion, error) {
	query := `SELECT version, applied_at FROM schema_version ORDER BY version ASC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query schema versions: %w", err)
	}
	defer rows.Close()
	return scanVersions(rows)
}

// IsMigrationApplied checks if a specific migration version has been applied
func (s *Store) IsMigrationApplied(version int) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM schema_version WHERE version = ?`
	err := s.db.QueryRow(query, version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check migration: %w", err)
	}
	return count > 0, nil
}

// GetLatestVersion returns the latest applied migration version
func (s *Store) GetLatestVersion() (int, error) {
	var version int
	query := `SELECT COALESCE(MAX(version), 0) FROM schema_version`
	err := s.db.QueryRow(query).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query latest version: %w", err)
	}
	return version, nil
}

func ensureSchemaVersionTableTx(tx *sql.Tx) error {
	sqlStr := `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
	if _, err := tx.Exec(sqlStr); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	return nil
}

func getAppliedVersionsTx(tx *sql.Tx) ([]*MigrationVersion, error) {
	query := `SELECT version, applied_at FROM schema_version ORDER BY version ASC`
	rows, err := tx.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query schema versions: %w", err)
	}
	defer rows.Close()
	return scanVersions(rows)
}

func scanVersions(rows *sql.Rows) ([]*MigrationVersion, error) {
	var versions []*MigrationVersion
	for rows.Next() {
		v := &MigrationVersion{}
		if err := rows.Scan(&v.Version, &v.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}

func recordMigrationTx(ctx context.Context, tx *sql.Tx, version int) error {
	query := `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`
	if _, err := tx.ExecContext(ctx, query, version); err != nil {
		return fmt.Errorf("insert migration version: %w", err)
	}
	return nil
}

// applyMigration2Tx adds the estimate_after column idempotently.
func applyMigration2Tx(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfNotExistsTx(ctx, tx, "strategy_outcomes", "estimate_after", "REAL"); err != nil {
		return fmt.Errorf("add column estimate_after: %w", err)
	}
	return nil
}

// addColumnIfNotExistsTx adds a column to a table if it doesn't already exist.
func addColumnIfNotExistsTx(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	query := fmt.Sprintf("PRAGMA table_info(%s)", table)
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query table info: %w", err)
	}

	exists := false
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scan table info: %w", err)
		}
		if name == column {
			exists = true
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate table info: %w", err)
	}
	rows.Close()
	if exists {
		return nil
	}

	alterSQL := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := tx.ExecContext(ctx, alterSQL); err != nil {
		if strings.Contains(err.Error(), "duplicate column name") {
			return nil
		}
		return fmt.Errorf("alter table: %w", err)
	}
	return nil
}
