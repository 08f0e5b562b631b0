package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migration represents a single schema migration
type migration struct {
	version int
	name    string
	up      func(ctx context.Context, tx *sql.Tx) error
}

// migrations is the ordered list of schema migrations
var migrations = []migration{
	{
		version: 1,
		name:    "create_jobs_table",
		up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS jobs (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					status TEXT NOT NULL,
					payload TEXT NOT NULL DEFAULT '{}',
					progress REAL NOT NULL DEFAULT 0,
					result TEXT,
					error TEXT,
					metadata TEXT NOT NULL DEFAULT '{}',
					created_at INTEGER NOT NULL,
					started_at INTEGER,
					completed_at INTEGER
				);
				CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at ASC);
				CREATE INDEX IF NOT EXISTS idx_jobs_type ON jobs(type);
				CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at DESC);
			`)
			return err
		},
	},
	{
		version: 2,
		name:    "create_job_logs_table",
		up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				CREATE TABLE IF NOT EXISTS job_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					job_id TEXT NOT NULL,
					timestamp TEXT NOT NULL,
					full_timestamp TEXT NOT NULL,
					level TEXT NOT NULL,
					message TEXT NOT NULL,
					line_number INTEGER NOT NULL DEFAULT 0,
					context TEXT NOT NULL DEFAULT '{}',
					created_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_job_logs_job_id ON job_logs(job_id, created_at DESC);
			`)
			return err
		},
	},
}

// migrate runs all pending schema migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	// Ensure migrations table exists
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	// Apply pending migrations in order
	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		s.logger.Info().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
	}

	return nil
}

// runMigration applies a single migration inside a transaction
func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
