package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/models"
)

// JobLogStorage implements interfaces.JobLogStorage backed by SQLite
type JobLogStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobLogStorage creates a new SQLite job log storage
func NewJobLogStorage(db *SQLiteDB, logger arbor.ILogger) *JobLogStorage {
	return &JobLogStorage{
		db:     db,
		logger: logger,
	}
}

// AppendLogs writes a batch of log entries for a job inside one transaction.
// Entries without a line number are numbered after the job's current maximum.
func (s *JobLogStorage) AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) error {
	if jobID == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxLine int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(line_number), 0) FROM job_logs WHERE job_id = ?", jobID).Scan(&maxLine)
	if err != nil {
		return fmt.Errorf("failed to get max line number: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO job_logs (job_id, timestamp, full_timestamp, level, message, line_number, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		lineNumber := entry.LineNumber
		if lineNumber <= 0 {
			maxLine++
			lineNumber = maxLine
		} else if lineNumber > maxLine {
			maxLine = lineNumber
		}

		contextJSON := "{}"
		if len(entry.Context) > 0 {
			data, err := json.Marshal(entry.Context)
			if err != nil {
				return fmt.Errorf("failed to marshal log context: %w", err)
			}
			contextJSON = string(data)
		}

		createdAt := time.Now().UnixNano()
		if ts, err := time.Parse(time.RFC3339Nano, entry.FullTimestamp); err == nil {
			createdAt = ts.UnixNano()
		}

		_, err = stmt.ExecContext(ctx,
			jobID,
			entry.Timestamp,
			entry.FullTimestamp,
			entry.Level,
			entry.Message,
			lineNumber,
			contextJSON,
			createdAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert log entry: %w", err)
		}
	}

	return tx.Commit()
}

// GetLogs returns a job's log entries, newest first. A limit of 0 or less
// returns all entries.
func (s *JobLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	query := `
		SELECT job_id, timestamp, full_timestamp, level, message, line_number, context
		FROM job_logs
		WHERE job_id = ?
		ORDER BY line_number DESC`
	args := []interface{}{jobID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	entries := []models.JobLogEntry{}
	for rows.Next() {
		var entry models.JobLogEntry
		var contextJSON string
		err := rows.Scan(
			&entry.JobIDField,
			&entry.Timestamp,
			&entry.FullTimestamp,
			&entry.Level,
			&entry.Message,
			&entry.LineNumber,
			&contextJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		if contextJSON != "" && contextJSON != "{}" {
			if err := json.Unmarshal([]byte(contextJSON), &entry.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log context: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log rows: %w", err)
	}

	return entries, nil
}

// DeleteLogs removes all log entries for a job
func (s *JobLogStorage) DeleteLogs(ctx context.Context, jobID string) error {
	_, err := s.db.DB().ExecContext(ctx, "DELETE FROM job_logs WHERE job_id = ?", jobID)
	if err != nil {
		return fmt.Errorf("failed to delete logs: %w", err)
	}
	return nil
}

// CountLogs returns the number of log entries stored for a job
func (s *JobLogStorage) CountLogs(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.db.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM job_logs WHERE job_id = ?", jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return count, nil
}
