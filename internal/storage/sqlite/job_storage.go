package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// jobColumns is the column list shared by every job query so scans stay aligned
const jobColumns = "id, type, status, payload, progress, result, error, metadata, created_at, started_at, completed_at"

// JobStorage implements interfaces.JobStorage backed by SQLite
type JobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewJobStorage creates a new SQLite job storage
func NewJobStorage(db *SQLiteDB, logger arbor.ILogger) *JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// AddJob inserts a new job record
func (s *JobStorage) AddJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	result, err := marshalNullableMap(job.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO jobs (id, type, status, payload, progress, result, error, metadata, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Type,
		string(job.Status),
		string(payload),
		job.Progress,
		result,
		nullableString(job.Error),
		string(metadata),
		job.CreatedAt.UnixNano(),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.DB().QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, interfaces.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// UpdateJob persists the full state of an existing job
func (s *JobStorage) UpdateJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job cannot be nil")
	}

	res, err := s.execUpdate(ctx, job, "")
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return interfaces.ErrJobNotFound
	}
	return nil
}

// UpdateJobIf persists the job only when its stored status still matches
// the expected status. Returns false without error when the guard fails.
func (s *JobStorage) UpdateJobIf(ctx context.Context, job *models.Job, expected models.JobStatus) (bool, error) {
	if job == nil {
		return false, fmt.Errorf("job cannot be nil")
	}

	res, err := s.execUpdate(ctx, job, expected)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// execUpdate runs the job UPDATE, optionally guarded on the current status
func (s *JobStorage) execUpdate(ctx context.Context, job *models.Job, expected models.JobStatus) (sql.Result, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	result, err := marshalNullableMap(job.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		UPDATE jobs
		SET type = ?, status = ?, payload = ?, progress = ?, result = ?, error = ?, metadata = ?, started_at = ?, completed_at = ?
		WHERE id = ?`
	args := []interface{}{
		job.Type,
		string(job.Status),
		string(payload),
		job.Progress,
		result,
		nullableString(job.Error),
		string(metadata),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	}

	if expected != "" {
		query += " AND status = ?"
		args = append(args, string(expected))
	}

	res, err := s.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return res, nil
}

// ClaimNextQueued atomically transitions the oldest queued job to running.
// The single UPDATE statement means concurrent workers can never claim the
// same job. Returns (nil, nil) when the queue is empty.
//
// A row whose stored JSON no longer decodes has already been flipped to
// running by the UPDATE; it is parked as failed so it cannot leak as a
// forever-running job, and the claim moves on to the next queued row.
func (s *JobStorage) ClaimNextQueued(ctx context.Context) (*models.Job, error) {
	for {
		now := time.Now()

		row := s.db.DB().QueryRowContext(ctx, `
			UPDATE jobs
			SET status = ?, started_at = ?
			WHERE id = (
				SELECT id FROM jobs
				WHERE status = ?
				ORDER BY created_at ASC, id ASC
				LIMIT 1
			)
			RETURNING `+jobColumns,
			string(models.JobStatusRunning),
			now.UnixNano(),
			string(models.JobStatusQueued),
		)

		job, err := scanJob(row)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		var corrupt *corruptRowError
		if errors.As(err, &corrupt) {
			s.logger.Warn().Err(err).Str("job_id", corrupt.jobID).
				Msg("Quarantining undecodable job record during claim")
			if qerr := s.quarantineRow(ctx, corrupt); qerr != nil {
				return nil, qerr
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		return job, nil
	}
}

// quarantineRow parks a corrupt claimed row as failed. Each loop pass
// removes one row from the queued set, so the claim scan always makes
// progress past stored corruption.
func (s *JobStorage) quarantineRow(ctx context.Context, corrupt *corruptRowError) error {
	_, err := s.db.DB().ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, error = ?, completed_at = ?
		WHERE id = ?`,
		string(models.JobStatusFailed),
		corrupt.Error(),
		time.Now().UnixNano(),
		corrupt.jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to quarantine corrupt job %s: %w", corrupt.jobID, err)
	}
	return nil
}

// ListJobs returns jobs matching the options, newest first
func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Job, error) {
	if opts == nil {
		opts = &interfaces.ListOptions{}
	}

	query := "SELECT " + jobColumns + " FROM jobs WHERE 1=1"
	args := []interface{}{}

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.Type != "" {
		query += " AND type = ?"
		args = append(args, opts.Type)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	} else if opts.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// GetStats returns job counts per status plus a total. Every status is
// present in the map even when its count is zero.
func (s *JobStorage) GetStats(ctx context.Context) (map[string]int, error) {
	stats := make(map[string]int, len(models.AllJobStatuses)+1)
	for _, status := range models.AllJobStatuses {
		stats[string(status)] = 0
	}

	rows, err := s.db.DB().QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	defer rows.Close()

	total := 0
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[status] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats rows: %w", err)
	}

	stats["total"] = total
	return stats, nil
}

// DeleteJobsBefore removes jobs in the given terminal statuses whose
// completion time is older than the cutoff. Returns the number deleted.
func (s *JobStorage) DeleteJobsBefore(ctx context.Context, cutoff time.Time, statuses []models.JobStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, 0, len(statuses)+1)
	for i, status := range statuses {
		placeholders[i] = "?"
		args = append(args, string(status))
	}
	args = append(args, cutoff.UnixNano())

	query := fmt.Sprintf(
		"DELETE FROM jobs WHERE status IN (%s) AND completed_at IS NOT NULL AND completed_at < ?",
		strings.Join(placeholders, ", "))

	res, err := s.db.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// Close is a no-op; the shared connection is closed by the manager
func (s *JobStorage) Close() error {
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// corruptRowError reports a row whose stored JSON can no longer be
// decoded. Scans skip such rows; the claim quarantines them.
type corruptRowError struct {
	jobID string
	cause error
}

func (e *corruptRowError) Error() string {
	return fmt.Sprintf("corrupt job record %s: %v", e.jobID, e.cause)
}

func (e *corruptRowError) Unwrap() error {
	return e.cause
}

// scanJob reads one job row into a model
func scanJob(row rowScanner) (*models.Job, error) {
	var (
		job         models.Job
		status      string
		payload     string
		result      sql.NullString
		errMsg      sql.NullString
		metadata    string
		createdAt   int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
	)

	err := row.Scan(
		&job.ID,
		&job.Type,
		&status,
		&payload,
		&job.Progress,
		&result,
		&errMsg,
		&metadata,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.CreatedAt = time.Unix(0, createdAt)

	if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
		return nil, &corruptRowError{jobID: job.ID, cause: fmt.Errorf("failed to unmarshal payload: %w", err)}
	}
	if err := json.Unmarshal([]byte(metadata), &job.Metadata); err != nil {
		return nil, &corruptRowError{jobID: job.ID, cause: fmt.Errorf("failed to unmarshal metadata: %w", err)}
	}
	if job.Payload == nil {
		job.Payload = make(map[string]interface{})
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]interface{})
	}

	if result.Valid && result.String != "" {
		if err := json.Unmarshal([]byte(result.String), &job.Result); err != nil {
			return nil, &corruptRowError{jobID: job.ID, cause: fmt.Errorf("failed to unmarshal result: %w", err)}
		}
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		t := time.Unix(0, startedAt.Int64)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		job.CompletedAt = &t
	}

	return &job, nil
}

// scanJobs reads all rows into models. Rows whose stored JSON no longer
// decodes are logged and skipped rather than hiding every other job.
func (s *JobStorage) scanJobs(rows *sql.Rows) ([]*models.Job, error) {
	jobs := []*models.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		var corrupt *corruptRowError
		if errors.As(err, &corrupt) {
			s.logger.Warn().Err(err).Str("job_id", corrupt.jobID).Msg("Skipping undecodable job record")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}
	return jobs, nil
}

// marshalNullableMap converts a map to a JSON string, or NULL when nil
func marshalNullableMap(m map[string]interface{}) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// nullableString converts an empty string to NULL
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableTime converts a nil time pointer to NULL, otherwise UnixNano
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
