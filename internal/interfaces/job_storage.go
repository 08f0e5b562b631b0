package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/opero/internal/models"
)

// ErrJobNotFound is returned when a job ID does not exist in the store
var ErrJobNotFound = errors.New("job not found")

// ListOptions filters and paginates job listings
type ListOptions struct {
	Status models.JobStatus // Empty means all statuses
	Type   string           // Empty means all job types
	Limit  int              // Page size (defaulted by callers)
	Offset int              // Page offset
}

// JobStorage defines durable persistence for batch jobs.
//
// Implementations must make ClaimNextQueued atomic: under concurrent
// callers each queued job is handed to exactly one of them. UpdateJobIf
// is the terminal-state guard; workers finish jobs through it so a result
// arriving after cancellation is discarded rather than resurrecting the job.
type JobStorage interface {
	// AddJob persists a new job in its initial state
	AddJob(ctx context.Context, job *models.Job) error

	// GetJob retrieves a job by ID, returning ErrJobNotFound when absent
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// UpdateJob unconditionally persists the job's current state
	UpdateJob(ctx context.Context, job *models.Job) error

	// UpdateJobIf persists the job only while its stored status still equals
	// expect. Returns false (and no error) when the precondition failed.
	UpdateJobIf(ctx context.Context, job *models.Job, expect models.JobStatus) (bool, error)

	// ClaimNextQueued atomically claims the oldest queued job, marking it
	// running and stamping StartedAt. Returns (nil, nil) when nothing is queued.
	ClaimNextQueued(ctx context.Context) (*models.Job, error)

	// ListJobs returns jobs ordered by creation time descending
	ListJobs(ctx context.Context, opts *ListOptions) ([]*models.Job, error)

	// GetStats returns per-status job counts plus a "total" entry.
	// Every known status is present, zero-valued when no jobs match.
	GetStats(ctx context.Context) (map[string]int, error)

	// DeleteJobsBefore removes jobs in the given statuses whose CompletedAt
	// precedes cutoff, returning the number removed
	DeleteJobsBefore(ctx context.Context, cutoff time.Time, statuses []models.JobStatus) (int, error)

	// Close releases the underlying database
	Close() error
}

// JobLogStorage persists captured log lines per job
type JobLogStorage interface {
	AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) error
	GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)
	DeleteLogs(ctx context.Context, jobID string) error
	CountLogs(ctx context.Context, jobID string) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	JobStorage() JobStorage
	JobLogStorage() JobLogStorage
	Close() error
}
