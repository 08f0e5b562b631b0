package interfaces

import (
	"context"

	"github.com/ternarybob/opero/internal/models"
)

// JobUpdater persists mid-flight job mutations (progress, metadata).
// Updates are dropped silently once the job has left the running state.
type JobUpdater interface {
	UpdateJob(ctx context.Context, job *models.Job) error
}

// ProcessorFunc executes one job and returns its result document.
// The context is cancelled when the job is cancelled or the queue stops;
// processors should abandon remaining work when that happens.
type ProcessorFunc func(ctx context.Context, job *models.Job, updater JobUpdater) (map[string]interface{}, error)

// JobQueue manages durable batch jobs and the worker pool that drains them
type JobQueue interface {
	JobUpdater

	// Start launches the worker pool
	Start() error

	// Stop drains the workers and waits for in-flight jobs to settle
	Stop() error

	// RegisterProcessor binds a processor to a job type. Jobs of unknown
	// types are failed by the workers, not rejected at enqueue.
	RegisterProcessor(jobType string, processor ProcessorFunc)

	// AddJob persists a new queued job and returns it
	AddJob(ctx context.Context, jobType string, payload, metadata map[string]interface{}) (*models.Job, error)

	// GetJob retrieves a job by ID, returning ErrJobNotFound when absent
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// ListJobs returns jobs filtered by the options, newest first
	ListJobs(ctx context.Context, opts *ListOptions) ([]*models.Job, error)

	// CancelJob cancels a queued or running job. Returns false when the
	// job is absent or already terminal.
	CancelJob(ctx context.Context, jobID string) (bool, error)

	// GetStats returns per-status job counts plus a "total" entry
	GetStats(ctx context.Context) (map[string]int, error)
}
