// -----------------------------------------------------------------------
// Maintenance Scheduler - Periodic purge of old terminal jobs
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// purgeStatuses are the lifecycle states eligible for deletion. Queued and
// running jobs are never purged, whatever their age.
var purgeStatuses = []models.JobStatus{
	models.JobStatusCompleted,
	models.JobStatusFailed,
	models.JobStatusCancelled,
}

// Service runs queue maintenance on a cron schedule: terminal jobs whose
// completion time has fallen outside the retention window are deleted
// together with their captured logs.
type Service struct {
	storage   interfaces.StorageManager
	cron      *cron.Cron
	logger    arbor.ILogger
	retention time.Duration
	mu        sync.Mutex
	running   bool
}

// NewService creates a new maintenance scheduler
func NewService(storage interfaces.StorageManager, retention time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		storage:   storage,
		cron:      cron.New(),
		retention: retention,
		logger:    logger,
	}
}

// Start begins the purge schedule with the given cron expression
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if cronExpr == "" {
		cronExpr = "0 * * * *" // Default: hourly
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runPurge); err != nil {
		return fmt.Errorf("failed to add purge schedule: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", cronExpr).
		Str("retention", s.retention.String()).
		Msg("Maintenance scheduler started")

	return nil
}

// Stop halts the scheduler, waiting for an in-flight purge to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	<-s.cron.Stop().Done()
	s.running = false

	s.logger.Info().Msg("Maintenance scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) runPurge() {
	if _, err := s.Purge(context.Background()); err != nil {
		s.logger.Warn().Err(err).Msg("Scheduled purge failed")
	}
}

// Purge deletes terminal jobs older than the retention window along with
// their logs, returning the number of jobs removed. Callers may invoke it
// directly, outside the schedule.
func (s *Service) Purge(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.retention)

	// Collect the IDs first: DeleteJobsBefore removes only the job records,
	// and the log store needs each ID to drop the matching log lines
	expired, err := s.expiredJobIDs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired jobs: %w", err)
	}

	deleted, err := s.storage.JobStorage().DeleteJobsBefore(ctx, cutoff, purgeStatuses)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}

	for _, jobID := range expired {
		if err := s.storage.JobLogStorage().DeleteLogs(ctx, jobID); err != nil {
			s.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to delete job logs")
		}
	}

	if deleted > 0 {
		s.logger.Info().
			Int("deleted", deleted).
			Str("cutoff", cutoff.Format(time.RFC3339)).
			Msg("Purged old terminal jobs")
	} else {
		s.logger.Debug().Msg("Purge found no expired jobs")
	}

	return deleted, nil
}

// expiredJobIDs lists the terminal jobs whose completion time precedes
// cutoff, mirroring the deletion criterion of DeleteJobsBefore
func (s *Service) expiredJobIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	for _, status := range purgeStatuses {
		jobs, err := s.storage.JobStorage().ListJobs(ctx, &interfaces.ListOptions{Status: status})
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				ids = append(ids, job.ID)
			}
		}
	}
	return ids, nil
}
