package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/opero/internal/common"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// worker is the claim loop. A busy queue is drained back to back; an empty
// queue is polled at the poll interval; claim errors back off a little longer.
func (s *Service) worker(workerID int) {
	defer s.wg.Done()

	// Stagger starts so the workers do not hit the store in lockstep
	stagger := (s.pollInterval / time.Duration(s.maxWorkers)) * time.Duration(workerID)
	if stagger > 0 && !s.sleep(stagger) {
		return
	}

	s.logger.Debug().Int("worker_id", workerID).Msg("Worker started")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return
		default:
		}

		job, err := s.store.ClaimNextQueued(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Int("worker_id", workerID).Msg("Failed to claim job")
			if !s.sleep(s.errorBackoff) {
				return
			}
			continue
		}
		if job == nil {
			if !s.sleep(s.pollInterval) {
				return
			}
			continue
		}

		s.executeJob(workerID, job)
	}
}

// sleep waits for the duration unless the queue is stopping
func (s *Service) sleep(d time.Duration) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// executeJob runs the processor for a claimed job and writes the outcome.
//
// The job context is deliberately parented on Background rather than the
// queue context: stopping the queue lets in-flight jobs finish, only
// CancelJob interrupts them.
func (s *Service) executeJob(workerID int, job *models.Job) {
	jobCtx, jobCancel := context.WithCancel(context.Background())
	s.cancels.Store(job.ID, jobCancel)
	defer func() {
		s.cancels.Delete(job.ID)
		jobCancel()
	}()

	jobLogger := s.logger.WithCorrelationId(job.ID)

	s.publishEvent(jobCtx, interfaces.EventJobStatus, jobEventPayload(job))

	s.mu.RLock()
	processor, exists := s.processors[job.Type]
	s.mu.RUnlock()

	if !exists {
		msg := fmt.Sprintf("No processor registered for job type: %s", job.Type)
		jobLogger.Error().Str("job_type", job.Type).Msg(msg)
		job.MarkFailed(msg)
		s.finishJob(job)
		return
	}

	jobLogger.Info().
		Str("job_type", job.Type).
		Int("worker_id", workerID).
		Msg("Job started")

	start := time.Now()
	result, err := s.runProcessor(jobCtx, processor, job)
	duration := time.Since(start)

	if err != nil {
		job.MarkFailed(err.Error())
		if s.finishJob(job) {
			jobLogger.Warn().
				Err(err).
				Str("job_type", job.Type).
				Dur("duration", duration).
				Msg("Job failed")
		} else {
			jobLogger.Info().
				Str("job_type", job.Type).
				Msg("Job outcome discarded (job no longer running)")
		}
		return
	}

	job.MarkCompleted(result)
	if s.finishJob(job) {
		jobLogger.Info().
			Str("job_type", job.Type).
			Dur("duration", duration).
			Msg("Job completed")
	} else {
		jobLogger.Info().
			Str("job_type", job.Type).
			Msg("Job outcome discarded (job no longer running)")
	}
}

// runProcessor invokes the processor, converting a panic into a job
// failure so one job's crash cannot take down the worker pool.
func (s *Service) runProcessor(ctx context.Context, processor interfaces.ProcessorFunc, job *models.Job) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Msg("Processor panicked")
			result = nil
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	return processor(ctx, job, s)
}

// finishJob writes a terminal state, reporting whether the write landed.
// The guard loses exactly when a cancellation won; the cancelled record
// stays untouched.
func (s *Service) finishJob(job *models.Job) bool {
	ctx := context.Background()

	ok, err := s.store.UpdateJobIf(ctx, job, models.JobStatusRunning)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist job outcome")
		return false
	}
	if ok {
		s.publishEvent(ctx, interfaces.EventJobStatus, jobEventPayload(job))
	}
	return ok
}
