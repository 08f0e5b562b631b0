package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/common"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// Service implements interfaces.JobQueue: a durable job store fronted by a
// bounded pool of claim-loop workers.
//
// Workers claim the oldest queued job, run the registered processor for its
// type, and finish the job through the store's conditional update so a
// cancellation that lands mid-flight always wins over a late result.
type Service struct {
	store        interfaces.JobStorage
	events       interfaces.EventService
	logger       arbor.ILogger
	maxWorkers   int
	pollInterval time.Duration
	errorBackoff time.Duration

	mu         sync.RWMutex
	processors map[string]interfaces.ProcessorFunc
	started    bool

	// cancels maps running job IDs to their context cancel functions
	cancels sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a job queue over the given store
func NewService(store interfaces.JobStorage, events interfaces.EventService, logger arbor.ILogger, config *common.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.Queue.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	return &Service{
		store:        store,
		events:       events,
		logger:       logger,
		maxWorkers:   maxWorkers,
		pollInterval: config.Queue.GetPollInterval(),
		errorBackoff: config.Queue.GetErrorBackoff(),
		processors:   make(map[string]interfaces.ProcessorFunc),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterProcessor binds a processor to a job type
func (s *Service) RegisterProcessor(jobType string, processor interfaces.ProcessorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processors[jobType] = processor
	s.logger.Debug().Str("job_type", jobType).Msg("Processor registered")
}

// Start launches the worker pool. Calling Start on a running queue is a
// no-op; no second pool is spawned.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info().
		Int("workers", s.maxWorkers).
		Dur("poll_interval", s.pollInterval).
		Msg("Starting job queue")

	for i := 0; i < s.maxWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return nil
}

// Stop stops claiming new jobs and waits for in-flight jobs to finish.
// Running jobs are not interrupted; their contexts belong to CancelJob.
func (s *Service) Stop() error {
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Job queue stopped")
	return nil
}

// AddJob persists a new queued job and announces it
func (s *Service) AddJob(ctx context.Context, jobType string, payload, metadata map[string]interface{}) (*models.Job, error) {
	job := models.NewJob(jobType, payload, metadata)
	if err := s.store.AddJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", jobType).
		Msg("Job enqueued")

	s.publishEvent(ctx, interfaces.EventJobCreated, jobEventPayload(job))
	return job, nil
}

// GetJob retrieves a job by ID
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListJobs returns jobs filtered by the options, newest first
func (s *Service) ListJobs(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Job, error) {
	return s.store.ListJobs(ctx, opts)
}

// GetStats returns per-status job counts plus a total
func (s *Service) GetStats(ctx context.Context) (map[string]int, error) {
	return s.store.GetStats(ctx)
}

// UpdateJob persists a processor's mid-flight mutation (progress, metadata).
// The write is guarded on running status: once a job has been cancelled the
// update is dropped silently and the processor keeps going until it observes
// its cancelled context.
func (s *Service) UpdateJob(ctx context.Context, job *models.Job) error {
	ok, err := s.store.UpdateJobIf(ctx, job, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to persist job update: %w", err)
	}
	if !ok {
		return nil
	}

	s.publishEvent(ctx, interfaces.EventJobProgress, jobEventPayload(job))
	return nil
}

// CancelJob cancels a queued or running job. The status write happens first;
// only after the job is durably cancelled is its context cancelled to
// interrupt in-flight work. Returns false when the job is absent or already
// terminal.
func (s *Service) CancelJob(ctx context.Context, jobID string) (bool, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, interfaces.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load job for cancellation: %w", err)
	}
	if job.IsTerminal() {
		return false, nil
	}

	expect := job.Status
	cancelled := job.Clone()
	cancelled.MarkCancelled()

	ok, err := s.store.UpdateJobIf(ctx, cancelled, expect)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	if !ok && expect == models.JobStatusQueued {
		// Lost the race with a claim; the job is running now
		ok, err = s.store.UpdateJobIf(ctx, cancelled, models.JobStatusRunning)
		if err != nil {
			return false, fmt.Errorf("failed to cancel job: %w", err)
		}
	}
	if !ok {
		return false, nil
	}

	if cancelFunc, found := s.cancels.Load(jobID); found {
		cancelFunc.(context.CancelFunc)()
	}

	s.logger.Info().Str("job_id", jobID).Msg("Job cancelled")
	s.publishEvent(ctx, interfaces.EventJobStatus, jobEventPayload(cancelled))
	return true, nil
}

// publishEvent fires an async event when an event service is wired
func (s *Service) publishEvent(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

// jobEventPayload builds the shared event payload for a job
func jobEventPayload(job *models.Job) map[string]interface{} {
	payload := map[string]interface{}{
		"job_id":   job.ID,
		"job_type": job.Type,
		"status":   string(job.Status),
		"progress": job.Progress,
	}
	if job.Error != "" {
		payload["error"] = job.Error
	}
	return payload
}
