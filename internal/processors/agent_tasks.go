package processors

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// AgentTasksProcessor runs coding tasks through the agent runner in
// parallel. Each task yields a record with the conversation transcript
// and validation flags; a runner error becomes a failed record.
type AgentTasksProcessor struct {
	runner interfaces.AgentRunner
	logger arbor.ILogger
}

// NewAgentTasksProcessor creates the batch_agent_tasks processor
func NewAgentTasksProcessor(runner interfaces.AgentRunner, logger arbor.ILogger) *AgentTasksProcessor {
	return &AgentTasksProcessor{
		runner: runner,
		logger: logger,
	}
}

// Process executes a batch_agent_tasks job
func (p *AgentTasksProcessor) Process(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
	payload, err := models.DecodeAgentTasksPayload(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if len(payload.Tasks) == 0 {
		return map[string]interface{}{"error": "No tasks provided"}, nil
	}

	tracker := models.NewProgressTracker(len(payload.Tasks))

	p.logger.Info().
		Str("job_id", job.ID).
		Int("tasks", len(payload.Tasks)).
		Int("chunk_size", payload.EffectiveChunkSize()).
		Int("parallel", payload.EffectiveParallel()).
		Msg("Processing agent task batch")

	plan := chunkPlan{
		total:     len(payload.Tasks),
		chunkSize: payload.EffectiveChunkSize(),
		parallel:  payload.EffectiveParallel(),
	}

	results := runChunked(ctx, job, updater, plan, tracker, func(ctx context.Context, i int) map[string]interface{} {
		return p.runTask(ctx, payload.Tasks[i], payload.Config, tracker)
	}, p.logger)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := tracker.Snapshot()
	return batchResult(map[string]interface{}{
		"total":      snapshot.Total,
		"successful": snapshot.Successful,
		"failed":     snapshot.Failed,
		"skipped":    snapshot.Skipped,
	}, results, tracker), nil
}

// runTask executes one agent task and renders its record
func (p *AgentTasksProcessor) runTask(ctx context.Context, task models.AgentTask, config map[string]interface{}, tracker *models.ProgressTracker) map[string]interface{} {
	taskID := task.ID
	if taskID == "" {
		taskID = "unknown"
	}

	result, err := p.runner.RunTask(ctx, task, config)
	if err != nil {
		tracker.Increment(models.ItemFailure, taskID)
		p.logger.Warn().
			Err(err).
			Str("task_id", taskID).
			Msg("Agent task failed")
		return map[string]interface{}{
			"task_id": taskID,
			"status":  "failed",
			"error":   err.Error(),
		}
	}

	tracker.Increment(models.ItemSuccess, taskID)
	return map[string]interface{}{
		"task_id":      taskID,
		"status":       "completed",
		"messages":     result.Messages,
		"validator_ok": result.ValidatorOK,
		"blocked":      result.Blocked,
	}
}
