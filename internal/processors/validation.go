package processors

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// ValidationProcessor runs a check command against each target in
// parallel. Exit code 0 passes; exit code 5 also passes (pytest's "no
// tests collected", kept as a domain convention).
type ValidationProcessor struct {
	commands interfaces.CommandRunner
	logger   arbor.ILogger
}

// NewValidationProcessor creates the batch_validation processor
func NewValidationProcessor(commands interfaces.CommandRunner, logger arbor.ILogger) *ValidationProcessor {
	return &ValidationProcessor{
		commands: commands,
		logger:   logger,
	}
}

// Process executes a batch_validation job
func (p *ValidationProcessor) Process(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
	payload, err := models.DecodeValidationPayload(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if len(payload.Targets) == 0 {
		return map[string]interface{}{"error": "No targets provided"}, nil
	}

	tracker := models.NewProgressTracker(len(payload.Targets))
	checkCommand := payload.EffectiveCheckCommand()

	p.logger.Info().
		Str("job_id", job.ID).
		Int("targets", len(payload.Targets)).
		Str("check_command", checkCommand).
		Int("parallel", payload.EffectiveParallel()).
		Msg("Processing validation batch")

	plan := chunkPlan{
		total:     len(payload.Targets),
		chunkSize: payload.EffectiveChunkSize(),
		parallel:  payload.EffectiveParallel(),
	}

	results := runChunked(ctx, job, updater, plan, tracker, func(ctx context.Context, i int) map[string]interface{} {
		return p.validateTarget(ctx, payload.Targets[i], checkCommand, tracker)
	}, p.logger)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := tracker.Snapshot()
	return batchResult(map[string]interface{}{
		"total":      snapshot.Total,
		"successful": snapshot.Successful,
		"failed":     snapshot.Failed,
	}, results, tracker), nil
}

// validateTarget runs the check command against one target path
func (p *ValidationProcessor) validateTarget(ctx context.Context, target models.ValidationTarget, checkCommand string, tracker *models.ProgressTracker) map[string]interface{} {
	targetID := target.ID
	if targetID == "" {
		targetID = "unknown"
	}

	result, err := p.commands.Run(ctx, fmt.Sprintf("%s %s", checkCommand, target.Path))
	if err != nil {
		tracker.Increment(models.ItemFailure, targetID)
		return map[string]interface{}{
			"target_id": targetID,
			"path":      target.Path,
			"status":    "error",
			"error":     err.Error(),
		}
	}

	// 5 = no tests collected
	passed := result.ExitCode == 0 || result.ExitCode == 5

	status := "failed"
	outcome := models.ItemFailure
	if passed {
		status = "passed"
		outcome = models.ItemSuccess
	}
	tracker.Increment(outcome, targetID)

	return map[string]interface{}{
		"target_id": targetID,
		"path":      target.Path,
		"status":    status,
		"exit_code": result.ExitCode,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
	}
}
