package processors

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// TestsProcessor executes a test command against each module in
// parallel. Unlike validation, only exit code 0 passes.
type TestsProcessor struct {
	commands interfaces.CommandRunner
	logger   arbor.ILogger
}

// NewTestsProcessor creates the batch_tests processor
func NewTestsProcessor(commands interfaces.CommandRunner, logger arbor.ILogger) *TestsProcessor {
	return &TestsProcessor{
		commands: commands,
		logger:   logger,
	}
}

// Process executes a batch_tests job
func (p *TestsProcessor) Process(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
	payload, err := models.DecodeTestsPayload(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if len(payload.Modules) == 0 {
		return map[string]interface{}{"error": "No modules provided"}, nil
	}

	tracker := models.NewProgressTracker(len(payload.Modules))
	testCommand := payload.EffectiveTestCommand()

	p.logger.Info().
		Str("job_id", job.ID).
		Int("modules", len(payload.Modules)).
		Str("test_command", testCommand).
		Int("parallel", payload.EffectiveParallel()).
		Msg("Processing test batch")

	plan := chunkPlan{
		total:     len(payload.Modules),
		chunkSize: payload.EffectiveChunkSize(),
		parallel:  payload.EffectiveParallel(),
	}

	results := runChunked(ctx, job, updater, plan, tracker, func(ctx context.Context, i int) map[string]interface{} {
		return p.runModule(ctx, payload.Modules[i], testCommand, tracker)
	}, p.logger)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := tracker.Snapshot()
	return batchResult(map[string]interface{}{
		"total":  snapshot.Total,
		"passed": snapshot.Successful,
		"failed": snapshot.Failed,
	}, results, tracker), nil
}

// runModule executes the test command against one module path
func (p *TestsProcessor) runModule(ctx context.Context, module models.TestModule, testCommand string, tracker *models.ProgressTracker) map[string]interface{} {
	moduleID := module.ID
	if moduleID == "" {
		moduleID = "unknown"
	}

	result, err := p.commands.Run(ctx, fmt.Sprintf("%s %s", testCommand, module.Path))
	if err != nil {
		tracker.Increment(models.ItemFailure, moduleID)
		return map[string]interface{}{
			"module_id": moduleID,
			"path":      module.Path,
			"status":    "error",
			"error":     err.Error(),
		}
	}

	passed := result.ExitCode == 0

	status := "failed"
	outcome := models.ItemFailure
	if passed {
		status = "passed"
		outcome = models.ItemSuccess
	}
	tracker.Increment(outcome, moduleID)

	return map[string]interface{}{
		"module_id": moduleID,
		"path":      module.Path,
		"status":    status,
		"exit_code": result.ExitCode,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
	}
}
