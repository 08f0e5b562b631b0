package processors

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// MCPProcessor performs bulk tool operations: each operation type maps
// to a named tool in the registry. Unknown types and missing tools are
// per-item failures, never batch failures.
type MCPProcessor struct {
	registry interfaces.ToolRegistry
	logger   arbor.ILogger
}

// NewMCPProcessor creates the batch_mcp processor
func NewMCPProcessor(registry interfaces.ToolRegistry, logger arbor.ILogger) *MCPProcessor {
	return &MCPProcessor{
		registry: registry,
		logger:   logger,
	}
}

// Process executes a batch_mcp job
func (p *MCPProcessor) Process(ctx context.Context, job *models.Job, updater interfaces.JobUpdater) (map[string]interface{}, error) {
	payload, err := models.DecodeMCPPayload(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if len(payload.Operations) == 0 {
		return map[string]interface{}{"error": "No operations provided"}, nil
	}

	tracker := models.NewProgressTracker(len(payload.Operations))

	p.logger.Info().
		Str("job_id", job.ID).
		Int("operations", len(payload.Operations)).
		Int("parallel", payload.EffectiveParallel()).
		Msg("Processing MCP operation batch")

	plan := chunkPlan{
		total:     len(payload.Operations),
		chunkSize: payload.EffectiveChunkSize(),
		parallel:  payload.EffectiveParallel(),
	}

	results := runChunked(ctx, job, updater, plan, tracker, func(ctx context.Context, i int) map[string]interface{} {
		return p.executeOperation(ctx, payload.Operations[i], tracker)
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

// executeOperation dispatches one operation to its tool
func (p *MCPProcessor) executeOperation(ctx context.Context, op models.MCPOperation, tracker *models.ProgressTracker) map[string]interface{} {
	opType := op.Type
	if opType == "" {
		opType = "unknown"
	}

	var toolName string
	var args map[string]interface{}

	switch op.Type {
	case models.MCPOpRead:
		toolName = "read_file"
		args = map[string]interface{}{"path": op.Path}
	case models.MCPOpWrite:
		toolName = "write_file"
		args = map[string]interface{}{"path": op.Path, "content": op.Content}
	case models.MCPOpList:
		toolName = "list_directory"
		args = map[string]interface{}{"path": op.Path}
	case models.MCPOpCommand:
		toolName = "run_command"
		args = map[string]interface{}{"command": op.Command}
	default:
		return p.failOperation(op, opType, fmt.Sprintf("Unknown operation type: %s", opType), tracker)
	}

	tool, err := p.registry.Get(toolName)
	if err != nil {
		return p.failOperation(op, opType, fmt.Sprintf("%s tool not available", toolName), tracker)
	}

	result, err := tool.Invoke(ctx, args)
	if err != nil {
		return p.failOperation(op, opType, err.Error(), tracker)
	}

	tracker.Increment(models.ItemSuccess, opType)
	return map[string]interface{}{
		"operation": opType,
		"status":    "success",
		"result":    result,
	}
}

// failOperation renders a per-item failure carrying the submitted operation
func (p *MCPProcessor) failOperation(op models.MCPOperation, opType, message string, tracker *models.ProgressTracker) map[string]interface{} {
	tracker.Increment(models.ItemFailure, opType)
	return map[string]interface{}{
		"operation":      opType,
		"status":         "failed",
		"error":          message,
		"operation_data": operationData(op),
	}
}

// operationData rebuilds the operation as submitted, omitting unset fields
func operationData(op models.MCPOperation) map[string]interface{} {
	data := map[string]interface{}{"type": op.Type}
	if op.Path != "" {
		data["path"] = op.Path
	}
	if op.Content != "" {
		data["content"] = op.Content
	}
	if op.Command != "" {
		data["command"] = op.Command
	}
	return data
}
