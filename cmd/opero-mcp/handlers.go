package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// textResult wraps a string in a single-content tool result
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return textResult(fmt.Sprintf("Error: "+format, args...)), nil
}

// decodeSubmission decodes and validates a payload string for a job type,
// returning the stored payload map and submission metadata
func decodeSubmission(jobType, payload string) (map[string]interface{}, map[string]interface{}, error) {
	var req interface {
		ToPayload() (map[string]interface{}, error)
		Metadata() map[string]interface{}
	}

	switch jobType {
	case models.JobTypeAgentTasks:
		req = &models.BatchAgentTasksRequest{}
	case models.JobTypeValidation:
		req = &models.BatchValidationRequest{}
	case models.JobTypeTests:
		req = &models.BatchTestsRequest{}
	case models.JobTypeMCP:
		req = &models.BatchMCPRequest{}
	default:
		return nil, nil, fmt.Errorf("unknown job type: %s", jobType)
	}

	if err := json.Unmarshal([]byte(payload), req); err != nil {
		return nil, nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	if err := models.ValidateRequest(req); err != nil {
		return nil, nil, err
	}

	stored, err := req.ToPayload()
	if err != nil {
		return nil, nil, err
	}
	return stored, req.Metadata(), nil
}

// handleSubmitBatch implements the submit_batch tool
func handleSubmitBatch(queue interfaces.JobQueue, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobType, err := request.RequireString("job_type")
		if err != nil || jobType == "" {
			return errorResult("job_type parameter is required")
		}

		payload, err := request.RequireString("payload")
		if err != nil || payload == "" {
			return errorResult("payload parameter is required")
		}

		stored, metadata, err := decodeSubmission(jobType, payload)
		if err != nil {
			return errorResult("%v", err)
		}

		job, err := queue.AddJob(ctx, jobType, stored, metadata)
		if err != nil {
			logger.Error().Err(err).Str("job_type", jobType).Msg("Failed to enqueue job")
			return errorResult("failed to enqueue job: %v", err)
		}

		return textResult(formatJob(job)), nil
	}
}

// handleGetJob implements the get_job tool
func handleGetJob(queue interfaces.JobQueue, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult("job_id parameter is required")
		}

		job, err := queue.GetJob(ctx, jobID)
		if errors.Is(err, interfaces.ErrJobNotFound) {
			return errorResult("job not found: %s", jobID)
		}
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
			return errorResult("failed to load job: %v", err)
		}

		return textResult(formatJob(job)), nil
	}
}

// handleListJobs implements the list_jobs tool
func handleListJobs(queue interfaces.JobQueue, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}

		opts := &interfaces.ListOptions{
			Type:  request.GetString("job_type", ""),
			Limit: limit,
		}

		if status := request.GetString("status", ""); status != "" {
			parsed := models.JobStatus(status)
			if !parsed.IsValid() {
				return errorResult("invalid status filter: %s", status)
			}
			opts.Status = parsed
		}

		jobs, err := queue.ListJobs(ctx, opts)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to list jobs")
			return errorResult("failed to list jobs: %v", err)
		}

		return textResult(formatJobList(jobs)), nil
	}
}

// handleCancelJob implements the cancel_job tool
func handleCancelJob(queue interfaces.JobQueue, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult("job_id parameter is required")
		}

		cancelled, err := queue.CancelJob(ctx, jobID)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
			return errorResult("failed to cancel job: %v", err)
		}
		if !cancelled {
			return errorResult("job cannot be cancelled (not found or already completed): %s", jobID)
		}

		return textResult(fmt.Sprintf("Job %s cancelled", jobID)), nil
	}
}

// handleQueueStats implements the queue_stats tool
func handleQueueStats(queue interfaces.JobQueue, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := queue.GetStats(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to compute queue stats")
			return errorResult("failed to compute queue stats: %v", err)
		}

		return textResult(formatStats(stats)), nil
	}
}

// handleGetJobLogs implements the get_job_logs tool
func handleGetJobLogs(queue interfaces.JobQueue, logs interfaces.JobLogStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := request.RequireString("job_id")
		if err != nil || jobID == "" {
			return errorResult("job_id parameter is required")
		}

		if _, err := queue.GetJob(ctx, jobID); err != nil {
			if errors.Is(err, interfaces.ErrJobNotFound) {
				return errorResult("job not found: %s", jobID)
			}
			return errorResult("failed to load job: %v", err)
		}

		limit := request.GetInt("limit", 100)
		entries, err := logs.GetLogs(ctx, jobID, limit)
		if err != nil {
			logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job logs")
			return errorResult("failed to load job logs: %v", err)
		}

		return textResult(formatLogs(jobID, entries)), nil
	}
}

// handleLocalTool bridges an MCP tool call to the local tool registry
func handleLocalTool(registry interfaces.ToolRegistry, name string, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tool, err := registry.Get(name)
		if err != nil {
			return errorResult("tool not available: %s", name)
		}

		output, err := tool.Invoke(ctx, request.GetArguments())
		if err != nil {
			logger.Warn().Err(err).Str("tool", name).Msg("Tool invocation failed")
			return errorResult("%s failed: %v", name, err)
		}

		return textResult(output), nil
	}
}
