package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createSubmitBatchTool returns the submit_batch tool definition
func createSubmitBatchTool() mcp.Tool {
	return mcp.NewTool("submit_batch",
		mcp.WithDescription("Submit a batch job to the queue and return the queued job"),
		mcp.WithString("job_type",
			mcp.Required(),
			mcp.Description("Job type: batch_agent_tasks, batch_validation, batch_tests, batch_mcp"),
		),
		mcp.WithString("payload",
			mcp.Required(),
			mcp.Description("Job payload as a JSON object string (same shape as the HTTP submission body)"),
		),
	)
}

// createGetJobTool returns the get_job tool definition
func createGetJobTool() mcp.Tool {
	return mcp.NewTool("get_job",
		mcp.WithDescription("Retrieve a job by ID with status, progress and result"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID returned by submit_batch"),
		),
	)
}

// createListJobsTool returns the list_jobs tool definition
func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List jobs newest first, optionally filtered by status and type"),
		mcp.WithString("status",
			mcp.Description("Filter: queued, running, completed, failed, cancelled"),
		),
		mcp.WithString("job_type",
			mcp.Description("Filter by job type"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20, max: 100)"),
		),
	)
}

// createCancelJobTool returns the cancel_job tool definition
func createCancelJobTool() mcp.Tool {
	return mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a queued or running job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID to cancel"),
		),
	)
}

// createQueueStatsTool returns the queue_stats tool definition
func createQueueStatsTool() mcp.Tool {
	return mcp.NewTool("queue_stats",
		mcp.WithDescription("Return per-status job counts for the queue"),
	)
}

// createGetJobLogsTool returns the get_job_logs tool definition
func createGetJobLogsTool() mcp.Tool {
	return mcp.NewTool("get_job_logs",
		mcp.WithDescription("Return the captured log lines for a job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("Job ID whose logs to fetch"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max log lines (default: 100)"),
		),
	)
}

// createReadFileTool returns the read_file tool definition
func createReadFileTool() mcp.Tool {
	return mcp.NewTool("read_file",
		mcp.WithDescription("Read a file under the configured tool root"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the tool root"),
		),
	)
}

// createWriteFileTool returns the write_file tool definition
func createWriteFileTool() mcp.Tool {
	return mcp.NewTool("write_file",
		mcp.WithDescription("Write a file under the configured tool root"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the tool root"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("File content to write"),
		),
	)
}

// createListDirectoryTool returns the list_directory tool definition
func createListDirectoryTool() mcp.Tool {
	return mcp.NewTool("list_directory",
		mcp.WithDescription("List a directory under the configured tool root"),
		mcp.WithString("path",
			mcp.Description("Directory path relative to the tool root (default: root)"),
		),
	)
}

// createRunCommandTool returns the run_command tool definition
func createRunCommandTool() mcp.Tool {
	return mcp.NewTool("run_command",
		mcp.WithDescription("Run a shell command with the configured timeout"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Shell command to execute"),
		),
	)
}
