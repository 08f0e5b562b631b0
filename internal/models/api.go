// -----------------------------------------------------------------------
// API Models - Request and response shapes for the batch endpoints
// -----------------------------------------------------------------------

package models

import "time"

// BatchAgentTasksRequest submits coding tasks for batch agent processing.
// CoderModel selects the provider-prefixed model the agent loop runs on.
type BatchAgentTasksRequest struct {
	Tasks        []AgentTask `json:"tasks" validate:"required"`
	ChunkSize    int         `json:"chunk_size,omitempty" validate:"gte=0"`
	Parallel     int         `json:"parallel,omitempty" validate:"gte=0"`
	CheckCommand string      `json:"check_command,omitempty"`
	MaxLoops     int         `json:"max_loops,omitempty" validate:"gte=0"`
	CoderModel   string      `json:"coder_model,omitempty"`
}

// ToPayload builds the stored job payload from the request
func (r *BatchAgentTasksRequest) ToPayload() (map[string]interface{}, error) {
	config := map[string]interface{}{
		"check_command": r.CheckCommand,
		"max_loops":     r.MaxLoops,
	}
	if config["check_command"] == "" {
		config["check_command"] = "pytest -q"
	}
	if r.MaxLoops == 0 {
		config["max_loops"] = 16
	}
	if r.CoderModel != "" {
		config["coder_model"] = r.CoderModel
	}

	return ToMap(&AgentTasksPayload{
		Tasks:     r.Tasks,
		ChunkSize: r.ChunkSize,
		Parallel:  r.Parallel,
		Config:    config,
	})
}

// Metadata returns the submission bookkeeping stored on the job
func (r *BatchAgentTasksRequest) Metadata() map[string]interface{} {
	return map[string]interface{}{"total_tasks": len(r.Tasks)}
}

// BatchValidationRequest submits files or projects for batch validation
type BatchValidationRequest struct {
	Targets      []ValidationTarget `json:"targets" validate:"required"`
	CheckCommand string             `json:"check_command,omitempty"`
	ChunkSize    int                `json:"chunk_size,omitempty" validate:"gte=0"`
	Parallel     int                `json:"parallel,omitempty" validate:"gte=0"`
}

// ToPayload builds the stored job payload from the request
func (r *BatchValidationRequest) ToPayload() (map[string]interface{}, error) {
	return ToMap(&ValidationPayload{
		Targets:      r.Targets,
		CheckCommand: r.CheckCommand,
		ChunkSize:    r.ChunkSize,
		Parallel:     r.Parallel,
	})
}

// Metadata returns the submission bookkeeping stored on the job
func (r *BatchValidationRequest) Metadata() map[string]interface{} {
	return map[string]interface{}{"total_targets": len(r.Targets)}
}

// BatchTestsRequest submits test modules for batch execution
type BatchTestsRequest struct {
	Modules     []TestModule `json:"modules" validate:"required"`
	TestCommand string       `json:"test_command,omitempty"`
	ChunkSize   int          `json:"chunk_size,omitempty" validate:"gte=0"`
	Parallel    int          `json:"parallel,omitempty" validate:"gte=0"`
}

// ToPayload builds the stored job payload from the request
func (r *BatchTestsRequest) ToPayload() (map[string]interface{}, error) {
	return ToMap(&TestsPayload{
		Modules:     r.Modules,
		TestCommand: r.TestCommand,
		ChunkSize:   r.ChunkSize,
		Parallel:    r.Parallel,
	})
}

// Metadata returns the submission bookkeeping stored on the job
func (r *BatchTestsRequest) Metadata() map[string]interface{} {
	return map[string]interface{}{"total_modules": len(r.Modules)}
}

// BatchMCPRequest submits tool operations for batch execution
type BatchMCPRequest struct {
	Operations []MCPOperation `json:"operations" validate:"required"`
	ChunkSize  int            `json:"chunk_size,omitempty" validate:"gte=0"`
	Parallel   int            `json:"parallel,omitempty" validate:"gte=0"`
}

// ToPayload builds the stored job payload from the request
func (r *BatchMCPRequest) ToPayload() (map[string]interface{}, error) {
	return ToMap(&MCPPayload{
		Operations: r.Operations,
		ChunkSize:  r.ChunkSize,
		Parallel:   r.Parallel,
	})
}

// Metadata returns the submission bookkeeping stored on the job
func (r *BatchMCPRequest) Metadata() map[string]interface{} {
	return map[string]interface{}{"total_operations": len(r.Operations)}
}

// JobResponse is the wire representation of a job
type JobResponse struct {
	JobID       string                 `json:"job_id"`
	Status      string                 `json:"status"`
	Progress    float64                `json:"progress"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// NewJobResponse converts a stored job into its wire representation
func NewJobResponse(job *Job) JobResponse {
	return JobResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Result:      job.Result,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Metadata:    job.Metadata,
	}
}

// JobListResponse is the wire representation of a filtered job page
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}

// CancelResponse acknowledges a successful cancellation
type CancelResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// QueueStatsResponse wraps queue statistics
type QueueStatsResponse struct {
	Stats map[string]int `json:"stats"`
}

// JobLogsResponse returns the captured log lines for a job
type JobLogsResponse struct {
	JobID string        `json:"job_id"`
	Logs  []JobLogEntry `json:"logs"`
	Count int           `json:"count"`
}

// ErrorResponse is the uniform error body for all endpoints
type ErrorResponse struct {
	Error string `json:"error"`
}
