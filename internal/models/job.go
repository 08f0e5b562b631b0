// -----------------------------------------------------------------------
// Batch Job - Durable job record for queue persistence
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/opero/internal/common"
)

// JobStatus represents the lifecycle state of a batch job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// AllJobStatuses lists every lifecycle state, used for stats zero-filling
// and query-parameter validation.
var AllJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// IsValid returns true if the status is one of the known lifecycle states
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true for states no further transition may leave
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Batch job types, one per registered processor
const (
	JobTypeAgentTasks = "batch_agent_tasks"
	JobTypeValidation = "batch_validation"
	JobTypeTests      = "batch_tests"
	JobTypeMCP        = "batch_mcp"
)

// Job represents a batch processing job persisted by the job store.
//
// Lifecycle: queued -> running -> {completed | failed | cancelled}.
// A queued job may also move straight to cancelled. Terminal states are
// final; the store's conditional update is the enforcement point, so a
// processor result arriving after cancellation never resurrects the job.
type Job struct {
	ID     string    `json:"id"`     // Unique job ID: <type>-<12 hex chars>
	Type   string    `json:"type"`   // Processor selector, e.g. "batch_validation"
	Status JobStatus `json:"status"` // Current lifecycle state

	// Payload is the caller-supplied work description, immutable after enqueue
	Payload map[string]interface{} `json:"payload"`

	// Progress is the completion percentage (0-100), updated per chunk
	Progress float64 `json:"progress"`

	// Result holds the processor output once the job completes
	Result map[string]interface{} `json:"result,omitempty"`

	// Error holds the failure reason for failed jobs
	Error string `json:"error,omitempty"`

	// Metadata holds mutable bookkeeping (progress snapshots, submitter info)
	Metadata map[string]interface{} `json:"metadata"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a queued job with a freshly generated ID
func NewJob(jobType string, payload, metadata map[string]interface{}) *Job {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Job{
		ID:        common.NewJobID(jobType),
		Type:      jobType,
		Status:    JobStatusQueued,
		Payload:   payload,
		Progress:  0.0,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// CanTransitionTo reports whether moving to next is a legal lifecycle step
func (j *Job) CanTransitionTo(next JobStatus) bool {
	if j.Status.IsTerminal() {
		return false
	}
	switch j.Status {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusCancelled
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	}
	return false
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// MarkRunning marks the job as claimed by a worker
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	now := time.Now()
	j.StartedAt = &now
}

// MarkCompleted marks the job as completed with the processor result
func (j *Job) MarkCompleted(result map[string]interface{}) {
	j.Status = JobStatusCompleted
	j.Result = result
	j.Progress = 100.0
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed marks the job as failed with an error message
func (j *Job) MarkFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.Error = errorMsg
	now := time.Now()
	j.CompletedAt = &now
}

// MarkCancelled marks the job as cancelled
func (j *Job) MarkCancelled() {
	j.Status = JobStatusCancelled
	now := time.Now()
	j.CompletedAt = &now
}

// Clone creates a deep-enough copy for handing out across goroutines.
// Payload and Metadata maps are copied one level deep; values are shared.
func (j *Job) Clone() *Job {
	payloadCopy := make(map[string]interface{}, len(j.Payload))
	for k, v := range j.Payload {
		payloadCopy[k] = v
	}
	metadataCopy := make(map[string]interface{}, len(j.Metadata))
	for k, v := range j.Metadata {
		metadataCopy[k] = v
	}

	clone := *j
	clone.Payload = payloadCopy
	clone.Metadata = metadataCopy
	return &clone
}

// ToJSON serializes the job for store persistence
func (j *Job) ToJSON() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// JobFromJSON deserializes a job from store persistence
func JobFromJSON(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Payload == nil {
		job.Payload = make(map[string]interface{})
	}
	if job.Metadata == nil {
		job.Metadata = make(map[string]interface{})
	}
	return &job, nil
}

// Validate checks structural invariants before persistence
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.Type == "" {
		return fmt.Errorf("job type is required")
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("invalid job status: %q", j.Status)
	}
	if j.Payload == nil {
		return fmt.Errorf("job payload cannot be nil")
	}
	if j.Metadata == nil {
		return fmt.Errorf("job metadata cannot be nil")
	}
	return nil
}

// SetMetadata sets a metadata value (initializes map if needed)
func (j *Job) SetMetadata(key string, value interface{}) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]interface{})
	}
	j.Metadata[key] = value
}

// GetPayloadString retrieves a string value from the payload
func (j *Job) GetPayloadString(key string) (string, bool) {
	val, ok := j.Payload[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetPayloadInt retrieves an int value from the payload.
// Handles both int and float64 (JSON unmarshaling converts numbers to float64).
func (j *Job) GetPayloadInt(key string) (int, bool) {
	val, ok := j.Payload[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetPayloadSlice retrieves a slice value from the payload
func (j *Job) GetPayloadSlice(key string) ([]interface{}, bool) {
	val, ok := j.Payload[key]
	if !ok {
		return nil, false
	}
	slice, ok := val.([]interface{})
	return slice, ok
}

// GetPayloadMap retrieves a nested map value from the payload
func (j *Job) GetPayloadMap(key string) (map[string]interface{}, bool) {
	val, ok := j.Payload[key]
	if !ok {
		return nil, false
	}
	m, ok := val.(map[string]interface{})
	return m, ok
}
