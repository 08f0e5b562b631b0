// -----------------------------------------------------------------------
// Batch Handler - Submission endpoints for the batch job types
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// BatchHandler accepts batch job submissions. Each endpoint validates the
// request shape at the boundary, converts it to the stored payload, and
// enqueues a job of the matching type.
type BatchHandler struct {
	queue  interfaces.JobQueue
	logger arbor.ILogger
}

// NewBatchHandler creates a new batch submission handler
func NewBatchHandler(queue interfaces.JobQueue, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{
		queue:  queue,
		logger: logger,
	}
}

// batchRequest is the shared surface of the four submission request types
type batchRequest interface {
	ToPayload() (map[string]interface{}, error)
	Metadata() map[string]interface{}
}

// AgentTasksHandler handles POST /api/batch/agent-tasks
func (h *BatchHandler) AgentTasksHandler(w http.ResponseWriter, r *http.Request) {
	var req models.BatchAgentTasksRequest
	h.submit(w, r, models.JobTypeAgentTasks, &req)
}

// ValidationHandler handles POST /api/batch/validation
func (h *BatchHandler) ValidationHandler(w http.ResponseWriter, r *http.Request) {
	var req models.BatchValidationRequest
	h.submit(w, r, models.JobTypeValidation, &req)
}

// TestsHandler handles POST /api/batch/tests
func (h *BatchHandler) TestsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.BatchTestsRequest
	h.submit(w, r, models.JobTypeTests, &req)
}

// MCPOperationsHandler handles POST /api/batch/mcp-operations
func (h *BatchHandler) MCPOperationsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.BatchMCPRequest
	h.submit(w, r, models.JobTypeMCP, &req)
}

// submit runs the shared decode -> validate -> enqueue pipeline
func (h *BatchHandler) submit(w http.ResponseWriter, r *http.Request, jobType string, req batchRequest) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := models.ValidateRequest(req); err != nil {
		h.logger.Debug().
			Err(err).
			Str("job_type", jobType).
			Msg("Submission rejected at validation")
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	payload, err := req.ToPayload()
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return
	}

	job, err := h.queue.AddJob(r.Context(), jobType, payload, req.Metadata())
	if err != nil {
		h.logger.Error().Err(err).Str("job_type", jobType).Msg("Failed to enqueue job")
		WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	WriteJSON(w, http.StatusAccepted, models.NewJobResponse(job))
}
