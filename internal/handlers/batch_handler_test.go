package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/models"
)

func newTestBatchHandler(queue *mockQueue) *BatchHandler {
	return NewBatchHandler(queue, arbor.NewLogger())
}

func postJSON(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestAgentTasksHandler_Accepted(t *testing.T) {
	var capturedType string
	var capturedPayload map[string]interface{}
	var capturedMetadata map[string]interface{}

	queue := &mockQueue{
		addJobFunc: func(ctx context.Context, jobType string, payload, metadata map[string]interface{}) (*models.Job, error) {
			capturedType = jobType
			capturedPayload = payload
			capturedMetadata = metadata
			return models.NewJob(jobType, payload, metadata), nil
		},
	}

	handler := newTestBatchHandler(queue)
	rec := postJSON(handler.AgentTasksHandler, "/api/batch/agent-tasks", `{
		"tasks": [
			{"id": "t1", "description": "add retry to fetcher"},
			{"id": "t2", "description": "fix off-by-one in pager"}
		],
		"chunk_size": 2,
		"parallel": 3
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, models.JobTypeAgentTasks, capturedType)
	assert.Equal(t, 2, capturedMetadata["total_tasks"])
	require.NotNil(t, capturedPayload)
	assert.Len(t, capturedPayload["tasks"], 2)

	var resp models.JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "queued", resp.Status)
	assert.NotEmpty(t, resp.JobID)
}

func TestAgentTasksHandler_MissingTasks(t *testing.T) {
	handler := newTestBatchHandler(&mockQueue{})
	rec := postJSON(handler.AgentTasksHandler, "/api/batch/agent-tasks", `{"chunk_size": 2}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp.Error, "tasks")
}

func TestAgentTasksHandler_EmptyTaskListAccepted(t *testing.T) {
	// An explicit empty list is a valid submission; the processor produces
	// the empty-result document rather than the boundary rejecting it
	queue := &mockQueue{}
	handler := newTestBatchHandler(queue)
	rec := postJSON(handler.AgentTasksHandler, "/api/batch/agent-tasks", `{"tasks": []}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAgentTasksHandler_MalformedBody(t *testing.T) {
	handler := newTestBatchHandler(&mockQueue{})
	rec := postJSON(handler.AgentTasksHandler, "/api/batch/agent-tasks", `{"tasks": [`)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp.Error, "Invalid request body")
}

func TestAgentTasksHandler_NegativeChunkSize(t *testing.T) {
	handler := newTestBatchHandler(&mockQueue{})
	rec := postJSON(handler.AgentTasksHandler, "/api/batch/agent-tasks", `{
		"tasks": [{"id": "t1", "description": "x"}],
		"chunk_size": -1
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAgentTasksHandler_MethodNotAllowed(t *testing.T) {
	handler := newTestBatchHandler(&mockQueue{})
	req := httptest.NewRequest("GET", "/api/batch/agent-tasks", nil)
	rec := httptest.NewRecorder()

	handler.AgentTasksHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestValidationHandler_Accepted(t *testing.T) {
	var capturedType string
	queue := &mockQueue{
		addJobFunc: func(ctx context.Context, jobType string, payload, metadata map[string]interface{}) (*models.Job, error) {
			capturedType = jobType
			return models.NewJob(jobType, payload, metadata), nil
		},
	}

	handler := newTestBatchHandler(queue)
	rec := postJSON(handler.ValidationHandler, "/api/batch/validation", `{
		"targets": [{"path": "src/app.py"}, {"path": "src/lib.py"}],
		"check_command": "ruff check"
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, models.JobTypeValidation, capturedType)
}

func TestTestsHandler_Accepted(t *testing.T) {
	var capturedMetadata map[string]interface{}
	queue := &mockQueue{
		addJobFunc: func(ctx context.Context, jobType string, payload, metadata map[string]interface{}) (*models.Job, error) {
			capturedMetadata = metadata
			return models.NewJob(jobType, payload, metadata), nil
		},
	}

	handler := newTestBatchHandler(queue)
	rec := postJSON(handler.TestsHandler, "/api/batch/tests", `{
		"modules": [{"path": "tests/test_api.py"}],
		"test_command": "pytest -q"
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, capturedMetadata["total_modules"])
}

func TestMCPOperationsHandler_Accepted(t *testing.T) {
	var capturedPayload map[string]interface{}
	queue := &mockQueue{
		addJobFunc: func(ctx context.Context, jobType string, payload, metadata map[string]interface{}) (*models.Job, error) {
			capturedPayload = payload
			return models.NewJob(jobType, payload, metadata), nil
		},
	}

	handler := newTestBatchHandler(queue)
	rec := postJSON(handler.MCPOperationsHandler, "/api/batch/mcp-operations", `{
		"operations": [
			{"type": "read", "path": "README.md"},
			{"type": "command", "command": "ls"}
		],
		"parallel": 2
	}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, capturedPayload)
	assert.Len(t, capturedPayload["operations"], 2)
}

func TestMCPOperationsHandler_MissingOperations(t *testing.T) {
	handler := newTestBatchHandler(&mockQueue{})
	rec := postJSON(handler.MCPOperationsHandler, "/api/batch/mcp-operations", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
