package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// mockQueue implements interfaces.JobQueue for handler tests
type mockQueue struct {
	addJobFunc    func(ctx context.Context, jobType string, payload, metadata map[string]interface{}) (*models.Job, error)
	getJobFunc    func(ctx context.Context, jobID string) (*models.Job, error)
	listJobsFunc  func(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Job, error)
	cancelJobFunc func(ctx context.Context, jobID string) (bool, error)
	getStatsFunc  func(ctx context.Context) (map[string]int, error)
}

func (m *mockQueue) Start() error { return nil }
func (m *mockQueue) Stop() error  { return nil }

func (m *mockQueue) RegisterProcessor(jobType string, processor interfaces.ProcessorFunc) {}

func (m *mockQueue) UpdateJob(ctx context.Context, job *models.Job) error { return nil }

func (m *mockQueue) AddJob(ctx context.Context, jobType string, payload, metadata map[string]interface{}) (*models.Job, error) {
	if m.addJobFunc != nil {
		return m.addJobFunc(ctx, jobType, payload, metadata)
	}
	return models.NewJob(jobType, payload, metadata), nil
}

func (m *mockQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	if m.getJobFunc != nil {
		return m.getJobFunc(ctx, jobID)
	}
	return nil, interfaces.ErrJobNotFound
}

func (m *mockQueue) ListJobs(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Job, error) {
	if m.listJobsFunc != nil {
		return m.listJobsFunc(ctx, opts)
	}
	return nil, nil
}

func (m *mockQueue) CancelJob(ctx context.Context, jobID string) (bool, error) {
	if m.cancelJobFunc != nil {
		return m.cancelJobFunc(ctx, jobID)
	}
	return false, nil
}

func (m *mockQueue) GetStats(ctx context.Context) (map[string]int, error) {
	if m.getStatsFunc != nil {
		return m.getStatsFunc(ctx)
	}
	return map[string]int{"total": 0}, nil
}

// mockLogStorage implements interfaces.JobLogStorage for handler tests
type mockLogStorage struct {
	getLogsFunc func(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error)
}

func (m *mockLogStorage) AppendLogs(ctx context.Context, jobID string, entries []models.JobLogEntry) error {
	return nil
}

func (m *mockLogStorage) GetLogs(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
	if m.getLogsFunc != nil {
		return m.getLogsFunc(ctx, jobID, limit)
	}
	return nil, nil
}

func (m *mockLogStorage) DeleteLogs(ctx context.Context, jobID string) error { return nil }

func (m *mockLogStorage) CountLogs(ctx context.Context, jobID string) (int, error) { return 0, nil }

func newTestJobHandler(queue *mockQueue, logs interfaces.JobLogStorage) *JobHandler {
	if logs == nil {
		logs = &mockLogStorage{}
	}
	return NewJobHandler(queue, logs, nil, arbor.NewLogger())
}

func TestGetJobHandler_Found(t *testing.T) {
	job := models.NewJob(models.JobTypeValidation, map[string]interface{}{}, nil)
	job.Status = models.JobStatusCompleted
	now := time.Now()
	job.CompletedAt = &now

	queue := &mockQueue{
		getJobFunc: func(ctx context.Context, jobID string) (*models.Job, error) {
			assert.Equal(t, job.ID, jobID)
			return job, nil
		},
	}

	handler := newTestJobHandler(queue, nil)
	req := httptest.NewRequest("GET", "/api/batch/jobs/"+job.ID, nil)
	rec := httptest.NewRecorder()

	handler.GetJobHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, job.ID, resp.JobID)
	assert.Equal(t, "completed", resp.Status)
	assert.NotNil(t, resp.CompletedAt)
}

func TestGetJobHandler_NotFound(t *testing.T) {
	handler := newTestJobHandler(&mockQueue{}, nil)
	req := httptest.NewRequest("GET", "/api/batch/jobs/missing", nil)
	rec := httptest.NewRecorder()

	handler.GetJobHandler(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Job not found", resp.Error)
}

func TestListJobsHandler_Filters(t *testing.T) {
	var captured *interfaces.ListOptions
	queue := &mockQueue{
		listJobsFunc: func(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Job, error) {
			captured = opts
			return []*models.Job{
				models.NewJob(models.JobTypeTests, map[string]interface{}{}, nil),
				models.NewJob(models.JobTypeTests, map[string]interface{}{}, nil),
			}, nil
		},
	}

	handler := newTestJobHandler(queue, nil)
	req := httptest.NewRequest("GET", "/api/batch/jobs?status=queued&type=batch_tests&limit=10&offset=5", nil)
	rec := httptest.NewRecorder()

	handler.ListJobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, models.JobStatusQueued, captured.Status)
	assert.Equal(t, models.JobTypeTests, captured.Type)
	assert.Equal(t, 10, captured.Limit)
	assert.Equal(t, 5, captured.Offset)

	var resp models.JobListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Jobs, 2)
}

func TestListJobsHandler_InvalidStatus(t *testing.T) {
	handler := newTestJobHandler(&mockQueue{}, nil)
	req := httptest.NewRequest("GET", "/api/batch/jobs?status=bogus", nil)
	rec := httptest.NewRecorder()

	handler.ListJobsHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsHandler_ClampsLimit(t *testing.T) {
	var captured *interfaces.ListOptions
	queue := &mockQueue{
		listJobsFunc: func(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Job, error) {
			captured = opts
			return nil, nil
		},
	}

	handler := newTestJobHandler(queue, nil)
	req := httptest.NewRequest("GET", "/api/batch/jobs?limit=9999", nil)
	rec := httptest.NewRecorder()

	handler.ListJobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, maxListLimit, captured.Limit)
}

func TestCancelJobHandler_Success(t *testing.T) {
	queue := &mockQueue{
		cancelJobFunc: func(ctx context.Context, jobID string) (bool, error) {
			return true, nil
		},
	}

	handler := newTestJobHandler(queue, nil)
	req := httptest.NewRequest("DELETE", "/api/batch/jobs/job-1", nil)
	rec := httptest.NewRecorder()

	handler.CancelJobHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.CancelResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "cancelled", resp.Status)
	assert.Equal(t, "job-1", resp.JobID)
}

func TestCancelJobHandler_NotCancellable(t *testing.T) {
	handler := newTestJobHandler(&mockQueue{}, nil)
	req := httptest.NewRequest("DELETE", "/api/batch/jobs/job-1", nil)
	rec := httptest.NewRecorder()

	handler.CancelJobHandler(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Job cannot be cancelled (not found or already completed)", resp.Error)
}

func TestStatsHandler(t *testing.T) {
	queue := &mockQueue{
		getStatsFunc: func(ctx context.Context) (map[string]int, error) {
			return map[string]int{
				"queued":    2,
				"running":   1,
				"completed": 4,
				"failed":    0,
				"cancelled": 1,
				"total":     8,
			}, nil
		},
	}

	handler := newTestJobHandler(queue, nil)
	req := httptest.NewRequest("GET", "/api/batch/stats", nil)
	rec := httptest.NewRecorder()

	handler.StatsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.QueueStatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 8, resp.Stats["total"])
	assert.Equal(t, 2, resp.Stats["queued"])
}

func TestLogsHandler_ReturnsEntries(t *testing.T) {
	job := models.NewJob(models.JobTypeMCP, map[string]interface{}{}, nil)

	queue := &mockQueue{
		getJobFunc: func(ctx context.Context, jobID string) (*models.Job, error) {
			return job, nil
		},
	}
	logs := &mockLogStorage{
		getLogsFunc: func(ctx context.Context, jobID string, limit int) ([]models.JobLogEntry, error) {
			assert.Equal(t, 25, limit)
			return []models.JobLogEntry{
				{JobIDField: jobID, Level: "info", Message: "chunk 1/2 done", LineNumber: 1},
				{JobIDField: jobID, Level: "warn", Message: "operation op-3 failed", LineNumber: 2},
			}, nil
		},
	}

	handler := newTestJobHandler(queue, logs)
	req := httptest.NewRequest("GET", "/api/batch/jobs/"+job.ID+"/logs?limit=25", nil)
	rec := httptest.NewRecorder()

	handler.LogsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.JobLogsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, job.ID, resp.JobID)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "chunk 1/2 done", resp.Logs[0].Message)
}

func TestLogsHandler_JobMissing(t *testing.T) {
	handler := newTestJobHandler(&mockQueue{}, nil)
	req := httptest.NewRequest("GET", "/api/batch/jobs/missing/logs", nil)
	rec := httptest.NewRecorder()

	handler.LogsHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobIDFromPath(t *testing.T) {
	assert.Equal(t, "job-1", JobIDFromPath("/api/batch/jobs/job-1", "/api/batch/jobs"))
	assert.Equal(t, "job-1", JobIDFromPath("/api/batch/jobs/job-1/logs", "/api/batch/jobs"))
	assert.Equal(t, "job-1", JobIDFromPath("/api/batch/jobs/job-1/report", "/api/batch/jobs"))
	assert.Equal(t, "", JobIDFromPath("/api/batch/jobs", "/api/batch/jobs"))
	assert.Equal(t, "", JobIDFromPath("/api/batch/jobs/", "/api/batch/jobs"))
}
