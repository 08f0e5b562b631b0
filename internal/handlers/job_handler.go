// -----------------------------------------------------------------------
// Job Handler - Query, cancellation, logs and reports for batch jobs
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	defaultLogLimit  = 100
)

// JobHandler serves job lookups, listings, cancellation, stats, captured
// logs and rendered reports.
type JobHandler struct {
	queue   interfaces.JobQueue
	logs    interfaces.JobLogStorage
	reports interfaces.ReportService
	logger  arbor.ILogger
}

// NewJobHandler creates a new job query handler
func NewJobHandler(queue interfaces.JobQueue, logs interfaces.JobLogStorage, reports interfaces.ReportService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		queue:   queue,
		logs:    logs,
		reports: reports,
		logger:  logger,
	}
}

// GetJobHandler handles GET /api/batch/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path, "/api/batch/jobs")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.queue.GetJob(r.Context(), jobID)
	if errors.Is(err, interfaces.ErrJobNotFound) {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	WriteJSON(w, http.StatusOK, models.NewJobResponse(job))
}

// ListJobsHandler handles GET /api/batch/jobs?status=&type=&limit=&offset=
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	opts := &interfaces.ListOptions{
		Type:   r.URL.Query().Get("type"),
		Limit:  QueryInt(r, "limit", defaultListLimit),
		Offset: QueryInt(r, "offset", 0),
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}

	if status := r.URL.Query().Get("status"); status != "" {
		parsed := models.JobStatus(status)
		if !parsed.IsValid() {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status filter: %q", status))
			return
		}
		opts.Status = parsed
	}

	jobs, err := h.queue.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	responses := make([]models.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, models.NewJobResponse(job))
	}

	WriteJSON(w, http.StatusOK, models.JobListResponse{
		Jobs:  responses,
		Total: len(responses),
	})
}

// CancelJobHandler handles DELETE /api/batch/jobs/{id}
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path, "/api/batch/jobs")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	cancelled, err := h.queue.CancelJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		WriteError(w, http.StatusInternalServerError, "Failed to cancel job")
		return
	}
	if !cancelled {
		WriteError(w, http.StatusBadRequest, "Job cannot be cancelled (not found or already completed)")
		return
	}

	WriteJSON(w, http.StatusOK, models.CancelResponse{
		Status: "cancelled",
		JobID:  jobID,
	})
}

// StatsHandler handles GET /api/batch/stats
func (h *JobHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.queue.GetStats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to compute queue stats")
		WriteError(w, http.StatusInternalServerError, "Failed to compute queue stats")
		return
	}

	WriteJSON(w, http.StatusOK, models.QueueStatsResponse{Stats: stats})
}

// LogsHandler handles GET /api/batch/jobs/{id}/logs?limit=
func (h *JobHandler) LogsHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path, "/api/batch/jobs")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	// The job must exist; an empty log history for a real job is fine
	if _, err := h.queue.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	limit := QueryInt(r, "limit", defaultLogLimit)
	entries, err := h.logs.GetLogs(r.Context(), jobID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job logs")
		WriteError(w, http.StatusInternalServerError, "Failed to load job logs")
		return
	}

	WriteJSON(w, http.StatusOK, models.JobLogsResponse{
		JobID: jobID,
		Logs:  entries,
		Count: len(entries),
	})
}

// ReportHandler handles GET /api/batch/jobs/{id}/report?format=markdown|pdf
func (h *JobHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	jobID := JobIDFromPath(r.URL.Path, "/api/batch/jobs")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.queue.GetJob(r.Context(), jobID)
	if errors.Is(err, interfaces.ErrJobNotFound) {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
		WriteError(w, http.StatusInternalServerError, "Failed to load job")
		return
	}

	entries, err := h.logs.GetLogs(r.Context(), jobID, defaultLogLimit)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Report proceeds without job logs")
		entries = nil
	}

	markdown := h.reports.BuildMarkdown(job, entries)

	format := r.URL.Query().Get("format")
	switch format {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(markdown))

	case "pdf":
		pdf, err := h.reports.ConvertMarkdownToPDF(markdown, fmt.Sprintf("Job Report: %s", jobID))
		if err != nil {
			h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to render PDF report")
			WriteError(w, http.StatusInternalServerError, "Failed to render PDF report")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+".pdf"))
		w.WriteHeader(http.StatusOK)
		w.Write(pdf)

	default:
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid report format: %q", format))
	}
}
