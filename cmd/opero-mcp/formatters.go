package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/opero/internal/models"
)

// formatJob formats a single job as markdown
func formatJob(job *models.Job) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Job %s\n\n", job.ID))
	sb.WriteString(fmt.Sprintf("**Type:** %s\n", job.Type))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("**Progress:** %.1f%%\n", job.Progress))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", job.CreatedAt.Format(time.RFC3339)))
	if job.StartedAt != nil {
		sb.WriteString(fmt.Sprintf("**Started:** %s\n", job.StartedAt.Format(time.RFC3339)))
	}
	if job.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("**Completed:** %s\n", job.CompletedAt.Format(time.RFC3339)))
	}
	if job.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", job.Error))
	}

	if len(job.Result) > 0 {
		resultJSON, _ := json.MarshalIndent(job.Result, "", "  ")
		sb.WriteString("\n## Result\n\n```json\n")
		sb.Write(resultJSON)
		sb.WriteString("\n```\n")
	}

	if len(job.Metadata) > 0 {
		metadataJSON, _ := json.MarshalIndent(job.Metadata, "", "  ")
		sb.WriteString(fmt.Sprintf("\n**Metadata:** %s\n", string(metadataJSON)))
	}

	return sb.String()
}

// formatJobList formats a job listing as a markdown table
func formatJobList(jobs []*models.Job) string {
	if len(jobs) == 0 {
		return "No jobs found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Jobs (%d)\n\n", len(jobs)))
	sb.WriteString("| ID | Type | Status | Progress | Created |\n")
	sb.WriteString("|----|------|--------|----------|--------|\n")
	for _, job := range jobs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.1f%% | %s |\n",
			job.ID, job.Type, job.Status, job.Progress,
			job.CreatedAt.Format(time.RFC3339)))
	}

	return sb.String()
}

// formatStats formats queue statistics as markdown
func formatStats(stats map[string]int) string {
	var sb strings.Builder
	sb.WriteString("## Queue Stats\n\n")
	for _, status := range []string{"queued", "running", "completed", "failed", "cancelled", "total"} {
		sb.WriteString(fmt.Sprintf("- **%s:** %d\n", status, stats[status]))
	}
	return sb.String()
}

// formatLogs formats a job's captured log lines
func formatLogs(jobID string, entries []models.JobLogEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No logs captured for job %s.\n", jobID)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Logs for %s (%d lines)\n\n", jobID, len(entries)))
	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("%4d  %s [%s] %s\n",
			entry.LineNumber, entry.Timestamp, strings.ToUpper(entry.Level), entry.Message))
	}

	return sb.String()
}
