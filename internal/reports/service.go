// -----------------------------------------------------------------------
// Report Service - Markdown and PDF reports for batch jobs
// -----------------------------------------------------------------------

package reports

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// Service builds human-readable reports for batch jobs: a markdown document
// assembled from the stored job record plus its captured logs, and a PDF
// rendering of that markdown.
type Service struct {
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ReportService = (*Service)(nil)

// NewService creates a new report service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// BuildMarkdown assembles a markdown report from a job record and its
// captured log lines. The layout is the same for every job type; sections
// with no content (no result yet, no logs) are omitted.
func (s *Service) BuildMarkdown(job *models.Job, logs []models.JobLogEntry) string {
	s.logger.Debug().
		Str("job_id", job.ID).
		Int("log_lines", len(logs)).
		Msg("Building job report")

	var b strings.Builder

	fmt.Fprintf(&b, "# Job Report: %s\n\n", job.ID)

	b.WriteString("| Field | Value |\n|-------|-------|\n")
	fmt.Fprintf(&b, "| Type | %s |\n", job.Type)
	fmt.Fprintf(&b, "| Status | %s |\n", job.Status)
	fmt.Fprintf(&b, "| Progress | %.1f%% |\n", job.Progress)
	fmt.Fprintf(&b, "| Created | %s |\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Fprintf(&b, "| Started | %s |\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Fprintf(&b, "| Completed | %s |\n", job.CompletedAt.Format(time.RFC3339))
	}
	if duration, ok := jobDuration(job); ok {
		fmt.Fprintf(&b, "| Duration | %s |\n", duration)
	}
	b.WriteString("\n")

	if job.Error != "" {
		b.WriteString("## Error\n\n")
		fmt.Fprintf(&b, "```\n%s\n```\n\n", job.Error)
	}

	writeSummary(&b, job.Result)
	writeResults(&b, job.Result)
	writeLogs(&b, logs)

	return b.String()
}

// jobDuration reports run time: completed minus started, or elapsed so far
// for a job that is still running
func jobDuration(job *models.Job) (string, bool) {
	if job.StartedAt == nil {
		return "", false
	}
	end := time.Now()
	if job.CompletedAt != nil {
		end = *job.CompletedAt
	}
	return end.Sub(*job.StartedAt).Round(time.Millisecond).String(), true
}

func writeSummary(b *strings.Builder, result map[string]interface{}) {
	if len(result) == 0 {
		return
	}
	b.WriteString("## Summary\n\n")

	// Soft failures ("No tasks provided") complete the job with an error
	// message in the result instead of a summary table
	if msg, ok := result["error"].(string); ok && msg != "" {
		fmt.Fprintf(b, "%s\n\n", msg)
	}

	if summary, ok := result["summary"].(map[string]interface{}); ok && len(summary) > 0 {
		b.WriteString("| Metric | Count |\n|--------|-------|\n")
		for _, key := range summaryKeys(summary) {
			fmt.Fprintf(b, "| %s | %s |\n", key, formatCount(summary[key]))
		}
		b.WriteString("\n")
	}

	if secs, ok := toFloat(result["elapsed_seconds"]); ok {
		fmt.Fprintf(b, "Elapsed: %.2fs\n\n", secs)
	}
}

func writeResults(b *strings.Builder, result map[string]interface{}) {
	records := resultRecords(result)
	if len(records) == 0 {
		return
	}
	b.WriteString("## Results\n\n")
	b.WriteString("| # | Item | Status | Detail |\n|---|------|--------|--------|\n")
	for i, record := range records {
		fmt.Fprintf(b, "| %d | %s | %s | %s |\n",
			i+1,
			cellText(recordItem(record)),
			cellText(stringField(record, "status")),
			cellText(recordDetail(record)))
	}
	b.WriteString("\n")
}

func writeLogs(b *strings.Builder, logs []models.JobLogEntry) {
	if len(logs) == 0 {
		return
	}
	fmt.Fprintf(b, "## Logs (%d lines)\n\n```\n", len(logs))
	for _, entry := range logs {
		fmt.Fprintf(b, "%s %-5s %s\n", entry.Timestamp, strings.ToUpper(entry.Level), entry.Message)
	}
	b.WriteString("```\n")
}

// summaryKeys orders the counter names the processors emit first, then any
// remaining keys alphabetically, so reports render deterministically
func summaryKeys(summary map[string]interface{}) []string {
	known := []string{"total", "successful", "passed", "failed", "skipped"}
	keys := make([]string, 0, len(summary))
	for _, key := range known {
		if _, ok := summary[key]; ok {
			keys = append(keys, key)
		}
	}
	var rest []string
	for key := range summary {
		seen := false
		for _, k := range known {
			if k == key {
				seen = true
				break
			}
		}
		if !seen {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// resultRecords returns the per-item records from a job result. Results read
// back from the store have been through JSON, which turns the slice into
// []interface{}; results taken straight from a processor are still typed.
func resultRecords(result map[string]interface{}) []map[string]interface{} {
	switch v := result["results"].(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		records := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				records = append(records, m)
			}
		}
		return records
	}
	return nil
}

// recordItem returns the identifier of a result record. Each processor names
// its unit differently; fall back to the path when no ID field is present.
func recordItem(record map[string]interface{}) string {
	for _, key := range []string{"task_id", "target_id", "module_id", "operation"} {
		if v, ok := record[key].(string); ok && v != "" {
			return v
		}
	}
	if path, ok := record["path"].(string); ok && path != "" {
		return path
	}
	return "-"
}

func recordDetail(record map[string]interface{}) string {
	if msg, ok := record["error"].(string); ok && msg != "" {
		return msg
	}
	if code, ok := toFloat(record["exit_code"]); ok {
		return fmt.Sprintf("exit %d", int(code))
	}
	if blocked, ok := record["blocked"].(bool); ok && blocked {
		return "guardrail blocked"
	}
	return ""
}

func stringField(record map[string]interface{}, key string) string {
	v, _ := record[key].(string)
	return v
}

// cellText makes a value safe for a single markdown table cell
func cellText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

func formatCount(v interface{}) string {
	if f, ok := toFloat(v); ok {
		return strconv.Itoa(int(f))
	}
	return fmt.Sprintf("%v", v)
}

// toFloat handles both in-memory ints and post-JSON float64 numbers
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
