package interfaces

import "github.com/ternarybob/opero/internal/models"

// ReportService renders job execution reports
type ReportService interface {
	// BuildMarkdown assembles a markdown report from a job record and its
	// captured log lines
	BuildMarkdown(job *models.Job, logs []models.JobLogEntry) string

	// ConvertMarkdownToPDF converts markdown content to a PDF byte slice
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)
}
