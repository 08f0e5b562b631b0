package reports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertMarkdownToPDF(t *testing.T) {
	service := newTestService()

	tests := []struct {
		name     string
		markdown string
		title    string
	}{
		{
			name:     "Basic Markdown",
			markdown: "# Title\n\nSome paragraph text.\n\n- Item 1\n- Item 2",
			title:    "Basic Report",
		},
		{
			name:     "Empty Markdown",
			markdown: "",
			title:    "Empty Report",
		},
		{
			name: "Table And Code Block",
			markdown: `# Header

Some text.

| Col 1 | Col 2 |
|-------|-------|
| Val 1 | Val 2 |

` + "```\nexit 1\nstderr output\n```",
			title: "Complex Report",
		},
		{
			name:     "Bold And Italic",
			markdown: "Normal **Bold** *Italic* and `inline code`.",
			title:    "Styling",
		},
		{
			name:     "Thematic Break",
			markdown: "Before\n\n---\n\nAfter",
			title:    "Break",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdfBytes, err := service.ConvertMarkdownToPDF(tt.markdown, tt.title)
			require.NoError(t, err)
			require.NotEmpty(t, pdfBytes)

			// Basic PDF header check
			assert.Equal(t, "%PDF", string(pdfBytes[:4]))
		})
	}
}

func TestConvertMarkdownToPDF_FullReport(t *testing.T) {
	service := newTestService()
	job := completedValidationJob()

	md := service.BuildMarkdown(job, sampleLogs())
	pdfBytes, err := service.ConvertMarkdownToPDF(md, "Job Report "+job.ID)

	require.NoError(t, err)
	assert.Greater(t, len(pdfBytes), 500)
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
}

func TestConvertMarkdownToPDF_WideTableTruncates(t *testing.T) {
	service := newTestService()

	long := "this cell is considerably longer than a single table column can hold without truncation applied"
	md := "| A | B | C | D |\n|---|---|---|---|\n| " + long + " | b | c | d |\n"

	pdfBytes, err := service.ConvertMarkdownToPDF(md, "Wide Table")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
}
