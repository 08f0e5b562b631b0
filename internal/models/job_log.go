package models

// JobLogEntry represents a single persistent log line captured for a job.
//
// Entries are written by the log consumer, which groups arbor events by
// correlation ID (the job ID) and appends them in batches.
//
// Timestamp Format:
//   - Timestamp: "15:04:05.000" (HH:MM:SS.mmm) for display
//   - FullTimestamp: RFC3339Nano for accurate sorting
//
// Log Levels: "debug", "info", "warn", "error"
type JobLogEntry struct {
	Timestamp     string `json:"timestamp"`                // HH:MM:SS.mmm format for display
	FullTimestamp string `json:"full_timestamp"`           // RFC3339Nano for sorting
	Level         string `json:"level" badgerhold:"index"` // Log level (indexed)
	Message       string `json:"message"`                  // Log message

	// LineNumber is a per-job monotonically increasing counter (1-based),
	// giving each job's logs stable, contiguous numbering for display
	LineNumber int `json:"line_number" badgerhold:"index"`

	// JobIDField is the primary query field - stored separately for efficient
	// badgerhold indexing (badgerhold cannot query into map fields)
	JobIDField string `json:"job_id" badgerhold:"index"`

	// Context stores additional metadata as key-value pairs
	Context map[string]string `json:"context,omitempty"`
}

// JobID returns the job ID from the dedicated indexed field
func (e *JobLogEntry) JobID() string { return e.JobIDField }

// GetContext safely retrieves a context value
func (e *JobLogEntry) GetContext(key string) string {
	if e.Context == nil {
		return ""
	}
	return e.Context[key]
}

// SetContext safely sets a context value (initializes map if needed)
func (e *JobLogEntry) SetContext(key, value string) {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	if value != "" {
		e.Context[key] = value
	}
}
