package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID generates a unique job ID prefixed with the job type
// Format: <type>-<12 hex chars>
func NewJobID(jobType string) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return jobType + "-" + raw[:12]
}
