package interfaces

import (
	"context"

	"github.com/ternarybob/opero/internal/models"
)

// AgentRunner executes a single coding task through the agent pipeline.
//
// The config map carries per-job overrides from the submission request
// (model selection, loop limits, validation command). Implementations fall
// back to their configured defaults for keys that are absent.
type AgentRunner interface {
	// RunTask runs one task to completion or failure. The returned result
	// carries the conversation transcript and validation flags; an error
	// means the task could not produce a result at all.
	RunTask(ctx context.Context, task models.AgentTask, config map[string]interface{}) (*models.AgentResult, error)
}
