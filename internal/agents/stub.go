package agents

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
	"github.com/ternarybob/opero/internal/models"
)

// StubRunner acknowledges tasks without calling a provider. It is wired
// in when no API key is configured so batch submissions still exercise
// the full queue path.
type StubRunner struct {
	logger arbor.ILogger
}

var _ interfaces.AgentRunner = (*StubRunner)(nil)

// NewStubRunner creates a runner that returns canned results
func NewStubRunner(logger arbor.ILogger) *StubRunner {
	return &StubRunner{logger: logger}
}

// RunTask returns a transcript noting that no provider is configured.
// ValidatorOK stays false because nothing was validated.
func (s *StubRunner) RunTask(ctx context.Context, task models.AgentTask, config map[string]interface{}) (*models.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("task_id", task.ID).
		Msg("Stub agent acknowledged task")

	return &models.AgentResult{
		Messages: []string{
			task.Description,
			fmt.Sprintf("stub agent: no LLM provider configured, task '%s' was not executed", task.ID),
		},
	}, nil
}
