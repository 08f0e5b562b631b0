package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/opero/internal/models"
)

// ErrToolNotFound is returned when no tool is registered under a name
var ErrToolNotFound = errors.New("tool not found")

// Tool is a named operation invocable with JSON-shaped arguments.
// Results are rendered to strings, matching how tool output is embedded
// in batch operation records.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args map[string]interface{}) (string, error)
}

// ToolRegistry holds the tools available to batch operations and the MCP server
type ToolRegistry interface {
	// Register adds a tool, replacing any existing tool of the same name
	Register(tool Tool)

	// Get returns the named tool, or ErrToolNotFound
	Get(name string) (Tool, error)

	// List returns all registered tools sorted by name
	List() []Tool
}

// CommandRunner executes shell commands for validation and test batches.
// A command that runs and exits non-zero yields a CommandResult, not an
// error; errors indicate the command could not be started or timed out
// before producing output.
type CommandRunner interface {
	Run(ctx context.Context, command string) (*models.CommandResult, error)
}
