// -----------------------------------------------------------------------
// Batch Payloads - Typed work descriptions for each job type
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
)

// MaxParallel is the hard ceiling on per-job inner concurrency.
// Requested parallelism above this is clamped, never rejected.
const MaxParallel = 10

// DefaultChunkSize is the number of items processed between progress persists
const DefaultChunkSize = 10

// AgentTask is a single coding task for the agent runner
type AgentTask struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// AgentTasksPayload describes a batch_agent_tasks job
type AgentTasksPayload struct {
	Tasks     []AgentTask            `json:"tasks"`
	ChunkSize int                    `json:"chunk_size,omitempty" validate:"gte=0"`
	Parallel  int                    `json:"parallel,omitempty" validate:"gte=0"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// EffectiveChunkSize returns the chunk size, defaulting when unset
func (p *AgentTasksPayload) EffectiveChunkSize() int {
	if p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.ChunkSize
}

// EffectiveParallel returns the inner concurrency bound (default 3, max 10)
func (p *AgentTasksPayload) EffectiveParallel() int {
	return clampParallel(p.Parallel, 3)
}

// ValidationTarget is a single file or project to validate
type ValidationTarget struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// ValidationPayload describes a batch_validation job
type ValidationPayload struct {
	Targets      []ValidationTarget `json:"targets"`
	CheckCommand string             `json:"check_command,omitempty"`
	ChunkSize    int                `json:"chunk_size,omitempty" validate:"gte=0"`
	Parallel     int                `json:"parallel,omitempty" validate:"gte=0"`
}

// EffectiveCheckCommand returns the validation command, defaulting when unset
func (p *ValidationPayload) EffectiveCheckCommand() string {
	if p.CheckCommand == "" {
		return "pytest -q"
	}
	return p.CheckCommand
}

// EffectiveChunkSize returns the chunk size, defaulting when unset
func (p *ValidationPayload) EffectiveChunkSize() int {
	if p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.ChunkSize
}

// EffectiveParallel returns the inner concurrency bound (default 5, max 10)
func (p *ValidationPayload) EffectiveParallel() int {
	return clampParallel(p.Parallel, 5)
}

// TestModule is a single test module to execute
type TestModule struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// TestsPayload describes a batch_tests job
type TestsPayload struct {
	Modules     []TestModule `json:"modules"`
	TestCommand string       `json:"test_command,omitempty"`
	ChunkSize   int          `json:"chunk_size,omitempty" validate:"gte=0"`
	Parallel    int          `json:"parallel,omitempty" validate:"gte=0"`
}

// EffectiveTestCommand returns the test command, defaulting when unset
func (p *TestsPayload) EffectiveTestCommand() string {
	if p.TestCommand == "" {
		return "pytest -v"
	}
	return p.TestCommand
}

// EffectiveChunkSize returns the chunk size, defaulting when unset
func (p *TestsPayload) EffectiveChunkSize() int {
	if p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.ChunkSize
}

// EffectiveParallel returns the inner concurrency bound (default 5, max 10)
func (p *TestsPayload) EffectiveParallel() int {
	return clampParallel(p.Parallel, 5)
}

// MCP operation types dispatched to registered tools
const (
	MCPOpRead    = "read"
	MCPOpWrite   = "write"
	MCPOpList    = "list"
	MCPOpCommand = "command"
)

// MCPOperation is a single tool operation.
// Path/Content/Command relevance depends on Type; unknown types are
// admitted here and fail per-item inside the processor.
type MCPOperation struct {
	Type    string `json:"type"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"`
	Command string `json:"command,omitempty"`
}

// MCPPayload describes a batch_mcp job
type MCPPayload struct {
	Operations []MCPOperation `json:"operations"`
	ChunkSize  int            `json:"chunk_size,omitempty" validate:"gte=0"`
	Parallel   int            `json:"parallel,omitempty" validate:"gte=0"`
}

// EffectiveChunkSize returns the chunk size, defaulting when unset
func (p *MCPPayload) EffectiveChunkSize() int {
	if p.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return p.ChunkSize
}

// EffectiveParallel returns the inner concurrency bound (default 5, max 10)
func (p *MCPPayload) EffectiveParallel() int {
	return clampParallel(p.Parallel, 5)
}

func clampParallel(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested > MaxParallel {
		return MaxParallel
	}
	return requested
}

// DecodeAgentTasksPayload converts a stored payload map into its typed form
func DecodeAgentTasksPayload(payload map[string]interface{}) (*AgentTasksPayload, error) {
	var p AgentTasksPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeValidationPayload converts a stored payload map into its typed form
func DecodeValidationPayload(payload map[string]interface{}) (*ValidationPayload, error) {
	var p ValidationPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeTestsPayload converts a stored payload map into its typed form
func DecodeTestsPayload(payload map[string]interface{}) (*TestsPayload, error) {
	var p TestsPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DecodeMCPPayload converts a stored payload map into its typed form
func DecodeMCPPayload(payload map[string]interface{}) (*MCPPayload, error) {
	var p MCPPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ToMap converts a typed payload into the generic map stored on the job
func ToMap(payload interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to convert payload to map: %w", err)
	}
	return m, nil
}

func decodePayload(payload map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
