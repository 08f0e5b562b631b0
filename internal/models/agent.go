package models

// AgentResult is the outcome of running one coding task through the agent
type AgentResult struct {
	Messages    []string // Conversation transcript, user prompt excluded
	ValidatorOK bool     // True when the agent's validation step passed
	Blocked     bool     // True when a guardrail stopped the task
}

// CommandResult is the outcome of one shell command execution.
// A non-zero exit code is a result, not an error; errors are reserved
// for commands that could not run at all.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}
