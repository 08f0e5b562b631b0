package agents

import (
	"fmt"
	"strings"
)

// Command and path deny lists applied before any tool call executes.
// Matching is substring/prefix based on the lowercased command line.
var (
	blockedCommandSubstrings = []string{
		" rm ",
		" rm-",
		" rm -rf",
		"sudo",
		"mkfs",
		"shutdown",
		"reboot",
		"> /dev/sd",
		";rm ",
		"&&rm ",
		"| rm ",
	}
	blockedCommandPrefixes = []string{"rm ", "rm-"}
	systemPathPrefixes     = []string{"/etc", "/usr", "/bin", "/sbin", "/lib"}
)

// guardToolCall decides whether a tool call may execute. It returns the
// rejection message and true when the call is denied. Read-only mode
// blocks all mutating tools; destructive commands and system path writes
// are always blocked.
func guardToolCall(call toolCall, applyChanges bool) (string, bool) {
	if !applyChanges && (call.Name == "write_file" || call.Name == "run_command") {
		target := argString(call.Args, "path")
		if target == "" {
			target = argString(call.Args, "command")
		}
		return fmt.Sprintf("READ-ONLY MODE: apply_changes is False, so %s('%s') is blocked.", call.Name, target), true
	}

	if call.Name == "run_command" {
		command := argString(call.Args, "command")
		low := strings.ToLower(command)
		for _, substr := range blockedCommandSubstrings {
			if strings.Contains(low, substr) {
				return fmt.Sprintf("SECURITY BLOCK: command '%s' is not allowed.", command), true
			}
		}
		for _, prefix := range blockedCommandPrefixes {
			if strings.HasPrefix(low, prefix) {
				return fmt.Sprintf("SECURITY BLOCK: command '%s' is not allowed.", command), true
			}
		}
	}

	if call.Name == "write_file" {
		path := argString(call.Args, "path")
		for _, prefix := range systemPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				return fmt.Sprintf("SECURITY BLOCK: writing to system path '%s' denied.", path), true
			}
		}
	}

	return "", false
}
