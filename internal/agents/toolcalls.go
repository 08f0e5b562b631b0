package agents

import (
	"encoding/json"
	"regexp"
	"strings"
)

// toolCall is one parsed tool invocation from a model response
type toolCall struct {
	Name string
	Args map[string]interface{}
}

var (
	fenceOpenRegex  = regexp.MustCompile("^```[a-zA-Z]*")
	fenceCloseRegex = regexp.MustCompile("```$")
)

// extractToolCalls parses JSON tool calls from a model response. The
// response may be a single object or an array of objects with a "name"
// and an "arguments" (or "args") map, optionally wrapped in markdown
// fences. Anything unparseable yields no calls; the response is then
// treated as plain text.
func extractToolCalls(text string) []toolCall {
	if text == "" {
		return nil
	}

	cleaned := strings.TrimSpace(text)
	cleaned = fenceOpenRegex.ReplaceAllString(cleaned, "")
	cleaned = fenceCloseRegex.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	var raw interface{}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil
	}

	var entries []interface{}
	switch v := raw.(type) {
	case []interface{}:
		entries = v
	case map[string]interface{}:
		entries = []interface{}{v}
	default:
		return nil
	}

	var calls []toolCall
	for _, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}

		name, _ := m["name"].(string)
		if name == "" {
			continue
		}

		args, ok := m["arguments"].(map[string]interface{})
		if !ok {
			args, _ = m["args"].(map[string]interface{})
		}
		if args == nil {
			args = map[string]interface{}{}
		}

		calls = append(calls, toolCall{Name: name, Args: args})
	}

	return calls
}

// argString reads a string argument, returning "" when absent or not a string
func argString(args map[string]interface{}, key string) string {
	value, _ := args[key].(string)
	return value
}
