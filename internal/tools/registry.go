package tools

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/interfaces"
)

// Registry is a name-keyed tool collection shared by the batch MCP
// processor and the MCP server binary.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]interfaces.Tool
	logger arbor.ILogger
}

// NewRegistry creates an empty tool registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		tools:  make(map[string]interfaces.Tool),
		logger: logger,
	}
}

// NewLocalRegistry builds the default local toolset: filesystem tools
// confined to root plus shell command execution through runner.
func NewLocalRegistry(root string, runner interfaces.CommandRunner, logger arbor.ILogger) (*Registry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tool root %s: %w", root, err)
	}

	registry := NewRegistry(logger)
	registry.Register(&ReadFileTool{root: absRoot})
	registry.Register(&WriteFileTool{root: absRoot})
	registry.Register(&ListDirectoryTool{root: absRoot})
	registry.Register(&RunCommandTool{runner: runner})

	logger.Info().
		Str("tool_root", absRoot).
		Int("tools", len(registry.List())).
		Msg("Local tool registry initialized")

	return registry, nil
}

// Register adds a tool, replacing any existing tool of the same name
func (r *Registry) Register(tool interfaces.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns the named tool
func (r *Registry) Get(name string) (interfaces.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrToolNotFound, name)
	}
	return tool, nil
}

// List returns all registered tools sorted by name
func (r *Registry) List() []interfaces.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]interfaces.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}
