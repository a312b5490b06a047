package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/zai-org/codinglm/internal/logger"
	"github.com/zai-org/codinglm/internal/providers"
)

// Registry holds the set of tools available to the model for one session.
// Dispatch matches tools/base.py::ToolRegistry.execute exactly: unknown
// tool and malformed-argument failures are returned as ordinary (non-error)
// Results so the model sees them as tool output, not a protocol fault.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order, so the tool
// definitions sent to the model (and the system-prompt primer) are stable
// across runs regardless of registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool schemas exposed to the LLM client.
func (r *Registry) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, name := range r.Names() {
		t, _ := r.Get(name)
		schema, _ := json.Marshal(t.Schema())
		defs = append(defs, providers.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: schema,
		})
	}
	return defs
}

// Execute looks up name and decodes argumentsJSON (empty string is treated
// as "{}") before invoking the tool. Both "tool not found" and "invalid
// JSON" are reported through Result.Error, never a Go error return, to
// match the original's execute() contract.
func (r *Registry) Execute(ctx context.Context, name string, argumentsJSON string) *Result {
	logger.InfoCF("tool", "tool execution started", map[string]any{"tool": name})

	t, ok := r.Get(name)
	if !ok {
		return Fail(fmt.Sprintf("Tool '%s' not found", name))
	}

	args := map[string]any{}
	if argumentsJSON != "" {
		if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
			return Fail(fmt.Sprintf("Invalid JSON arguments: %s", err))
		}
	}

	result := t.Execute(ctx, args)

	if result.OK {
		logger.InfoCF("tool", "tool execution succeeded", map[string]any{"tool": name})
	} else {
		logger.WarnCF("tool", "tool execution failed", map[string]any{"tool": name, "error": result.Error})
	}

	return result
}
