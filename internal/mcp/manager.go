// Package mcp manages subprocess MCP tool providers: one go-sdk client
// session per configured server, lazily started on first use, exposing
// their tools to the turn controller (alongside, not inside, the built-in
// tool Registry) under the "mcp::<server>::<tool>" namespace.
//
// Grounded on picoclaw's pkg/mcp/manager.go for the go-sdk wiring
// (NewClient, CommandTransport, session lifecycle monitoring); the
// namespace separator itself follows the original Python's
// mcp/client.py::get_all_tools ("mcp::{server}::{tool}"), not the
// teacher's own sanitized "mcp_<server>__<tool>" convention — spec §3/§8
// require the literal double-colon form.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zai-org/codinglm/internal/config"
	"github.com/zai-org/codinglm/internal/logger"
)

const namespacePrefix = "mcp::"

// QualifiedName builds the registry-visible name for one MCP tool.
func QualifiedName(server, tool string) string {
	return fmt.Sprintf("%s%s::%s", namespacePrefix, server, tool)
}

// SplitQualifiedName reverses QualifiedName, returning ok=false if name
// isn't namespaced (i.e. it's a built-in tool).
func SplitQualifiedName(name string) (server, tool string, ok bool) {
	if !strings.HasPrefix(name, namespacePrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(name, namespacePrefix)
	parts := strings.SplitN(rest, "::", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type serverInstance struct {
	mu      sync.Mutex
	session *sdkmcp.ClientSession
	tools   []*sdkmcp.Tool
	done    chan struct{}
}

// Manager owns lazily-started MCP server sessions, keyed by config name.
type Manager struct {
	mu      sync.RWMutex
	configs map[string]config.MCPServerConfig
	enabled map[string]bool
	servers map[string]*serverInstance
}

func NewManager(configs map[string]config.MCPServerConfig) *Manager {
	enabled := make(map[string]bool, len(configs))
	for name := range configs {
		enabled[name] = true
	}
	return &Manager{
		configs: configs,
		enabled: enabled,
		servers: make(map[string]*serverInstance),
	}
}

// Registered lists every configured server name, sorted for display.
func (m *Manager) Registered() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Enable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[name]; !ok {
		return fmt.Errorf("unknown MCP server: %q", name)
	}
	m.enabled[name] = true
	return nil
}

func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	if _, ok := m.configs[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown MCP server: %q", name)
	}
	m.enabled[name] = false
	inst, ok := m.servers[name]
	delete(m.servers, name)
	m.mu.Unlock()

	if ok {
		inst.mu.Lock()
		if inst.session != nil {
			inst.session.Close()
		}
		inst.mu.Unlock()
	}
	return nil
}

func (m *Manager) isEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled[name]
}

func (m *Manager) ensureRunning(ctx context.Context, name string) (*serverInstance, error) {
	m.mu.RLock()
	cfg, ok := m.configs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown MCP server: %q", name)
	}
	if !m.isEnabled(name) {
		return nil, fmt.Errorf("MCP server %q is disabled", name)
	}

	m.mu.Lock()
	inst, exists := m.servers[name]
	if !exists {
		inst = &serverInstance{}
		m.servers[name] = inst
	}
	m.mu.Unlock()

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.session != nil {
		select {
		case <-inst.done:
			inst.session = nil
			inst.tools = nil
		default:
			return inst, nil
		}
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "codinglm", Version: "0.1.0"}, nil)

	cmd := buildCommand(cfg)
	transport := &sdkmcp.CommandTransport{Command: cmd}

	logger.InfoCF("mcp", "starting server", map[string]any{"server": name, "command": cfg.Command})

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect MCP server %q: %w", name, err)
	}

	inst.session = session
	inst.tools = nil
	inst.done = make(chan struct{})
	go func() {
		session.Wait()
		close(inst.done)
	}()

	return inst, nil
}

// ListTools returns the qualified (mcp::server::tool) definitions for
// every enabled, reachable server. Unreachable servers are skipped with a
// warning rather than failing the whole listing.
func (m *Manager) ListTools(ctx context.Context) map[string]*sdkmcp.Tool {
	out := make(map[string]*sdkmcp.Tool)
	for _, name := range m.Registered() {
		if !m.isEnabled(name) {
			continue
		}
		inst, err := m.ensureRunning(ctx, name)
		if err != nil {
			logger.WarnCF("mcp", "server unavailable", map[string]any{"server": name, "error": err.Error()})
			continue
		}

		inst.mu.Lock()
		if inst.tools == nil {
			result, err := inst.session.ListTools(ctx, nil)
			if err != nil {
				inst.mu.Unlock()
				logger.WarnCF("mcp", "tools/list failed", map[string]any{"server": name, "error": err.Error()})
				continue
			}
			inst.tools = result.Tools
		}
		tools := inst.tools
		inst.mu.Unlock()

		for _, tool := range tools {
			out[QualifiedName(name, tool.Name)] = tool
		}
	}
	return out
}

// CallTool dispatches to the server owning qualifiedName.
func (m *Manager) CallTool(ctx context.Context, qualifiedName string, args map[string]any) (string, bool, error) {
	server, tool, ok := SplitQualifiedName(qualifiedName)
	if !ok {
		return "", false, fmt.Errorf("not an mcp tool: %s", qualifiedName)
	}

	inst, err := m.ensureRunning(ctx, server)
	if err != nil {
		return "", false, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	result, err := inst.session.CallTool(ctx, &sdkmcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return "", false, fmt.Errorf("tools/call %s: %w", qualifiedName, err)
	}

	return extractText(result), result.IsError, nil
}

// Stop closes every running session.
func (m *Manager) Stop() {
	m.mu.Lock()
	servers := m.servers
	m.servers = make(map[string]*serverInstance)
	m.mu.Unlock()

	for _, inst := range servers {
		inst.mu.Lock()
		if inst.session != nil {
			inst.session.Close()
		}
		inst.mu.Unlock()
	}
}

func extractText(result *sdkmcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*sdkmcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
