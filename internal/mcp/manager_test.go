package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zai-org/codinglm/internal/config"
)

func TestQualifiedName_RoundTrip(t *testing.T) {
	name := QualifiedName("srv", "x")
	assert.Equal(t, "mcp::srv::x", name)

	server, tool, ok := SplitQualifiedName(name)
	require.True(t, ok)
	assert.Equal(t, "srv", server)
	assert.Equal(t, "x", tool)
}

func TestSplitQualifiedName_RejectsBuiltinNames(t *testing.T) {
	_, _, ok := SplitQualifiedName("Bash")
	assert.False(t, ok)
}

func TestSplitQualifiedName_RejectsMalformedNamespace(t *testing.T) {
	_, _, ok := SplitQualifiedName("mcp::onlyserver")
	assert.False(t, ok)
}

func TestManager_RegisteredListsConfiguredServers(t *testing.T) {
	m := NewManager(map[string]config.MCPServerConfig{
		"srv": {Command: "true"},
	})
	assert.Equal(t, []string{"srv"}, m.Registered())
}

func TestManager_EnableDisableUnknownServerErrors(t *testing.T) {
	m := NewManager(map[string]config.MCPServerConfig{"srv": {Command: "true"}})

	assert.NoError(t, m.Enable("srv"))
	assert.True(t, m.isEnabled("srv"))

	assert.NoError(t, m.Disable("srv"))
	assert.False(t, m.isEnabled("srv"))

	assert.Error(t, m.Enable("ghost"))
	assert.Error(t, m.Disable("ghost"))
}

func TestManager_ListToolsSkipsDisabledServers(t *testing.T) {
	m := NewManager(map[string]config.MCPServerConfig{"srv": {Command: "true"}})
	require.NoError(t, m.Disable("srv"))

	tools := m.ListTools(context.Background())
	assert.Empty(t, tools)
}

func TestManager_CallToolRejectsUnqualifiedName(t *testing.T) {
	m := NewManager(map[string]config.MCPServerConfig{})
	_, _, err := m.CallTool(context.Background(), "Bash", nil)
	assert.Error(t, err)
}
