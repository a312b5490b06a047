package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
	fn   func(args map[string]any) *Result
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() map[string]any {
	return map[string]any{"name": s.name, "description": "stub", "parameters": map[string]any{"type": "object"}}
}
func (s *stubTool) Execute(_ context.Context, args map[string]any) *Result { return s.fn(args) }

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(context.Background(), "Nope", "{}")
	require.False(t, result.OK)
	assert.Equal(t, "Tool 'Nope' not found", result.Error)
}

func TestRegistry_ExecuteMalformedArguments(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "Echo", fn: func(args map[string]any) *Result { return Ok("") }})

	result := r.Execute(context.Background(), "Echo", "{not json")
	require.False(t, result.OK)
	assert.Contains(t, result.Error, "Invalid JSON arguments")
}

func TestRegistry_ExecuteEmptyArgumentsIsEmptyObject(t *testing.T) {
	r := NewRegistry()
	var seen map[string]any
	r.Register(&stubTool{name: "Echo", fn: func(args map[string]any) *Result {
		seen = args
		return Ok("done")
	}})

	result := r.Execute(context.Background(), "Echo", "")
	require.True(t, result.OK)
	assert.Equal(t, "done", result.Output)
	assert.Equal(t, map[string]any{}, seen)
}

func TestRegistry_NamesAreSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "Zeta"})
	r.Register(&stubTool{name: "Alpha"})
	r.Register(&stubTool{name: "Mid"})

	assert.Equal(t, []string{"Alpha", "Mid", "Zeta"}, r.Names())
}

func TestRegistry_DefinitionsCarrySchema(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "Solo", fn: func(map[string]any) *Result { return Ok("") }})

	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "Solo", defs[0].Name)
	assert.Equal(t, "stub", defs[0].Description)
	assert.NotEmpty(t, defs[0].InputSchema)
}
