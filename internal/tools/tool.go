// Package tools defines the tool contract and the registry that dispatches
// named, JSON-argument calls to registered tools, plus the built-in tools
// implementing it.
//
// The Tool/ToolResult shapes are not present verbatim in picoclaw's
// retrieved source (only call sites and a re-export file survived there);
// they are reconstructed from those call sites together with the original
// Python's Tool/ToolResult ABC in tools/base.py, which this package mirrors
// closely.
package tools

import "context"

// Result is the outcome of one tool invocation. Output is shown to the
// model and (truncated) to the terminal; Error, when set, is surfaced to
// the model as the failure reason instead of Output.
type Result struct {
	OK     bool
	Output string
	Error  string
}

func Ok(output string) *Result  { return &Result{OK: true, Output: output} }
func Fail(err string) *Result   { return &Result{OK: false, Error: err} }

// Tool is a single named capability exposed to the model. Schema returns a
// map holding the tool's name, description and a JSON Schema object for its
// parameters;
// Execute receives already-decoded arguments as a generic map, since each
// tool resolves its own parameter aliases internally (spec's tool contract
// explicitly pushes alias normalisation down into each tool rather than the
// registry).
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}
