package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

const maxReadLineChars = 2000

// ReadTool reads a file with cat -n style line numbers, grounded on
// tools/file_ops.py::Read (1-indexed offset, per-line truncation marker).
type ReadTool struct{}

func NewReadTool() *ReadTool { return &ReadTool{} }

func (t *ReadTool) Name() string        { return "Read" }
func (t *ReadTool) Description() string { return "Reads a file from the local filesystem with optional line offset and limit" }

func (t *ReadTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string", "description": "Absolute or project-relative path to the file to read"},
				"file_path": map[string]any{"type": "string", "description": "(Legacy) Alias for path"},
				"offset":    map[string]any{"type": "number", "description": "The line number to start reading from (1-indexed)"},
				"limit":     map[string]any{"type": "number", "description": "The number of lines to read"},
			},
			"required": []string{"path"},
		},
	}
}

func (t *ReadTool) Execute(_ context.Context, args map[string]any) *Result {
	target := firstNonEmpty(stringArg(args, "path"), stringArg(args, "file_path"))
	if target == "" {
		return Fail("Missing required parameter 'path'")
	}
	target = expandUser(target)

	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return Fail(fmt.Sprintf("File not found: %s", target))
	}
	if err != nil {
		return Fail(err.Error())
	}
	if info.IsDir() {
		return Fail(fmt.Sprintf("Path is a directory: %s", target))
	}

	f, err := os.Open(target)
	if err != nil {
		return Fail(err.Error())
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Fail(err.Error())
	}

	offset, hasOffset := numberArg(args, "offset")
	limit, hasLimit := numberArg(args, "limit")

	start := 0
	if hasOffset && offset > 1 {
		start = offset - 1
	}
	if start > len(lines) {
		start = len(lines)
	}
	lines = lines[start:]
	if hasLimit && limit >= 0 && limit < len(lines) {
		lines = lines[:limit]
	}

	startLine := start + 1

	var out strings.Builder
	for i, line := range lines {
		if len(line) > maxReadLineChars {
			line = line[:maxReadLineChars] + "... [truncated]"
		}
		if i > 0 {
			out.WriteByte('\n')
		}
		fmt.Fprintf(&out, "%6d\t%s", startLine+i, line)
	}

	return Ok(out.String())
}
