package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTool writes a file, creating parent directories, grounded on
// tools/file_ops.py::Write. Uses an atomic temp-file-then-rename sequence
// for durability, the way picoclaw's HostFs.WriteFile does.
type WriteTool struct{}

func NewWriteTool() *WriteTool { return &WriteTool{} }

func (t *WriteTool) Name() string { return "Write" }
func (t *WriteTool) Description() string {
	return "Writes a file to the local filesystem, creating parent directories if needed"
}

func (t *WriteTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string", "description": "Absolute or project-relative path to the file to write"},
				"file_path": map[string]any{"type": "string", "description": "(Legacy) Alias for path"},
				"content":   map[string]any{"type": "string", "description": "The content to write to the file"},
				"contents":  map[string]any{"type": "string", "description": "(Legacy) Alias for content"},
			},
			"required": []string{"path", "content"},
		},
	}
}

func (t *WriteTool) Execute(_ context.Context, args map[string]any) *Result {
	target := firstNonEmpty(stringArg(args, "path"), stringArg(args, "file_path"))
	if target == "" {
		return Fail("Missing required parameter 'path'")
	}

	content, hasContent := args["content"]
	if !hasContent || content == nil {
		content, hasContent = args["contents"]
	}
	if !hasContent || content == nil {
		return Fail("Missing required parameter 'content'")
	}
	data, _ := content.(string)

	target = expandUser(target)
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Fail(err.Error())
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return Fail(err.Error())
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return Fail(err.Error())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return Fail(err.Error())
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return Fail(err.Error())
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return Fail(err.Error())
	}

	return Ok(fmt.Sprintf("File written successfully: %s", target))
}
