package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EditTool performs an exact-string replacement in a file, grounded on
// tools/file_ops.py::Edit.
type EditTool struct{}

func NewEditTool() *EditTool { return &EditTool{} }

func (t *EditTool) Name() string        { return "Edit" }
func (t *EditTool) Description() string { return "Performs exact string replacements in files" }

func (t *EditTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string", "description": "Absolute or project-relative path to the file to modify"},
				"file_path":   map[string]any{"type": "string", "description": "(Legacy) Alias for path"},
				"old_string":  map[string]any{"type": "string", "description": "The text to replace"},
				"match":       map[string]any{"type": "string", "description": "(Legacy) Alias for old_string"},
				"new_string":  map[string]any{"type": "string", "description": "The text to replace it with"},
				"replacement": map[string]any{"type": "string", "description": "(Legacy) Alias for new_string"},
				"replace_all": map[string]any{"type": "boolean", "description": "Replace all occurrences (default false)", "default": false},
			},
			"required": []string{"path", "old_string", "new_string"},
		},
	}
}

func stringOrNil(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

func (t *EditTool) Execute(_ context.Context, args map[string]any) *Result {
	target := firstNonEmpty(stringArg(args, "path"), stringArg(args, "file_path"))
	if target == "" {
		return Fail("Missing required parameter 'path'")
	}

	oldStr, haveOld := stringOrNil(args, "old_string")
	if !haveOld {
		oldStr, haveOld = stringOrNil(args, "match")
	}
	if !haveOld {
		return Fail("Missing required parameter 'old_string'")
	}

	newStr, haveNew := stringOrNil(args, "new_string")
	if !haveNew {
		newStr, haveNew = stringOrNil(args, "replacement")
	}
	if !haveNew {
		return Fail("Missing required parameter 'new_string'")
	}

	replaceAll := boolArg(args, "replace_all")

	target = expandUser(target)
	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return Fail(fmt.Sprintf("File not found: %s", target))
	}
	if err != nil {
		return Fail(err.Error())
	}
	content := string(data)

	count := strings.Count(content, oldStr)
	if count == 0 {
		preview := oldStr
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return Fail(fmt.Sprintf("String not found in file: %s...", preview))
	}
	if !replaceAll && count > 1 {
		return Fail(fmt.Sprintf("String appears %d times. Use replace_all=true or provide more context.", count))
	}

	var newContent string
	replaced := 1
	if replaceAll {
		newContent = strings.ReplaceAll(content, oldStr, newStr)
		replaced = count
	} else {
		newContent = strings.Replace(content, oldStr, newStr, 1)
	}

	if err := os.WriteFile(target, []byte(newContent), 0o644); err != nil {
		return Fail(err.Error())
	}

	return Ok(fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, target))
}
