package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// GlobTool finds files matching a glob pattern, sorted by modification
// time descending, grounded on tools/file_ops.py::Glob.
type GlobTool struct{}

func NewGlobTool() *GlobTool { return &GlobTool{} }

func (t *GlobTool) Name() string { return "Glob" }
func (t *GlobTool) Description() string {
	return "Fast file pattern matching tool that finds files by glob patterns"
}

func (t *GlobTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern":   map[string]any{"type": "string", "description": "The glob pattern to match files against (e.g., '**/*.go')"},
				"patterns":  map[string]any{"type": "string", "description": "Optional alias for pattern"},
				"glob":      map[string]any{"type": "string", "description": "Optional alias for pattern"},
				"path":      map[string]any{"type": "string", "description": "The directory to search in (defaults to current directory)"},
				"directory": map[string]any{"type": "string", "description": "Optional alias for path"},
				"recursive": map[string]any{"type": "boolean", "description": "Set to true to search recursively"},
			},
			"required": []string{"pattern"},
		},
	}
}

func (t *GlobTool) Execute(_ context.Context, args map[string]any) *Result {
	pattern := firstNonEmpty(stringArg(args, "pattern"), stringArg(args, "glob"), stringArg(args, "patterns"))
	if pattern == "" {
		return Fail("Missing required parameter 'pattern'")
	}

	searchRoot := firstNonEmpty(stringArg(args, "directory"), stringArg(args, "path"))
	if searchRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Fail(err.Error())
		}
		searchRoot = wd
	}
	searchRoot = expandUser(searchRoot)

	if _, err := os.Stat(searchRoot); os.IsNotExist(err) {
		return Fail(fmt.Sprintf("Directory not found: %s", searchRoot))
	}

	_, recursiveSet := args["recursive"]
	recursive := recursiveSet && boolArg(args, "recursive")

	var matches []string
	if recursive || strings.Contains(pattern, "**") {
		cleanPattern := strings.ReplaceAll(pattern, "**/", "")
		err := filepath.WalkDir(searchRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match(cleanPattern, d.Name()); ok {
				matches = append(matches, path)
			}
			return nil
		})
		if err != nil {
			return Fail(err.Error())
		}
	} else {
		found, err := filepath.Glob(filepath.Join(searchRoot, pattern))
		if err != nil {
			return Fail(err.Error())
		}
		matches = found
	}

	sort.Slice(matches, func(i, j int) bool {
		ii, _ := os.Stat(matches[i])
		jj, _ := os.Stat(matches[j])
		if ii == nil || jj == nil {
			return false
		}
		return ii.ModTime().After(jj.ModTime())
	})

	if len(matches) == 0 {
		return Ok("No files found")
	}
	return Ok(strings.Join(matches, "\n"))
}
