package tools

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// GrepTool shells out to ripgrep, grounded on tools/file_ops.py::Grep: exit
// code 0 is hits, 1 is "no matches" (still a success Result), anything else
// is a failure carrying stderr.
type GrepTool struct{}

func NewGrepTool() *GrepTool { return &GrepTool{} }

func (t *GrepTool) Name() string        { return "Grep" }
func (t *GrepTool) Description() string { return "Search for text patterns in files using ripgrep" }

func (t *GrepTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"pattern":          map[string]any{"type": "string", "description": "The regular expression pattern to search for"},
				"path":             map[string]any{"type": "string", "description": "File or directory to search in (defaults to current directory)"},
				"glob":             map[string]any{"type": "string", "description": "Glob pattern to filter files (e.g. '*.go')"},
				"output_mode":      map[string]any{"type": "string", "enum": []string{"files_with_matches", "content", "count"}, "description": "Output mode: files_with_matches (default), content, or count"},
				"case_insensitive": map[string]any{"type": "boolean", "description": "Case insensitive search"},
				"context_lines":    map[string]any{"type": "number", "description": "Number of context lines to show"},
			},
			"required": []string{"pattern"},
		},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) *Result {
	pattern := stringArg(args, "pattern")
	if pattern == "" {
		return Fail("Missing required parameter 'pattern'")
	}

	outputMode := firstNonEmpty(stringArg(args, "output_mode"), "files_with_matches")

	cmdArgs := []string{}
	if boolArg(args, "case_insensitive") {
		cmdArgs = append(cmdArgs, "-i")
	}
	switch outputMode {
	case "files_with_matches":
		cmdArgs = append(cmdArgs, "-l")
	case "count":
		cmdArgs = append(cmdArgs, "-c")
	case "content":
		cmdArgs = append(cmdArgs, "-n")
	}
	if contextLines, ok := numberArg(args, "context_lines"); ok && contextLines > 0 {
		cmdArgs = append(cmdArgs, "-C", strconv.Itoa(contextLines))
	}
	if glob := stringArg(args, "glob"); glob != "" {
		cmdArgs = append(cmdArgs, "--glob", glob)
	}
	cmdArgs = append(cmdArgs, pattern)
	if path := stringArg(args, "path"); path != "" {
		cmdArgs = append(cmdArgs, expandUser(path))
	}

	runCtx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "rg", cmdArgs...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		out := strings.TrimSpace(stdout.String())
		if out == "" {
			out = "No matches found"
		}
		return Ok(out)
	case errors.As(err, &exitErr):
		switch exitErr.ExitCode() {
		case 1:
			return Ok("No matches found")
		default:
			return Fail(strings.TrimSpace(stderr.String()))
		}
	case errors.Is(err, exec.ErrNotFound):
		return Fail("ripgrep (rg) not found. Install with: brew install ripgrep")
	default:
		return Fail(err.Error())
	}
}
