package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// VCSTool runs `git <command>` as a subprocess, grounded on tools/git.py::Git.
type VCSTool struct{}

func NewVCSTool() *VCSTool { return &VCSTool{} }

func (t *VCSTool) Name() string        { return "Git" }
func (t *VCSTool) Description() string { return "Execute git commands for version control operations" }

func (t *VCSTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command":     map[string]any{"type": "string", "description": "Git command to execute (without the 'git' prefix)"},
				"description": map[string]any{"type": "string", "description": "Description of what the command does"},
			},
			"required": []string{"command"},
		},
	}
}

func (t *VCSTool) Execute(ctx context.Context, args map[string]any) *Result {
	command := stringArg(args, "command")
	if command == "" {
		return Fail("Missing required parameter 'command'")
	}

	runCtx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", "git "+command)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Fail("Git command timed out")
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n" + stderr.String()
	}
	output = strings.TrimSpace(output)
	if output == "" {
		output = "Command completed"
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return Fail(err.Error())
	}

	if exitCode != 0 {
		return &Result{OK: false, Output: output, Error: fmt.Sprintf("Exit code: %d", exitCode)}
	}
	return Ok(output)
}
