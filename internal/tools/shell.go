package tools

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	shellDefaultTimeoutMs = 120000
	shellMaxTimeoutMs     = 600000
	shellMaxOutputChars   = 30000
)

// BackgroundJob tracks one detached shell invocation, grounded on
// tools/bash.py::BackgroundJob. The Python original drives it with a
// daemon thread; here a goroutine plays the same role, guarded by a mutex
// since BashOutput/KillShell read it from a different goroutine than the
// one running the command.
type BackgroundJob struct {
	mu      sync.Mutex
	ID      string
	Command string
	Timeout time.Duration

	cmd       *exec.Cmd
	stdout    strings.Builder
	stderr    strings.Builder
	running   bool
	returnErr error
	jobErr    string
}

func (j *BackgroundJob) start() {
	j.mu.Lock()
	j.running = true
	j.mu.Unlock()

	go func() {
		defer func() {
			j.mu.Lock()
			j.running = false
			j.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", j.Command)
		j.mu.Lock()
		j.cmd = cmd
		cmd.Stdout = &j.stdout
		cmd.Stderr = &j.stderr
		j.mu.Unlock()

		err := cmd.Run()
		if ctx.Err() == context.DeadlineExceeded {
			j.mu.Lock()
			j.jobErr = fmt.Sprintf("Command timed out after %dms", j.Timeout.Milliseconds())
			j.mu.Unlock()
			return
		}
		if err != nil {
			j.mu.Lock()
			j.returnErr = err
			j.mu.Unlock()
		}
	}()
}

func (j *BackgroundJob) output(filterRegex string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.stdout.String() + j.stderr.String()
	if filterRegex == "" {
		return out
	}
	re, err := regexp.Compile(filterRegex)
	if err != nil {
		return out
	}
	var kept []string
	for _, line := range strings.Split(out, "\n") {
		if re.MatchString(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func (j *BackgroundJob) isRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *BackgroundJob) kill() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cmd != nil && j.cmd.Process != nil && j.running {
		j.cmd.Process.Kill()
	}
}

// ShellTool executes commands via the system shell, with optional
// background execution. Grounded on tools/bash.py::Bash.
type ShellTool struct {
	mu   sync.Mutex
	jobs map[string]*BackgroundJob
}

func NewShellTool() *ShellTool {
	return &ShellTool{jobs: make(map[string]*BackgroundJob)}
}

func (t *ShellTool) Name() string { return "Bash" }
func (t *ShellTool) Description() string {
	return "Executes bash commands with optional timeout and background execution"
}

func (t *ShellTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command":           map[string]any{"type": "string", "description": "The command to execute"},
				"commands":          map[string]any{"type": []string{"string", "array"}, "description": "Optional alias: string or array of commands joined with newlines"},
				"cmd":               map[string]any{"type": "string", "description": "Optional alias for command"},
				"script":            map[string]any{"type": "string", "description": "Optional alias for command"},
				"shell_command":     map[string]any{"type": "string", "description": "Optional alias for command"},
				"description":       map[string]any{"type": "string", "description": "Clear description of what this command does (5-10 words)"},
				"timeout":           map[string]any{"type": "number", "description": "Optional timeout in milliseconds (max 600000, default 120000)"},
				"run_in_background": map[string]any{"type": "boolean", "description": "Set to true to run command in background"},
			},
			"required": []string{"command"},
		},
	}
}

func resolveCommand(args map[string]any) string {
	if v := stringArg(args, "command"); v != "" {
		return v
	}
	if v := stringArg(args, "cmd"); v != "" {
		return v
	}
	if v := stringArg(args, "shell_command"); v != "" {
		return v
	}
	if v := stringArg(args, "script"); v != "" {
		return v
	}
	switch v := args["commands"].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) *Result {
	command := resolveCommand(args)
	if command == "" {
		return Fail("Missing required parameter 'command'")
	}

	timeoutMs := shellDefaultTimeoutMs
	if v, ok := numberArg(args, "timeout"); ok && v > 0 {
		timeoutMs = v
	}
	if timeoutMs > shellMaxTimeoutMs {
		timeoutMs = shellMaxTimeoutMs
	}

	if boolArg(args, "run_in_background") {
		jobID := uuid.New().String()[:8]
		job := &BackgroundJob{ID: jobID, Command: command, Timeout: time.Duration(timeoutMs) * time.Millisecond}
		t.mu.Lock()
		t.jobs[jobID] = job
		t.mu.Unlock()
		job.start()
		return Ok(fmt.Sprintf("Background job started: %s\nCommand: %s", jobID, command))
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Fail(fmt.Sprintf("Command timed out after %dms", timeoutMs))
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n" + stderr.String()
	}
	if len(output) > shellMaxOutputChars {
		output = output[:shellMaxOutputChars] + "\n... [output truncated]"
	}
	output = strings.TrimSpace(output)
	if output == "" {
		output = "Tool ran without output or errors"
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

func (t *ShellTool) jobOutput(jobID, filter string) *Result {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	t.mu.Unlock()
	if !ok {
		return Fail(fmt.Sprintf("Job not found: %s", jobID))
	}

	out := job.output(filter)
	status := "completed"
	if job.isRunning() {
		status = "running"
	}

	job.mu.Lock()
	jobErr := job.jobErr
	job.mu.Unlock()
	if jobErr != "" {
		return &Result{OK: false, Output: out, Error: fmt.Sprintf("Job %s: %s", status, jobErr)}
	}

	if out == "" {
		return Ok(fmt.Sprintf("Job %s (no output yet)", status))
	}
	return Ok(fmt.Sprintf("Job %s\n%s", status, out))
}

func (t *ShellTool) killJob(jobID string) *Result {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	t.mu.Unlock()
	if !ok {
		return Fail(fmt.Sprintf("Job not found: %s", jobID))
	}
	if job.isRunning() {
		job.kill()
		return Ok(fmt.Sprintf("Job %s killed", jobID))
	}
	return Ok(fmt.Sprintf("Job %s already completed", jobID))
}

// BashOutputTool retrieves output from a background Shell job.
type BashOutputTool struct{ shell *ShellTool }

func NewBashOutputTool(shell *ShellTool) *BashOutputTool { return &BashOutputTool{shell: shell} }

func (t *BashOutputTool) Name() string { return "BashOutput" }
func (t *BashOutputTool) Description() string {
	return "Retrieves output from a running or completed background bash job"
}

func (t *BashOutputTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"bash_id": map[string]any{"type": "string", "description": "The ID of the background job"},
				"job_id":  map[string]any{"type": "string", "description": "Alias for bash_id"},
				"id":      map[string]any{"type": "string", "description": "Alias for bash_id"},
				"filter":  map[string]any{"type": "string", "description": "Optional regex to filter output lines"},
			},
			"required": []string{"bash_id"},
		},
	}
}

func (t *BashOutputTool) Execute(_ context.Context, args map[string]any) *Result {
	jobID := firstNonEmpty(stringArg(args, "bash_id"), stringArg(args, "job_id"), stringArg(args, "id"))
	if jobID == "" {
		return Fail("Missing required parameter 'bash_id'")
	}
	return t.shell.jobOutput(jobID, stringArg(args, "filter"))
}

// KillShellTool terminates a background Shell job.
type KillShellTool struct{ shell *ShellTool }

func NewKillShellTool(shell *ShellTool) *KillShellTool { return &KillShellTool{shell: shell} }

func (t *KillShellTool) Name() string        { return "KillShell" }
func (t *KillShellTool) Description() string { return "Kills a running background bash job by its ID" }

func (t *KillShellTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"shell_id": map[string]any{"type": "string", "description": "The ID of the background job to kill"},
				"bash_id":  map[string]any{"type": "string", "description": "Alias for shell_id"},
				"job_id":   map[string]any{"type": "string", "description": "Alias for shell_id"},
				"id":       map[string]any{"type": "string", "description": "Alias for shell_id"},
			},
			"required": []string{"shell_id"},
		},
	}
}

func (t *KillShellTool) Execute(_ context.Context, args map[string]any) *Result {
	jobID := firstNonEmpty(stringArg(args, "shell_id"), stringArg(args, "bash_id"), stringArg(args, "job_id"), stringArg(args, "id"))
	if jobID == "" {
		return Fail("Missing required parameter 'shell_id'")
	}
	return t.shell.killJob(jobID)
}
