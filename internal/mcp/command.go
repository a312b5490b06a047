package mcp

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/zai-org/codinglm/internal/config"
)

// buildCommand assembles the subprocess that backs a stdio MCP server,
// merging cfg.Env over the parent process's environment.
func buildCommand(cfg config.MCPServerConfig) *exec.Cmd {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return cmd
}
