// Command codinglm is the terminal REPL entry point: it wires together
// config loading, the Anthropic-protocol client, the tool registry, the
// MCP plugin manager, the context compressor and the turn controller
// behind a cobra root command and a chzyer/readline prompt loop.
//
// Grounded on cli.py/cli_app.py::CodinGLMCLI; picoclaw's
// cmd/picoclaw/internal/*/command.go packages contribute the
// one-command-per-package cobra idiom, generalized here to a single root
// command since codinglm has no subcommand surface of its own — only
// slash commands inside the REPL.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
