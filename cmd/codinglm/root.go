package main

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the single root command. There is no subcommand
// surface; flags select config discovery, model override, debug logging
// and the streaming/non-streaming call path — the slash commands
// themselves live inside the REPL.
func NewRootCommand() *cobra.Command {
	var configPath string
	var modelOverride string
	var debug bool
	var noStream bool

	cmd := &cobra.Command{
		Use:   "codinglm",
		Short: "Interactive terminal coding assistant backed by GLM-4",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(replOptions{
				configPath:    configPath,
				modelOverride: modelOverride,
				debug:         debug,
				stream:        !noStream,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to .codinglm.json (default: ./.codinglm.json then ~/.codinglm.json)")
	cmd.Flags().StringVar(&modelOverride, "model", "", "Override the configured model id")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable transcript/debug-event logging under ~/.codinglm/logs")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Use non-streaming completions instead of SSE streaming")

	return cmd
}
