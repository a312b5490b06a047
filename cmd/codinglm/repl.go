package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/zai-org/codinglm/internal/compress"
	"github.com/zai-org/codinglm/internal/config"
	"github.com/zai-org/codinglm/internal/interrupt"
	mcpmgr "github.com/zai-org/codinglm/internal/mcp"
	"github.com/zai-org/codinglm/internal/providers/anthropic"
	"github.com/zai-org/codinglm/internal/session"
	"github.com/zai-org/codinglm/internal/tokencount"
	"github.com/zai-org/codinglm/internal/tools"
	"github.com/zai-org/codinglm/internal/turn"
)

// commandDescriptions mirrors COMMAND_DESCRIPTIONS from cli_app.py, used
// for /help output.
var commandDescriptions = map[string]string{
	"/help":        "Show help",
	"/clear":       "Clear conversation history",
	"/compact":     "Manually trigger context compression",
	"/metrics":     "Display compression metrics",
	"/mcp":         "Manage MCP servers",
	"/permissions": "Show tool permissions",
	"/model":       "Switch model",
	"/models":      "List available models",
	"/tools":       "Show tool reference",
	"/toolout":     "Show full output of the last tool call",
	"/exit":        "Exit codinglm",
	"/quit":        "Exit codinglm",
}

var availableModels = map[string]string{
	"glm-4.6":      "Flagship GLM Coding Plan model (recommended)",
	"glm-4.5-air":  "Fast, cost-effective coding model",
	"glm-4-flash":  "Ultra-fast responses for quick tasks",
}

type replOptions struct {
	configPath    string
	modelOverride string
	debug         bool
	stream        bool
}

// app bundles everything the REPL loop needs across one process lifetime.
type app struct {
	opts       replOptions
	cfg        config.Config
	client     *anthropic.Client
	registry   *tools.Registry
	mcpManager *mcpmgr.Manager
	compressor *compress.Compressor
	controller *turn.Controller
	sink       *terminalSink
	transcript *session.Transcript
	debugLog   *session.DebugEventLogger
	sessionID  string
}

func runREPL(opts replOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if opts.modelOverride != "" {
		cfg.Model = opts.modelOverride
	}

	apiKey, err := cfg.APIKeyOrErr()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	a := &app{opts: opts, cfg: cfg, sessionID: session.Stamp(time.Now())}

	if opts.debug {
		logsDir, err := session.LogsDir()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		transcriptPath := filepath.Join(logsDir, fmt.Sprintf("session-%s.log", a.sessionID))
		debugPath := filepath.Join(logsDir, fmt.Sprintf("session-%s.jsonl", a.sessionID))

		a.transcript, err = session.NewTranscript(transcriptPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		a.debugLog, err = session.NewDebugEventLogger(debugPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		a.transcript.WriteLine(fmt.Sprintf("Debug transcript active -> %s", transcriptPath))
		a.transcript.WriteLine(fmt.Sprintf("Structured debug events -> %s", debugPath))
		a.emitDebugEvent("session_start", "codinglm session started", map[string]any{"session_id": a.sessionID})
	}
	defer a.shutdown()

	a.client = anthropic.NewClient(apiKey,
		anthropic.WithModel(cfg.Model),
		anthropic.WithTemperature(cfg.Temperature),
		anthropic.WithMaxTokens(cfg.MaxTokens),
		anthropic.WithBaseURL(cfg.APIBase),
		anthropic.WithTimeoutMs(cfg.APITimeoutMs),
	)

	a.registry = tools.DefaultRegistry(a.client)
	a.mcpManager = mcpmgr.NewManager(cfg.MCPServers)
	a.compressor = compress.New(a.client, cfg.Context.Compression)
	a.sink = newTerminalSink(a.transcript)

	var dbg turn.DebugSink
	if a.debugLog != nil {
		dbg = &debugSink{logger: a.debugLog}
	}
	a.controller = turn.New(a.client, a.registry, a.mcpManager, a.compressor, cfg.Tools, opts.debug, dbg)

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".codinglm-history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\n> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	defer rl.Close()

	a.printWelcome()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("Use /exit to quit")
			a.emitDebugEvent("keyboard_interrupt", "KeyboardInterrupt received", nil)
			continue
		}
		if err == io.EOF {
			a.emitDebugEvent("eof", "EOF received", nil)
			break
		}
		if err != nil {
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		a.emitDebugEvent("user_input", "User submitted input", map[string]any{"content": line})

		if strings.HasPrefix(line, "/") {
			if a.handleCommand(line) {
				break
			}
			continue
		}

		a.runTurn(line)
	}

	a.printGoodbye()
	return nil
}

func (a *app) emitDebugEvent(event, message string, extra map[string]any) {
	if a.debugLog == nil {
		return
	}
	payload := map[string]any{"session_id": a.sessionID}
	for k, v := range extra {
		payload[k] = v
	}
	a.debugLog.Emit(event, message, payload)
}

func (a *app) shutdown() {
	a.emitDebugEvent("session_end", "codinglm session shutting down", nil)
	a.mcpManager.Stop()
	a.transcript.Close()
	a.debugLog.Close()
}

func (a *app) printWelcome() {
	fmt.Printf("codinglm — %s\nType /help for commands.\n", a.cfg.Model)
}

func (a *app) printGoodbye() {
	fmt.Println("\nGoodbye.")
}

func (a *app) runTurn(userInput string) {
	a.controller.AddUserMessage(userInput)
	a.emitDebugEvent("conversation_turn", "Conversation turn started", map[string]any{"message_count": len(a.controller.Messages)})

	interruptSrc := interrupt.New()
	interruptSrc.Start()

	ctx := context.Background()
	_, err := a.controller.RunTurn(ctx, a.opts.stream, interruptSrc.ShouldStop, a.sink)

	if interruptSrc.Stop() {
		fmt.Println("\nResponse interrupted (Esc)")
		a.emitDebugEvent("stream_interrupt", "User interrupted streaming output", nil)
	} else {
		a.emitDebugEvent("conversation_turn_complete", "Conversation turn completed", map[string]any{"message_count": len(a.controller.Messages)})
	}

	if err != nil {
		fmt.Printf("Error: %s\n", err)
	}
}

// handleCommand dispatches a leading-slash line. Returns true when the
// REPL should exit.
func (a *app) handleCommand(line string) bool {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToLower(parts[0])
	args := ""
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}

	a.emitDebugEvent("slash_command", "Slash command invoked", map[string]any{"command": cmd, "args": args})

	switch cmd {
	case "/exit", "/quit":
		return true
	case "/clear":
		a.controller.ClearHistory()
		fmt.Println("Conversation cleared.")
	case "/compact":
		a.handleCompact()
	case "/metrics":
		a.handleMetrics()
	case "/help":
		a.printHelp()
	case "/permissions":
		a.printPermissions()
	case "/models":
		a.printModels()
	case "/model":
		a.handleModel(args)
	case "/tools":
		a.printTools()
	case "/toolout":
		a.printToolOutput(args)
	case "/mcp":
		a.handleMCP(args)
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		fmt.Println("Type /help for available commands")
	}
	return false
}

func (a *app) handleCompact() {
	tokensBefore := tokencount.EstimateMessages(a.controller.Messages)
	messagesBefore := len(a.controller.Messages)

	a.compressor.MaybeCompress(&a.controller.Messages, "manual")

	tokensAfter := tokencount.EstimateMessages(a.controller.Messages)
	messagesAfter := len(a.controller.Messages)

	if messagesBefore == messagesAfter {
		fmt.Printf("No compression performed\nCurrent: %d tokens, %d messages\n", tokensAfter, messagesAfter)
		return
	}

	messagesRemoved := messagesBefore - messagesAfter
	tokensSaved := tokensBefore - tokensAfter
	pct := 0.0
	if tokensBefore > 0 {
		pct = float64(tokensSaved) / float64(tokensBefore) * 100
	}
	fmt.Printf("Context compressed\nRemoved: %d messages\nTokens: %d -> %d (saved %d, %.1f%%)\n",
		messagesRemoved, tokensBefore, tokensAfter, tokensSaved, pct)

	a.emitDebugEvent("compression_manual", "Manual compression executed", map[string]any{
		"tokens_before": tokensBefore, "tokens_after": tokensAfter,
		"messages_before": messagesBefore, "messages_after": messagesAfter,
	})
}

func (a *app) handleMetrics() {
	m := a.compressor.Metrics
	fmt.Println("\nCompression Metrics")
	fmt.Printf("Compressions: %d | Messages compressed: %d\n", m.TotalCompressions, m.TotalMessagesCompressed)
	fmt.Printf("Tokens saved: %d (%.1f%%) | API calls: %d | Fallbacks: %d\n\n",
		m.TokensSaved(), m.CompressionRatio()*100, m.APICallsSuccessful, m.FallbackSummariesUsed)
}

func (a *app) printHelp() {
	names := make([]string, 0, len(commandDescriptions))
	for name := range commandDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nAvailable commands:")
	for _, name := range names {
		fmt.Printf("  %-14s %s\n", name, commandDescriptions[name])
	}
}

func (a *app) printPermissions() {
	fmt.Println("\nAll built-in tools run without a sandboxing boundary; every registered tool is allowed.")
	for _, name := range a.registry.Names() {
		fmt.Printf("  %s: allowed\n", name)
	}
}

func (a *app) printModels() {
	names := make([]string, 0, len(availableModels))
	for name := range availableModels {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nAvailable models:")
	for _, name := range names {
		marker := "  "
		if name == a.cfg.Model {
			marker = "* "
		}
		fmt.Printf("%s%-14s %s\n", marker, name, availableModels[name])
	}
}

func (a *app) handleModel(args string) {
	if args == "" {
		fmt.Printf("Current model: %s\n", a.client.Model())
		return
	}
	prev := a.client.SetModel(args)
	a.cfg.Model = args
	fmt.Printf("Model changed: %s -> %s\n", prev, args)
}

func (a *app) printTools() {
	fmt.Println("\nTool reference:")
	for _, name := range a.registry.Names() {
		t, _ := a.registry.Get(name)
		fmt.Printf("  %s: %s\n", name, t.Description())
	}
}

func (a *app) printToolOutput(args string) {
	idx := a.controller.ToolHistory.Len()
	if args != "" {
		parsed, err := strconv.Atoi(args)
		if err != nil {
			fmt.Printf("Invalid index: %s\n", args)
			return
		}
		idx = parsed
	}
	entry, ok := a.controller.ToolHistory.Get(idx)
	if !ok {
		fmt.Printf("No tool output at index %d\n", idx)
		return
	}
	status := "ok"
	if !entry.OK {
		status = "error"
	}
	fmt.Printf("\n[%d] %s (%s, call_id=%s)\n%s\n", idx, entry.Name, status, entry.CallID, entry.Output)
}

func (a *app) handleMCP(args string) {
	parts := strings.SplitN(args, " ", 2)
	if args == "" || parts[0] == "" {
		fmt.Println("Usage: /mcp <list|enable|disable|status> [server-name]")
		return
	}
	subcmd := strings.ToLower(parts[0])
	serverName := ""
	if len(parts) > 1 {
		serverName = strings.TrimSpace(parts[1])
	}

	switch subcmd {
	case "list", "status":
		servers := a.mcpManager.Registered()
		if len(servers) == 0 {
			fmt.Println("No MCP servers configured.")
			return
		}
		sort.Strings(servers)
		for _, name := range servers {
			fmt.Printf("  %s\n", name)
		}
	case "enable":
		if serverName == "" {
			fmt.Println("Usage: /mcp enable <server-name>")
			return
		}
		if err := a.mcpManager.Enable(serverName); err != nil {
			fmt.Printf("Failed to enable %s: %s\n", serverName, err)
			return
		}
		fmt.Printf("Enabled %s\n", serverName)
	case "disable":
		if serverName == "" {
			fmt.Println("Usage: /mcp disable <server-name>")
			return
		}
		if err := a.mcpManager.Disable(serverName); err != nil {
			fmt.Printf("Failed to disable %s: %s\n", serverName, err)
			return
		}
		fmt.Printf("Disabled %s\n", serverName)
	default:
		fmt.Printf("Unknown MCP command: %s\n", subcmd)
		fmt.Println("Available commands: list, enable, disable, status")
	}
}
