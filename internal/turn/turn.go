// Package turn implements the conversation turn controller: the loop that
// sends the running message history to the LLM, dispatches any tool calls
// it asks for, feeds results back, and repeats until the model produces a
// final text answer, an iteration bound is hit, or the user interrupts.
//
// Grounded on conversation/manager.py::ConversationManager; picoclaw's
// pkg/tools/toolloop.go contributes the general streaming-loop/iteration-
// bound shape, but its token-budget truncation recovery targets a
// different client contract, so the interrupt-preference and tool-result
// bookkeeping below follow the Python original instead.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/zai-org/codinglm/internal/compress"
	"github.com/zai-org/codinglm/internal/config"
	"github.com/zai-org/codinglm/internal/logger"
	mcpmgr "github.com/zai-org/codinglm/internal/mcp"
	"github.com/zai-org/codinglm/internal/providers"
	"github.com/zai-org/codinglm/internal/providers/anthropic"
	"github.com/zai-org/codinglm/internal/tools"
)

// DisplayTruncateLength bounds how much of a tool's output is shown
// inline before the rest is only reachable via the /toolout history.
const DisplayTruncateLength = compress.DisplayTruncateLength

// Client is the LLM capability the controller needs: one-shot and
// streaming completion. *anthropic.Client satisfies this.
type Client interface {
	Complete(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition) (providers.Response, error)
	Stream(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition) (*anthropic.Decoder, io.Closer, error)
}

// Sink receives the controller's user-visible output and progress
// notifications, decoupling this package from any particular terminal
// renderer.
type Sink interface {
	StreamDelta(text string)
	AssistantMessage(text string)
	ToolStart(name string)
	ToolSuccess(name, output string, truncated bool, historyIndex int)
	ToolError(name, errMsg string)
	Warn(text string)
}

// DebugSink receives structured debug events; nil when debug mode is off.
type DebugSink interface {
	Emit(event, message string, fields map[string]any)
}

// Controller owns one conversation's message history and drives turns
// against the client, dispatching tool calls through registry and mcp.
type Controller struct {
	client            Client
	registry          *tools.Registry
	mcpManager        *mcpmgr.Manager
	compressor        *compress.Compressor
	maxToolIterations int // 0 means unlimited
	debug             bool
	debugSink         DebugSink

	Messages    []providers.Message
	ToolHistory *ToolHistory
}

func New(client Client, registry *tools.Registry, mcpManager *mcpmgr.Manager, compressor *compress.Compressor, toolsCfg config.ToolsConfig, debug bool, debugSink DebugSink) *Controller {
	c := &Controller{
		client:            client,
		registry:          registry,
		mcpManager:        mcpManager,
		compressor:        compressor,
		maxToolIterations: toolsCfg.MaxToolIterations,
		debug:             debug,
		debugSink:         debugSink,
		ToolHistory:       NewToolHistory(),
	}
	c.initializeSystemMessage()
	return c
}

func (c *Controller) debugf(message string, fields map[string]any) {
	if c.debug {
		logger.Debug(message)
	}
	c.emitDebugEvent("conversation_debug", message, fields)
}

func (c *Controller) emitDebugEvent(event, message string, fields map[string]any) {
	if c.debugSink == nil {
		return
	}
	payload := map[string]any{"message_count": len(c.Messages)}
	for k, v := range fields {
		payload[k] = v
	}
	c.debugSink.Emit(event, message, payload)
}

// initializeSystemMessage seeds Messages with the persona, a tool
// reference primer and, if enabled, an explanation of context
// compression — reproduced from _initialize_system_message.
func (c *Controller) initializeSystemMessage() {
	basePrompt := "You are CodinGLM, a helpful AI coding assistant powered by GLM-4.\n\n" +
		"You have access to Claude Code compatible tools. When you need to inspect files, run commands, or manage tasks, call the appropriate tool with the required parameters."

	parts := []string{basePrompt}

	if primer := c.buildToolPrimer(); primer != "" {
		parts = append(parts, primer)
	}

	if c.compressor != nil {
		parts = append(parts, c.contextInfo())
	}

	guidelines := "Always:\n" +
		"1. Prefer tool calls over hallucinating results.\n" +
		"2. Provide clear descriptions before destructive commands.\n" +
		"3. Verify changes by reading relevant files or running tests.\n" +
		"4. Keep explanations concise and actionable.\n" +
		"5. When you see context compression summaries, treat them as authoritative history and avoid asking users to repeat that information."
	parts = append(parts, guidelines)

	c.Messages = append(c.Messages, providers.Message{Role: providers.RoleSystem, Content: strings.Join(parts, "\n\n")})
}

func (c *Controller) contextInfo() string {
	return "## Context Management\n\n" +
		"This conversation has automatic context compression enabled to manage token limits.\n\n" +
		"When the conversation exceeds the maximum, older messages are automatically summarized and replaced with a compression summary. You'll see these as assistant messages with metadata like \"[context compression #N | ...]\".\n\n" +
		"When you encounter a compression summary:\n" +
		"- Trust the summary content as accurate history\n" +
		"- Do NOT ask the user to repeat information from compressed messages\n" +
		"- Reference summary details naturally when relevant\n" +
		"- Continue the conversation as if the original messages occurred\n\n" +
		"The system handles compression automatically - you don't need to manage it."
}

// buildToolPrimer documents every registered tool's parameters in the
// system prompt, reproduced from _build_tool_primer.
func (c *Controller) buildToolPrimer() string {
	names := c.registry.Names()
	if len(names) == 0 {
		return ""
	}

	lines := []string{"Tool Reference:"}
	for _, name := range names {
		t, _ := c.registry.Get(name)
		schema := t.Schema()
		description, _ := schema["description"].(string)
		if description == "" {
			description = "(no description)"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", name, description))

		parameters, _ := schema["parameters"].(map[string]any)
		if parameters == nil {
			continue
		}
		props, _ := parameters["properties"].(map[string]any)
		required := map[string]bool{}
		if reqList, ok := parameters["required"].([]string); ok {
			for _, r := range reqList {
				required[r] = true
			}
		}
		for paramName, raw := range props {
			paramSchema, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			status := "optional"
			if required[paramName] {
				status = "required"
			}
			desc, _ := paramSchema["description"].(string)
			desc = strings.TrimSpace(desc)
			if desc != "" {
				lines = append(lines, fmt.Sprintf("  • %s (%s) – %s", paramName, status, desc))
			} else {
				lines = append(lines, fmt.Sprintf("  • %s (%s)", paramName, status))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// AddUserMessage appends a user turn and runs an opportunistic
// compression pass.
func (c *Controller) AddUserMessage(content string) {
	c.Messages = append(c.Messages, providers.Message{Role: providers.RoleUser, Content: content})
	c.maybeCompress("user")
}

// allToolDefinitions merges the registry's built-in tools with whatever
// the MCP manager currently exposes, namespaced mcp::server::tool.
func (c *Controller) allToolDefinitions(ctx context.Context) []providers.ToolDefinition {
	defs := c.registry.Definitions()
	if c.mcpManager == nil {
		return defs
	}
	for name, t := range c.mcpManager.ListTools(ctx) {
		schema := t.InputSchema
		if schema == nil {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		defs = append(defs, providers.ToolDefinition{Name: name, Description: t.Description, InputSchema: schema})
	}
	return defs
}

// RunTurn drives the model until it produces a final text answer (or the
// iteration bound / interrupt callback stops it early). stream selects
// between the streaming and non-streaming call path; shouldStop is polled
// between streamed chunks.
func (c *Controller) RunTurn(ctx context.Context, stream bool, shouldStop func() bool, sink Sink) (string, error) {
	iteration := 0
	for {
		c.debugf(fmt.Sprintf("Turn iteration %d starting (messages=%d, max_iter=%d)", iteration+1, len(c.Messages), c.maxToolIterations),
			map[string]any{"iteration": iteration + 1, "max_tool_iterations": c.maxToolIterations, "streaming": stream})

		if c.maxToolIterations > 0 && iteration >= c.maxToolIterations {
			sink.Warn("Maximum tool iterations reached")
			c.debugf(fmt.Sprintf("Stopping conversation turn after reaching max_tool_iterations (%d)", c.maxToolIterations),
				map[string]any{"iteration": iteration, "max_tool_iterations": c.maxToolIterations})
			return "", nil
		}

		toolDefs := c.allToolDefinitions(ctx)

		var text string
		var toolCalls []providers.ToolCall
		var err error

		if stream {
			text, toolCalls, err = c.handleStreamingResponse(ctx, toolDefs, shouldStop, sink)
		} else {
			var resp providers.Response
			resp, err = c.client.Complete(ctx, c.Messages, toolDefs)
			if err == nil {
				text, toolCalls = resp.Content, resp.ToolCalls
			}
		}
		if err != nil {
			return "", err
		}

		if len(toolCalls) > 0 {
			c.debugf(fmt.Sprintf("Model returned %d pending tool call(s)", len(toolCalls)), map[string]any{"pending_tool_calls": len(toolCalls)})
			c.executeTools(ctx, toolCalls, sink)
			iteration++
			continue
		}

		c.debugf("Model produced a final assistant message; ending turn", map[string]any{"response_length": len(text)})
		c.Messages = append(c.Messages, providers.Message{Role: providers.RoleAssistant, Content: text})
		c.maybeCompress("assistant")
		if !stream {
			sink.AssistantMessage(text)
		}
		return text, nil
	}
}

// handleStreamingResponse consumes one streamed model response.
//
// Interrupt preference: an interrupt with both partial text and pending
// tool calls discards the tool calls and returns the partial text (the
// turn ends as if the model had just talked); otherwise any collected tool
// calls are returned for dispatch, whether or not the stream was
// interrupted.
func (c *Controller) handleStreamingResponse(ctx context.Context, toolDefs []providers.ToolDefinition, shouldStop func() bool, sink Sink) (string, []providers.ToolCall, error) {
	c.debugf("Streaming response initiated", map[string]any{"messages": len(c.Messages), "tools_available": len(toolDefs)})

	decoder, closer, err := c.client.Stream(ctx, c.Messages, toolDefs)
	if err != nil {
		return "", nil, err
	}
	defer closer.Close()

	var textBuilder strings.Builder
	var toolCalls []providers.ToolCall
	interrupted := false

	for {
		chunk, done, err := decoder.Next()
		if err != nil {
			return "", nil, err
		}
		if done {
			break
		}

		if chunk.TextDelta != "" {
			sink.StreamDelta(chunk.TextDelta)
			textBuilder.WriteString(chunk.TextDelta)
		}
		if len(chunk.ToolCalls) > 0 {
			toolCalls = append(toolCalls, chunk.ToolCalls...)
		}
		if chunk.FinishReason != "" {
			break
		}
		if shouldStop != nil && shouldStop() {
			c.debugf("Streaming interrupted by stop callback", map[string]any{"response_text_length": textBuilder.Len()})
			interrupted = true
			break
		}
	}

	text := textBuilder.String()

	if len(toolCalls) > 0 && interrupted && text != "" {
		c.debugf("Streaming interrupted with partial response; returning accumulated text",
			map[string]any{"response_text_length": len(text), "tool_calls": len(toolCalls)})
		sink.AssistantMessage(text)
		return text, nil, nil
	}

	if len(toolCalls) > 0 {
		c.debugf(fmt.Sprintf("Streaming produced %d tool call(s)", len(toolCalls)), map[string]any{"tool_calls": len(toolCalls)})
		return "", toolCalls, nil
	}

	if text != "" {
		c.debugf("Streaming produced text response without tool calls", map[string]any{"response_text_length": len(text)})
		sink.AssistantMessage(text)
	}

	return text, nil, nil
}

// executeTools appends the assistant's tool-call message, runs each call
// in order (MCP-namespaced calls route through mcpManager, everything
// else through the registry), and appends one tool-role result message
// per call.
func (c *Controller) executeTools(ctx context.Context, toolCalls []providers.ToolCall, sink Sink) {
	c.Messages = append(c.Messages, providers.Message{Role: providers.RoleAssistant, ToolCalls: toolCalls})

	for _, tc := range toolCalls {
		sink.ToolStart(tc.Name)

		argsPreview := string(tc.Arguments)
		if len(argsPreview) > 200 {
			argsPreview = argsPreview[:200] + "..."
		}
		c.emitDebugEvent("tool_execution_start", fmt.Sprintf("Executing tool '%s'", tc.Name),
			map[string]any{"tool_name": tc.Name, "tool_call_id": tc.ID, "arguments_preview": argsPreview})

		var ok bool
		var output, errMsg string

		if server, toolName, isMCP := mcpmgr.SplitQualifiedName(tc.Name); isMCP {
			var args map[string]any
			if len(tc.Arguments) > 0 {
				_ = json.Unmarshal(tc.Arguments, &args)
			}
			c.debugf(fmt.Sprintf("Dispatching MCP tool '%s'", tc.Name), map[string]any{"tool_name": tc.Name, "tool_call_id": tc.ID})
			text, isError, err := c.mcpManager.CallTool(ctx, mcpmgr.QualifiedName(server, toolName), args)
			if err != nil {
				ok, errMsg = false, err.Error()
			} else {
				ok, output = !isError, text
				if isError {
					errMsg = text
				}
			}
		} else {
			c.debugf(fmt.Sprintf("Executing tool '%s' with args=%s", tc.Name, argsPreview),
				map[string]any{"tool_name": tc.Name, "tool_call_id": tc.ID, "arguments_preview": argsPreview})
			result := c.registry.Execute(ctx, tc.Name, string(tc.Arguments))
			ok, output, errMsg = result.OK, result.Output, result.Error
		}

		truncated := false
		if ok {
			if len(output) > DisplayTruncateLength {
				truncated = true
			}
			c.emitDebugEvent("tool_execution_success", fmt.Sprintf("Tool '%s' completed successfully", tc.Name),
				map[string]any{"tool_name": tc.Name, "tool_call_id": tc.ID, "output_preview": previewOf(output, 200)})
		} else {
			c.emitDebugEvent("tool_execution_error", fmt.Sprintf("Tool '%s' failed", tc.Name),
				map[string]any{"tool_name": tc.Name, "tool_call_id": tc.ID, "error": errMsg})
		}

		content := output
		if !ok {
			content = fmt.Sprintf("Error: %s", errMsg)
		}
		c.Messages = append(c.Messages, providers.Message{Role: providers.RoleTool, Content: content, ToolCallID: tc.ID})
		c.maybeCompress(tc.Name)

		historyIndex := c.ToolHistory.Add(ToolHistoryEntry{Name: tc.Name, CallID: tc.ID, OK: ok, Output: firstNonEmpty(output, errMsg)})

		if ok {
			sink.ToolSuccess(tc.Name, output, truncated, historyIndex)
		} else {
			sink.ToolError(tc.Name, errMsg)
		}
	}
}

// ClearHistory resets the conversation to just its system message,
// keeping lifetime compression metrics but resetting the pass counter.
func (c *Controller) ClearHistory() {
	if len(c.Messages) == 0 {
		return
	}
	c.Messages = c.Messages[:1]
	if c.compressor != nil {
		c.compressor.Reset()
	}
	c.ToolHistory.Clear()
}

func (c *Controller) maybeCompress(trigger string) {
	if c.compressor == nil || len(c.Messages) <= 1 {
		return
	}
	c.compressor.MaybeCompress(&c.Messages, trigger)
}

func previewOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
