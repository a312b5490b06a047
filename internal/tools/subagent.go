package tools

import (
	"context"
	"fmt"

	"github.com/zai-org/codinglm/internal/providers"
)

const subAgentMaxIterations = 10

const exploreSystemPrompt = `You are a specialized code exploration agent. Your task is to:
- Quickly find files using Glob patterns
- Search code using Grep
- Read relevant files
- Answer questions about the codebase structure

Be thorough but efficient. Provide clear, concise answers.`

const generalPurposeSystemPrompt = `You are a helpful coding assistant. You have access to various tools for:
- Reading and writing files
- Searching code
- Running commands
- Git operations

Use the tools available to complete the task autonomously. When done, provide a final summary.`

// ChatClient is the subset of the LLM client the SubAgent tool needs: a
// single non-streaming completion call. Kept as a narrow interface here so
// this package doesn't import internal/providers/anthropic directly.
type ChatClient interface {
	Complete(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition) (providers.Response, error)
}

// SubAgentTool launches a fresh, bounded sub-conversation that shares the
// parent's tool registry. Grounded on tools/task.py::Task; the fixed
// max_iterations=10 and fresh [system, user] seed match it exactly.
type SubAgentTool struct {
	client   ChatClient
	registry *Registry
}

func NewSubAgentTool(client ChatClient, registry *Registry) *SubAgentTool {
	return &SubAgentTool{client: client, registry: registry}
}

func (t *SubAgentTool) Name() string { return "Task" }
func (t *SubAgentTool) Description() string {
	return "Launch a sub-agent to handle complex, multi-step tasks autonomously"
}

func (t *SubAgentTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description":   map[string]any{"type": "string", "description": "A short (3-5 word) description of the task"},
				"prompt":        map[string]any{"type": "string", "description": "The detailed task for the agent to perform"},
				"subagent_type": map[string]any{"type": "string", "description": "The type of specialized agent to use", "enum": []string{"general-purpose", "Explore"}},
			},
			"required": []string{"description", "prompt", "subagent_type"},
		},
	}
}

func (t *SubAgentTool) systemPrompt(subagentType string) string {
	if subagentType == "Explore" {
		return exploreSystemPrompt
	}
	return generalPurposeSystemPrompt
}

func (t *SubAgentTool) Execute(ctx context.Context, args map[string]any) *Result {
	description := stringArg(args, "description")
	prompt := stringArg(args, "prompt")
	subagentType := firstNonEmpty(stringArg(args, "subagent_type"), "general-purpose")

	if prompt == "" {
		return Fail("Agent failed: missing required parameter 'prompt'")
	}

	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: t.systemPrompt(subagentType)},
		{Role: providers.RoleUser, Content: prompt},
	}

	toolDefs := t.registry.Definitions()

	for i := 0; i < subAgentMaxIterations; i++ {
		resp, err := t.client.Complete(ctx, messages, toolDefs)
		if err != nil {
			return Fail(fmt.Sprintf("Agent failed: %s", err))
		}

		if len(resp.ToolCalls) == 0 {
			return Ok(fmt.Sprintf("Task: %s\n\nResult:\n%s", description, resp.Content))
		}

		messages = append(messages, providers.Message{Role: providers.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})

		for _, tc := range resp.ToolCalls {
			argsJSON := string(tc.Arguments)
			result := t.registry.Execute(ctx, tc.Name, argsJSON)
			content := result.Output
			if !result.OK {
				content = fmt.Sprintf("Error: %s", result.Error)
			}
			messages = append(messages, providers.Message{Role: providers.RoleTool, Content: content, ToolCallID: tc.ID})
		}
	}

	return Fail("Agent exceeded maximum iterations")
}
