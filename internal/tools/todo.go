package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

var statusIcons = map[string]string{
	"pending":     "⭘",
	"in_progress": "→",
	"completed":   "✓",
}

// TodoItem is one advisory task entry, grounded on tools/todo.py::TodoItem.
type TodoItem struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm"`
}

// TodoTool keeps an in-process todo list the model can update to narrate
// its own plan. It has no effect on turn control; it is purely advisory,
// grounded on tools/todo.py::TodoWrite.
type TodoTool struct {
	mu    sync.Mutex
	items []TodoItem
}

func NewTodoTool() *TodoTool { return &TodoTool{} }

func (t *TodoTool) Name() string { return "TodoWrite" }
func (t *TodoTool) Description() string {
	return "Create and manage a structured task list for tracking progress"
}

func (t *TodoTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"todos": map[string]any{
					"type":        "array",
					"description": "The updated todo list",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"content":    map[string]any{"type": "string", "description": "The imperative form of the task (e.g. 'Run tests')"},
							"status":     map[string]any{"type": "string", "enum": []string{"pending", "in_progress", "completed"}, "description": "Task status"},
							"activeForm": map[string]any{"type": "string", "description": "Present continuous form (e.g. 'Running tests')"},
						},
						"required": []string{"content", "status", "activeForm"},
					},
				},
			},
			"required": []string{"todos"},
		},
	}
}

func (t *TodoTool) Execute(_ context.Context, args map[string]any) *Result {
	raw, ok := args["todos"].([]any)
	if !ok {
		return Fail("Failed to update todos: missing or invalid 'todos' array")
	}

	items := make([]TodoItem, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return Fail("Failed to update todos: each entry must be an object")
		}
		status := stringArg(m, "status")
		if _, known := statusIcons[status]; !known {
			return Fail(fmt.Sprintf("Failed to update todos: invalid status %q", status))
		}
		items = append(items, TodoItem{
			Content:    stringArg(m, "content"),
			Status:     status,
			ActiveForm: stringArg(m, "activeForm"),
		})
	}

	t.mu.Lock()
	t.items = items
	t.mu.Unlock()

	var out strings.Builder
	out.WriteString("Todo list updated:\n\n")
	for i, item := range items {
		fmt.Fprintf(&out, "%d. [%s] %s\n", i+1, statusIcons[item.Status], item.Content)
	}
	return Ok(strings.TrimRight(out.String(), "\n"))
}

// CurrentTodos returns a snapshot of the list (the list itself is
// advisory, per tools/todo.py).
func (t *TodoTool) CurrentTodos() []TodoItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TodoItem, len(t.items))
	copy(out, t.items)
	return out
}
