package tokencount

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zai-org/codinglm/internal/providers"
)

func TestEstimateText(t *testing.T) {
	assert.Equal(t, 0, EstimateText(""))
	assert.Equal(t, 1, EstimateText("hi"))
	assert.Equal(t, 3, EstimateText("hello world")) // 11 chars / 4 -> ceil(2.75) = 3
}

func TestEstimateText_Monotonic(t *testing.T) {
	a := "the quick brown fox"
	b := a + " jumps over the lazy dog"
	assert.GreaterOrEqual(t, EstimateText(b), EstimateText(a))
}

func TestEstimateMessage_Overhead(t *testing.T) {
	empty := EstimateMessage(providers.Message{Role: providers.RoleUser})
	assert.Equal(t, messageOverheadTokens, empty)
}

func TestEstimateMessage_ToolCallIDAndName(t *testing.T) {
	base := EstimateMessage(providers.Message{Role: providers.RoleTool, Content: "x"})
	withID := EstimateMessage(providers.Message{Role: providers.RoleTool, Content: "x", ToolCallID: "call_1"})
	assert.Equal(t, base+2, withID)

	withName := EstimateMessage(providers.Message{Role: providers.RoleAssistant, Content: "x", Name: "context_summary:ab12cd34"})
	assert.Equal(t, base+1, withName)
}

func TestEstimateMessage_ToolCallsCountedAsJSON(t *testing.T) {
	tc := providers.ToolCall{ID: "t1", Name: "Bash", Arguments: json.RawMessage(`{"command":"ls"}`)}
	m := providers.Message{Role: providers.RoleAssistant, ToolCalls: []providers.ToolCall{tc}}
	got := EstimateMessage(m)
	assert.Greater(t, got, messageOverheadTokens)
}

func TestEstimateMessages_Sums(t *testing.T) {
	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: "sys"},
		{Role: providers.RoleUser, Content: "hello there"},
	}
	want := EstimateMessage(messages[0]) + EstimateMessage(messages[1])
	assert.Equal(t, want, EstimateMessages(messages))
}
