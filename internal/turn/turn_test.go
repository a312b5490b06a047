package turn

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zai-org/codinglm/internal/config"
	"github.com/zai-org/codinglm/internal/providers"
	"github.com/zai-org/codinglm/internal/providers/anthropic"
	"github.com/zai-org/codinglm/internal/tools"
)

func sseEvent(event, data string) string {
	return "event: " + event + "\ndata: " + data + "\n\n"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// alwaysToolCallClient never produces a final answer; every Complete call
// returns one pending tool call, used to drive the iteration-bound test.
type alwaysToolCallClient struct {
	completeCalls int
}

func (c *alwaysToolCallClient) Complete(_ context.Context, _ []providers.Message, _ []providers.ToolDefinition) (providers.Response, error) {
	c.completeCalls++
	return providers.Response{ToolCalls: []providers.ToolCall{{ID: "t1", Name: "Bash", Arguments: json.RawMessage(`{"command":"ls"}`)}}}, nil
}

func (c *alwaysToolCallClient) Stream(_ context.Context, _ []providers.Message, _ []providers.ToolDefinition) (*anthropic.Decoder, io.Closer, error) {
	return nil, nil, assertErr("Stream not used in this test")
}

// streamingClient serves one fixed SSE body as its streamed response.
type streamingClient struct {
	body string
}

func (c *streamingClient) Complete(_ context.Context, _ []providers.Message, _ []providers.ToolDefinition) (providers.Response, error) {
	return providers.Response{}, assertErr("Complete not used in this test")
}

func (c *streamingClient) Stream(_ context.Context, _ []providers.Message, _ []providers.ToolDefinition) (*anthropic.Decoder, io.Closer, error) {
	return anthropic.NewDecoder(strings.NewReader(c.body)), nopCloser{}, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type recordingSink struct {
	deltas        []string
	assistantMsgs []string
	toolStarts    []string
	warnings      []string
}

func (s *recordingSink) StreamDelta(text string)    { s.deltas = append(s.deltas, text) }
func (s *recordingSink) AssistantMessage(text string) { s.assistantMsgs = append(s.assistantMsgs, text) }
func (s *recordingSink) ToolStart(name string)       { s.toolStarts = append(s.toolStarts, name) }
func (s *recordingSink) ToolSuccess(string, string, bool, int) {}
func (s *recordingSink) ToolError(string, string)    {}
func (s *recordingSink) Warn(text string)            { s.warnings = append(s.warnings, text) }

func newTestController(client Client, maxIterations int) *Controller {
	cfg := config.ToolsConfig{MaxToolIterations: maxIterations}
	return New(client, tools.NewRegistry(), nil, nil, cfg, false, nil)
}

// TestRunTurn_IterationBound reproduces SPEC scenario 2: a model that
// always returns a pending tool call must not be allowed to loop forever.
// With max_tool_iterations=2, the controller calls the model at most
// maxToolIterations+1 times then warns and returns.
func TestRunTurn_IterationBound(t *testing.T) {
	client := &alwaysToolCallClient{}
	c := newTestController(client, 2)
	sink := &recordingSink{}

	text, err := c.RunTurn(context.Background(), false, nil, sink)

	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.LessOrEqual(t, client.completeCalls, 3)
	require.Len(t, sink.warnings, 1)
	assert.Contains(t, sink.warnings[0], "Maximum tool iterations")
}

// TestRunTurn_InterruptWithTextOnlyReturnsPartialText reproduces SPEC
// scenario 5: a text_delta "Hello" followed by an interrupt tick with no
// tool calls pending returns the accumulated text and dispatches nothing.
func TestRunTurn_InterruptWithTextOnlyReturnsPartialText(t *testing.T) {
	body := sseEvent("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"Hello"}}`)
	client := &streamingClient{body: body}
	c := newTestController(client, 0)
	sink := &recordingSink{}

	calls := 0
	shouldStop := func() bool {
		calls++
		return calls >= 1
	}

	text, err := c.RunTurn(context.Background(), true, shouldStop, sink)

	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Empty(t, sink.toolStarts)
	assert.Equal(t, []string{"Hello"}, sink.assistantMsgs)
}

// TestRunTurn_InterruptPrefersPartialTextOverToolCalls verifies that when
// the stream is interrupted after accumulating both partial text and a
// completed tool call, the partial text wins outright and no tool is
// dispatched.
func TestRunTurn_InterruptPrefersPartialTextOverToolCalls(t *testing.T) {
	body := strings.Join([]string{
		sseEvent("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"Partial"}}`),
		sseEvent("content_block_start", `{"index":0,"content_block":{"type":"tool_use","id":"t1","name":"Bash","input":{}}}`),
		sseEvent("content_block_delta", `{"index":0,"delta":{"type":"input_json_delta","partial_json":"{\"command\":\"ls\"}"}}`),
		sseEvent("content_block_stop", `{"index":0}`),
	}, "")
	client := &streamingClient{body: body}
	c := newTestController(client, 0)
	sink := &recordingSink{}

	calls := 0
	shouldStop := func() bool {
		calls++
		return calls >= 2
	}

	text, err := c.RunTurn(context.Background(), true, shouldStop, sink)

	require.NoError(t, err)
	assert.Equal(t, "Partial", text)
	assert.Empty(t, sink.toolStarts, "tool calls must be discarded when partial text is present")
}

// TestRunTurn_ToolCallsWithoutInterruptDispatch verifies the plain
// non-interrupted path: a tool_use block with no text completes one
// iteration and dispatches through the registry.
func TestRunTurn_ToolCallsWithoutInterruptDispatch(t *testing.T) {
	body := strings.Join([]string{
		sseEvent("content_block_start", `{"index":0,"content_block":{"type":"tool_use","id":"t1","name":"Bash","input":{}}}`),
		sseEvent("content_block_delta", `{"index":0,"delta":{"type":"input_json_delta","partial_json":"{\"command\":\"ls\"}"}}`),
		sseEvent("content_block_stop", `{"index":0}`),
		sseEvent("message_stop", `{}`),
	}, "")
	client := &streamingClient{body: body}
	c := newTestController(client, 1)
	sink := &recordingSink{}

	_, err := c.RunTurn(context.Background(), true, nil, sink)

	require.NoError(t, err)
	assert.Equal(t, []string{"Bash"}, sink.toolStarts)
}
