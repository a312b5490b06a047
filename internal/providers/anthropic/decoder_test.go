package anthropic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseEvent(event, data string) string {
	return "event: " + event + "\ndata: " + data + "\n\n"
}

// TestDecoder_ToolUseReassembly reproduces SPEC scenario 1: a tool_use
// block opened with an empty seed input, its arguments streamed in as
// input_json_delta fragments, then finalized on content_block_stop.
func TestDecoder_ToolUseReassembly(t *testing.T) {
	body := strings.Join([]string{
		sseEvent("content_block_start", `{"index":0,"content_block":{"type":"tool_use","id":"t1","name":"Bash","input":{}}}`),
		sseEvent("content_block_delta", `{"index":0,"delta":{"type":"input_json_delta","partial_json":"{\"command\":\"ls\"}"}}`),
		sseEvent("content_block_stop", `{"index":0}`),
		sseEvent("message_stop", `{"stop_reason":"tool_use"}`),
	}, "")

	d := NewDecoder(strings.NewReader(body))

	chunk, done, err := d.Next()
	require.NoError(t, err)
	require.False(t, done)
	require.Len(t, chunk.ToolCalls, 1)
	assert.Equal(t, "t1", chunk.ToolCalls[0].ID)
	assert.Equal(t, "Bash", chunk.ToolCalls[0].Name)
	assert.JSONEq(t, `{"command":"ls"}`, string(chunk.ToolCalls[0].Arguments))

	chunk, done, err = d.Next()
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "tool_use", chunk.FinishReason)

	_, done, err = d.Next()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestDecoder_PrefilledDictWithNoDeltas(t *testing.T) {
	body := strings.Join([]string{
		sseEvent("content_block_start", `{"index":0,"content_block":{"type":"tool_use","id":"t2","name":"Read","input":{"path":"a.go"}}}`),
		sseEvent("content_block_stop", `{"index":0}`),
	}, "")

	d := NewDecoder(strings.NewReader(body))
	chunk, _, err := d.Next()
	require.NoError(t, err)
	require.Len(t, chunk.ToolCalls, 1)
	assert.JSONEq(t, `{"path":"a.go"}`, string(chunk.ToolCalls[0].Arguments))
}

func TestDecoder_EmptyToolUseDefaultsToEmptyObject(t *testing.T) {
	body := strings.Join([]string{
		sseEvent("content_block_start", `{"index":0,"content_block":{"type":"tool_use","id":"t3","name":"Noop"}}`),
		sseEvent("content_block_stop", `{"index":0}`),
	}, "")

	d := NewDecoder(strings.NewReader(body))
	chunk, _, err := d.Next()
	require.NoError(t, err)
	require.Len(t, chunk.ToolCalls, 1)
	assert.Equal(t, "{}", string(chunk.ToolCalls[0].Arguments))
}

func TestDecoder_TextDeltaThenStop(t *testing.T) {
	body := strings.Join([]string{
		sseEvent("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"Hello"}}`),
		sseEvent("message_stop", `{}`),
	}, "")

	d := NewDecoder(strings.NewReader(body))
	chunk, done, err := d.Next()
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "Hello", chunk.TextDelta)

	chunk, done, err = d.Next()
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "stop", chunk.FinishReason)
}

func TestDecoder_DoneSentinelTerminates(t *testing.T) {
	body := sseEvent("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"Hi"}}`) + "data: [DONE]\n\n"

	d := NewDecoder(strings.NewReader(body))
	chunk, done, err := d.Next()
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "Hi", chunk.TextDelta)

	chunk, done, err = d.Next()
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "stop", chunk.FinishReason)

	_, done, err = d.Next()
	require.NoError(t, err)
	assert.True(t, done)
}

// TestDecoder_ErrorEventPropagatesOnNextStep verifies the error event
// raises from the consuming Next() call that observes it, not
// asynchronously from the read loop.
func TestDecoder_ErrorEventPropagatesOnNextStep(t *testing.T) {
	body := strings.Join([]string{
		sseEvent("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"partial"}}`),
		sseEvent("error", `{"error":{"message":"overloaded"}}`),
	}, "")

	d := NewDecoder(strings.NewReader(body))

	chunk, done, err := d.Next()
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "partial", chunk.TextDelta)

	_, done, err = d.Next()
	require.True(t, done)
	require.Error(t, err)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "overloaded", streamErr.Message)
}

func TestDecoder_MalformedJSONLineSkippedSilently(t *testing.T) {
	body := "event: content_block_delta\ndata: {not json\n\n" +
		sseEvent("content_block_delta", `{"index":0,"delta":{"type":"text_delta","text":"ok"}}`)

	d := NewDecoder(strings.NewReader(body))
	chunk, done, err := d.Next()
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "ok", chunk.TextDelta)
}
