// Package anthropic implements the wire-level client and SSE decoder for
// the Anthropic-compatible Messages API. Hand-rolled rather than built on
// anthropics/anthropic-sdk-go — the SDK's own stream accumulator would
// hide the exact state machine this decoder needs to expose (see
// DESIGN.md for the full reasoning).
//
// Grounded line-for-line on api/client.py's _parse_event_stream and
// _ToolUseState; picoclaw's http_provider.go contributes only the
// bufio.Scanner line-loop mechanism (its own decoder targets an
// OpenAI-shaped stream, not Anthropic's typed SSE events).
package anthropic

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/zai-org/codinglm/internal/providers"
)

// Chunk is one decoded increment of a streamed response.
type Chunk struct {
	TextDelta    string
	ToolCalls    []providers.ToolCall
	FinishReason string
}

func (c Chunk) isEmpty() bool {
	return c.TextDelta == "" && len(c.ToolCalls) == 0 && c.FinishReason == ""
}

// toolUseState mirrors _ToolUseState: tracks one in-flight tool_use
// content block's accumulated id/name/input across content_block_start,
// content_block_delta and content_block_stop events.
type toolUseState struct {
	id          string
	name        string
	inputDict   map[string]any
	inputBuffer strings.Builder
}

// argumentsJSON reproduces _ToolUseState.arguments_json's exact priority:
// prefer the accumulated buffer if it parses as JSON, else the pre-filled
// dict if non-empty, else "{}".
func (s *toolUseState) argumentsJSON() string {
	if buf := s.inputBuffer.String(); buf != "" {
		var probe any
		if json.Unmarshal([]byte(buf), &probe) == nil {
			return buf
		}
		if len(s.inputDict) > 0 {
			b, _ := json.Marshal(s.inputDict)
			return string(b)
		}
		return "{}"
	}
	if len(s.inputDict) > 0 {
		b, _ := json.Marshal(s.inputDict)
		return string(b)
	}
	return "{}"
}

// StreamError is raised when the server sends an "error" SSE event;
// propagated on the next call to Decoder.Next, matching the contract that
// a mid-stream error surfaces at the next consuming step rather than
// asynchronously.
type StreamError struct{ Message string }

func (e *StreamError) Error() string { return e.Message }

// Decoder turns a raw SSE body into a sequence of Chunks. Use Next in a
// loop; it returns (chunk, false, nil) for a parsed chunk, (zero, true,
// nil) at end of stream, or (zero, true, err) on a decode/stream error.
type Decoder struct {
	scanner      *bufio.Scanner
	currentEvent string
	toolStates   map[int]*toolUseState
	done         bool
}

func NewDecoder(body io.Reader) *Decoder {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Decoder{
		scanner:    scanner,
		toolStates: make(map[int]*toolUseState),
	}
}

// Next returns the next non-empty chunk, or done=true when the stream has
// ended (via [DONE] or a message_stop event or EOF).
func (d *Decoder) Next() (chunk Chunk, done bool, err error) {
	if d.done {
		return Chunk{}, true, nil
	}

	for d.scanner.Scan() {
		line := d.scanner.Text()
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "event:") {
			d.currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}

		if !strings.HasPrefix(line, "data:") {
			continue
		}
		if d.currentEvent == "" {
			continue
		}

		if strings.TrimSpace(line) == "data: [DONE]" {
			d.done = true
			return Chunk{FinishReason: "stop"}, false, nil
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var payload map[string]any
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			continue
		}

		if d.currentEvent == "error" {
			d.done = true
			msg := "Unknown streaming error"
			if errObj, ok := payload["error"].(map[string]any); ok {
				if m, ok := errObj["message"].(string); ok && m != "" {
					msg = m
				}
			}
			return Chunk{}, true, &StreamError{Message: msg}
		}

		out := d.handleEvent(d.currentEvent, payload)
		if d.currentEvent == "message_stop" {
			d.done = true
		}
		if !out.isEmpty() {
			return out, false, nil
		}
	}

	if err := d.scanner.Err(); err != nil {
		d.done = true
		return Chunk{}, true, err
	}

	d.done = true
	return Chunk{}, true, nil
}

func (d *Decoder) handleEvent(event string, payload map[string]any) Chunk {
	switch event {
	case "content_block_delta":
		delta, _ := payload["delta"].(map[string]any)
		switch delta["type"] {
		case "text_delta":
			text, _ := delta["text"].(string)
			return Chunk{TextDelta: text}
		case "input_json_delta":
			index := indexOf(payload)
			if state, ok := d.toolStates[index]; ok {
				fragment, _ := delta["partial_json"].(string)
				state.inputBuffer.WriteString(fragment)
			}
		}

	case "content_block_start":
		block, _ := payload["content_block"].(map[string]any)
		if block["type"] == "tool_use" {
			index := indexOf(payload)
			state := &toolUseState{
				id:   stringField(block, "id"),
				name: stringField(block, "name"),
			}
			switch initial := block["input"].(type) {
			case map[string]any:
				state.inputDict = initial
			case string:
				state.inputBuffer.WriteString(initial)
			}
			d.toolStates[index] = state
		}

	case "content_block_stop":
		index := indexOf(payload)
		if state, ok := d.toolStates[index]; ok {
			delete(d.toolStates, index)
			return Chunk{ToolCalls: []providers.ToolCall{{
				ID:        state.id,
				Name:      state.name,
				Arguments: json.RawMessage(state.argumentsJSON()),
			}}}
		}

	case "message_delta":
		delta, _ := payload["delta"].(map[string]any)
		if stopReason, ok := delta["stop_reason"].(string); ok && stopReason != "" {
			return Chunk{FinishReason: stopReason}
		}

	case "message_stop":
		stopReason := "stop"
		if v, ok := payload["stop_reason"].(string); ok && v != "" {
			stopReason = v
		}
		return Chunk{FinishReason: stopReason}
	}

	return Chunk{}
}

func indexOf(payload map[string]any) int {
	if v, ok := payload["index"].(float64); ok {
		return int(v)
	}
	return 0
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
