package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/zai-org/codinglm/internal/providers"
)

const (
	anthropicVersion  = "2023-06-01"
	defaultBaseURL    = "https://api.z.ai/api/anthropic"
	defaultTimeoutSec = 600
)

// Client is a hand-rolled Anthropic Messages API client, grounded on
// api/client.py::GLMClient. It implements tools.ChatClient so the same
// type serves both the turn controller and the SubAgent tool.
type Client struct {
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

// Model returns the client's current model id.
func (c *Client) Model() string { return c.model }

// SetModel swaps the client's model id, returning the previous value so
// a caller (the compressor's summary_model override, /model) can restore
// it afterward.
func (c *Client) SetModel(model string) string {
	prev := c.model
	c.model = model
	return prev
}

func WithModel(model string) Option           { return func(c *Client) { c.model = model } }
func WithTemperature(t float64) Option        { return func(c *Client) { c.temperature = t } }
func WithMaxTokens(n int) Option              { return func(c *Client) { c.maxTokens = n } }
func WithBaseURL(url string) Option           { return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") } }
func WithTimeoutMs(ms int) Option {
	return func(c *Client) {
		if ms > 0 {
			c.httpClient.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		model:       "glm-4.6",
		temperature: 0.7,
		maxTokens:   8192,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: defaultTimeoutSec * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError wraps a non-2xx HTTP response, formatted per _format_api_error.
type APIError struct{ Message string }

func (e *APIError) Error() string { return e.Message }

// NetworkError wraps a transport-level failure (DNS, connection refused,
// timeout) distinct from a well-formed error response.
type NetworkError struct{ Underlying error }

func (e *NetworkError) Error() string { return fmt.Sprintf("Network error: %s", e.Underlying) }
func (e *NetworkError) Unwrap() error { return e.Underlying }

func (c *Client) buildHeaders(req *http.Request) {
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (c *Client) buildPayload(messages []providers.Message, toolDefs []providers.ToolDefinition, stream bool) map[string]any {
	systemPrompt, converted := convertMessages(messages)

	payload := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"messages":    converted,
	}
	if systemPrompt != "" {
		payload["system"] = systemPrompt
	}
	if len(toolDefs) > 0 {
		tools := make([]map[string]any, 0, len(toolDefs))
		for _, t := range toolDefs {
			var schema any = map[string]any{"type": "object", "properties": map[string]any{}}
			if len(t.InputSchema) > 0 {
				var parsed map[string]any
				if json.Unmarshal(t.InputSchema, &parsed) == nil {
					schema = parsed
				}
			}
			tools = append(tools, map[string]any{
				"type":         "tool",
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": schema,
			})
		}
		payload["tools"] = tools
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

// convertMessages reproduces _convert_messages: system messages concatenate
// with "\n\n"; assistant tool-calls become tool_use blocks; tool-role
// messages become user-role tool_result blocks (Anthropic has no "tool"
// role); an assistant message with no content gets a single empty text
// block, since the wire protocol requires at least one content block.
func convertMessages(messages []providers.Message) (string, []map[string]any) {
	var systemPrompts []string
	var converted []map[string]any

	for _, m := range messages {
		switch m.Role {
		case providers.RoleSystem:
			if m.Content != "" {
				systemPrompts = append(systemPrompts, m.Content)
			}

		case providers.RoleUser:
			converted = append(converted, map[string]any{
				"role":    "user",
				"content": []map[string]any{{"type": "text", "text": m.Content}},
			})

		case providers.RoleAssistant:
			var blocks []map[string]any
			if m.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if len(tc.Arguments) > 0 {
					var parsed any
					if json.Unmarshal(tc.Arguments, &parsed) == nil {
						input = parsed
					} else {
						input = map[string]any{"__raw": string(tc.Arguments)}
					}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, map[string]any{"type": "text", "text": ""})
			}
			converted = append(converted, map[string]any{"role": "assistant", "content": blocks})

		case providers.RoleTool:
			converted = append(converted, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.Content,
				}},
			})

		default:
			if m.Content != "" {
				converted = append(converted, map[string]any{
					"role":    "user",
					"content": []map[string]any{{"type": "text", "text": m.Content}},
				})
			}
		}
	}

	return strings.Join(systemPrompts, "\n\n"), converted
}

func (c *Client) messagesURL() string {
	return c.baseURL + "/v1/messages"
}

// Complete performs a single non-streaming call and assembles a Response,
// grounded on GLMClient._handle_response.
func (c *Client) Complete(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition) (providers.Response, error) {
	payload := c.buildPayload(messages, toolDefs, false)
	body, err := json.Marshal(payload)
	if err != nil {
		return providers.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return providers.Response{}, err
	}
	c.buildHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.Response{}, &NetworkError{Underlying: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Response{}, &NetworkError{Underlying: err}
	}

	if resp.StatusCode >= 300 {
		return providers.Response{}, &APIError{Message: formatAPIError(resp.StatusCode, respBody)}
	}

	var decoded struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return providers.Response{}, fmt.Errorf("decode response: %w", err)
	}

	var textParts []string
	var toolCalls []providers.ToolCall
	for _, block := range decoded.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			toolCalls = append(toolCalls, providers.ToolCall{ID: block.ID, Name: block.Name, Arguments: input})
		}
	}

	return providers.Response{
		Content:    strings.Join(textParts, ""),
		ToolCalls:  toolCalls,
		StopReason: decoded.StopReason,
		Usage:      providers.Usage{InputTokens: decoded.Usage.InputTokens, OutputTokens: decoded.Usage.OutputTokens},
	}, nil
}

// Stream issues a streaming request and returns a Decoder over the
// response body. The caller must close the returned io.Closer (the HTTP
// response body) once done consuming the decoder.
func (c *Client) Stream(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition) (*Decoder, io.Closer, error) {
	payload := c.buildPayload(messages, toolDefs, true)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	c.buildHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &NetworkError{Underlying: err}
	}

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, nil, &APIError{Message: formatAPIError(resp.StatusCode, respBody)}
	}

	return NewDecoder(resp.Body), resp.Body, nil
}

// formatAPIError mirrors _format_api_error's dict-walk, using gjson for a
// best-effort field extraction instead of a full schema-matched decode —
// error payloads vary by provider and aren't worth a strict struct.
func formatAPIError(statusCode int, body []byte) string {
	result := gjson.GetBytes(body, "error")
	if !result.Exists() {
		return fmt.Sprintf("API error: HTTP %d", statusCode)
	}
	code := result.Get("code").String()
	message := result.Get("message").String()
	switch {
	case code != "" && message != "":
		return fmt.Sprintf("API error (%s): %s", code, message)
	case message != "":
		return fmt.Sprintf("API error: %s", message)
	default:
		return fmt.Sprintf("API error: HTTP %d", statusCode)
	}
}
