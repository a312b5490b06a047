// Package tokencount implements the heuristic token estimator used by the
// context compressor and the REPL's /compact report. Grounded on
// utils/token_counter.py: no Go tokenizer equivalent to tiktoken exists
// anywhere in the retrieval pack, so the heuristic path is the whole
// component rather than a fallback from something more exact.
package tokencount

import (
	"encoding/json"

	"github.com/zai-org/codinglm/internal/providers"
)

const (
	avgCharsPerToken      = 4
	messageOverheadTokens = 4
)

// EstimateText approximates token count for a block of text as
// max(1, ceil(len/avgCharsPerToken)), or 0 for empty input.
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	n := len(text)
	estimate := (n + avgCharsPerToken - 1) / avgCharsPerToken
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}

// EstimateMessage approximates the tokens one message contributes,
// including its tool-call payloads and id/name surcharges.
func EstimateMessage(m providers.Message) int {
	total := messageOverheadTokens
	total += EstimateText(m.Content)

	for _, tc := range m.ToolCalls {
		if b, err := json.Marshal(tc); err == nil {
			total += EstimateText(string(b))
		}
	}

	if m.ToolCallID != "" {
		total += 2
	}
	if m.Name != "" {
		total += 1
	}

	return total
}

// EstimateMessages sums EstimateMessage across a conversation slice.
func EstimateMessages(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessage(m)
	}
	return total
}
