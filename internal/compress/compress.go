// Package compress implements automatic conversation context compression:
// once a conversation's estimated token count crosses a configured
// ceiling, a contiguous span of older messages is replaced by a single
// synthetic summary message, freeing room for the turn controller to
// keep calling the model without truncating history outright.
//
// Grounded line-for-line on conversation/compression.py::ContextCompressor;
// picoclaw's context_compressor.go contributes the general shape (a
// struct holding config + metrics, a maybe-compress entry point) but its
// own span-selection and scoring logic targets a different budget model,
// so the pass loop, convergence guard and summary formatting below follow
// the Python original instead.
package compress

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zai-org/codinglm/internal/config"
	"github.com/zai-org/codinglm/internal/logger"
	"github.com/zai-org/codinglm/internal/providers"
	"github.com/zai-org/codinglm/internal/tokencount"
)

// SummaryName tags synthetic summary messages via Message.Name, suffixed
// with a per-compressor random marker so a summary from this run is never
// confused with one a prior run left behind.
const SummaryName = "context_summary"

const (
	minSummaryChars              = 200
	charsPerTokenEstimate        = 4
	fallbackMaxSnippets          = 10
	fallbackSnippetLength        = 160
	minCompressionReductionRatio = 0.10
)

// DisplayTruncateLength bounds how much of a tool output the turn
// controller shows on screen before compression ever runs on it.
const DisplayTruncateLength = 500

// Summarizer performs a single non-streaming completion, the only LLM
// capability compression needs. *anthropic.Client satisfies this
// implicitly.
type Summarizer interface {
	Complete(ctx context.Context, messages []providers.Message, toolDefs []providers.ToolDefinition) (providers.Response, error)
}

// modelSwapper is satisfied by *anthropic.Client. Compression optionally
// runs the summariser call under a different model (config.SummaryModel);
// the model is swapped immediately before the call and restored right
// after, win or lose.
type modelSwapper interface {
	SetModel(model string) string
}

// Metrics accumulates compression effectiveness across a session's
// lifetime, surfaced verbatim by the /metrics slash command.
type Metrics struct {
	TotalCompressions        int
	TotalTokensBefore        int
	TotalTokensAfter         int
	TotalMessagesCompressed  int
	APICallsSuccessful       int
	FallbackSummariesUsed    int
}

func (m *Metrics) record(tokensBefore, tokensAfter, messagesCount int, usedAPI bool) {
	m.TotalCompressions++
	m.TotalTokensBefore += tokensBefore
	m.TotalTokensAfter += tokensAfter
	m.TotalMessagesCompressed += messagesCount
	if usedAPI {
		m.APICallsSuccessful++
	} else {
		m.FallbackSummariesUsed++
	}
}

// CompressionRatio is the fraction of tokens saved relative to tokens
// seen across every pass recorded so far.
func (m *Metrics) CompressionRatio() float64 {
	if m.TotalTokensBefore == 0 {
		return 0
	}
	return 1.0 - float64(m.TotalTokensAfter)/float64(m.TotalTokensBefore)
}

// TokensSaved is the lifetime token delta across every recorded pass.
func (m *Metrics) TokensSaved() int {
	return m.TotalTokensBefore - m.TotalTokensAfter
}

func (m *Metrics) String() string {
	if m.TotalCompressions == 0 {
		return "No compressions performed yet."
	}
	return fmt.Sprintf(
		"Compressions: %d | Messages compressed: %d | Tokens saved: %d (%.1f%%) | API: %d | Fallback: %d",
		m.TotalCompressions, m.TotalMessagesCompressed, m.TokensSaved(), m.CompressionRatio()*100,
		m.APICallsSuccessful, m.FallbackSummariesUsed,
	)
}

// Compressor maintains conversation history within token limits via
// summarisation, mutating the message slice passed to MaybeCompress in
// place (by splicing a span down to one summary message).
type Compressor struct {
	client        Summarizer
	cfg           config.ContextCompressionConfig
	passCount     int
	Metrics       *Metrics
	summaryMarker string
}

func New(client Summarizer, cfg config.ContextCompressionConfig) *Compressor {
	return &Compressor{
		client:        client,
		cfg:           cfg,
		Metrics:       &Metrics{},
		summaryMarker: fmt.Sprintf("%s:%s", SummaryName, uuid.New().String()[:8]),
	}
}

// Reset clears the pass counter, used after the conversation history is
// cleared by the user (the counter alone — metrics persist for the
// session, matching reset vs reset_metrics being distinct operations).
func (c *Compressor) Reset() { c.passCount = 0 }

// ResetMetrics clears lifetime compression metrics.
func (c *Compressor) ResetMetrics() { c.Metrics = &Metrics{} }

// MaybeCompress runs up to MaxCompressionPasses compression passes,
// stopping early once the conversation fits under MaxContextTokens, once
// a pass fails to select a span, or once a pass's reduction ratio falls
// below the 10% convergence floor.
func (c *Compressor) MaybeCompress(messages *[]providers.Message, trigger string) {
	if !c.cfg.Enabled {
		return
	}

	passes := c.cfg.MaxCompressionPasses
	if passes < 1 {
		passes = 1
	}

	for pass := 0; pass < passes; pass++ {
		tokensBefore := tokencount.EstimateMessages(*messages)
		if tokensBefore <= c.cfg.MaxContextTokens {
			return
		}

		compressed := c.compressOnce(messages, tokensBefore, trigger, pass)
		if !compressed {
			return
		}

		tokensAfter := tokencount.EstimateMessages(*messages)

		if tokensBefore > 0 {
			reductionRatio := float64(tokensBefore-tokensAfter) / float64(tokensBefore)
			if reductionRatio < minCompressionReductionRatio {
				if c.cfg.Verbose {
					logger.Info(fmt.Sprintf("Compression stopped: insufficient reduction (%.1f%% < %.0f%%)",
						reductionRatio*100, minCompressionReductionRatio*100))
				}
				return
			}
		}

		if tokensAfter <= c.cfg.TargetContextTokens {
			return
		}
	}
}

func (c *Compressor) compressOnce(messages *[]providers.Message, totalTokens int, trigger string, passIndex int) bool {
	start, end, ok := c.selectSpan(*messages)
	if !ok {
		if c.cfg.Verbose {
			logger.Info(c.skipReason(*messages))
		}
		return false
	}

	window := append([]providers.Message(nil), (*messages)[start:end]...)
	if len(window) == 0 {
		return false
	}

	windowTokens := tokencount.EstimateMessages(window)
	summaryText, usedAPI := c.summarize(window)
	summaryText = c.truncateSummary(summaryText)

	summaryContent := c.formatSummary(summaryText, window, windowTokens, totalTokens, trigger, passIndex)
	summaryMessage := providers.Message{
		Role:    providers.RoleAssistant,
		Name:    c.summaryMarker,
		Content: summaryContent,
	}
	summaryTokens := tokencount.EstimateMessages([]providers.Message{summaryMessage})

	spliced := make([]providers.Message, 0, len(*messages)-len(window)+1)
	spliced = append(spliced, (*messages)[:start]...)
	spliced = append(spliced, summaryMessage)
	spliced = append(spliced, (*messages)[end:]...)
	*messages = spliced

	c.passCount++
	c.Metrics.record(windowTokens, summaryTokens, len(window), usedAPI)
	logger.Info(fmt.Sprintf("Context compressed (removed %d messages ≈%d tokens; trigger: %s).",
		len(window), windowTokens, firstNonEmpty(trigger, "automatic")))
	return true
}

func (c *Compressor) skipReason(messages []providers.Message) string {
	nonSystem := 0
	for _, m := range messages {
		if m.Role != providers.RoleSystem {
			nonSystem++
		}
	}
	var reason string
	switch {
	case nonSystem == 0:
		reason = "no non-system messages"
	case nonSystem <= c.cfg.PreserveRecentMessages:
		reason = fmt.Sprintf("only %d messages (≤ preserveRecentMessages=%d)", nonSystem, c.cfg.PreserveRecentMessages)
	default:
		reason = "all messages already compressed"
	}
	return fmt.Sprintf("Context compression skipped: %s. Consider increasing maxContextTokens or decreasing preserveRecentMessages.", reason)
}

// selectSpan picks the contiguous [start, end) range of non-system
// messages to summarise: everything from the first non-system message up
// to (but excluding) the last preserveRecentMessages of them. Returns
// ok=false when there's nothing eligible, or the span is already wholly
// made of prior summaries (which would loop forever).
func (c *Compressor) selectSpan(messages []providers.Message) (start, end int, ok bool) {
	var nonSystemIndices []int
	for idx, m := range messages {
		if m.Role != providers.RoleSystem {
			nonSystemIndices = append(nonSystemIndices, idx)
		}
	}
	if len(nonSystemIndices) == 0 {
		return 0, 0, false
	}

	preserve := c.cfg.PreserveRecentMessages
	if len(nonSystemIndices) <= preserve {
		return 0, 0, false
	}

	tailStart := nonSystemIndices[len(nonSystemIndices)-preserve]
	startIndex := nonSystemIndices[0]
	if tailStart <= startIndex {
		return 0, 0, false
	}

	span := messages[startIndex:tailStart]
	if len(span) == 0 {
		return 0, 0, false
	}

	allSummaries := true
	for _, m := range span {
		if !strings.HasPrefix(m.Name, c.summaryMarker) {
			allSummaries = false
			break
		}
	}
	if allSummaries {
		return 0, 0, false
	}

	return startIndex, tailStart, true
}

// summarize produces (summary, usedAPI) for window, falling back to a
// local extractive summary on any client error, empty response, or when
// no client is configured at all.
func (c *Compressor) summarize(window []providers.Message) (string, bool) {
	if c.client == nil {
		return c.fallbackSummary(window), false
	}

	if c.cfg.SummaryModel != "" {
		if swapper, ok := c.client.(modelSwapper); ok {
			prev := swapper.SetModel(c.cfg.SummaryModel)
			defer swapper.SetModel(prev)
		}
	}

	promptMessages := c.buildSummariserPrompt(window)

	resp, err := c.client.Complete(context.Background(), promptMessages, nil)
	if err != nil {
		if c.cfg.Verbose {
			logger.Warn(fmt.Sprintf("Compression summary failed: %s", err))
		}
		return c.fallbackSummary(window), false
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return c.fallbackSummary(window), false
	}
	return summary, true
}

func (c *Compressor) maxSummaryChars() int {
	n := c.cfg.SummaryMaxTokens * charsPerTokenEstimate
	if n < minSummaryChars {
		return minSummaryChars
	}
	return n
}

func (c *Compressor) buildSummariserPrompt(window []providers.Message) []providers.Message {
	transcript := c.renderTranscript(window)
	maxChars := c.maxSummaryChars()

	instructions := fmt.Sprintf(`Summarise the coding session conversation below.
Focus on:
- Key objectives, decisions, and conclusions.
- File paths, commands, and code changes mentioned.
- Outstanding tasks, questions, or follow-ups.

Output <= %d characters. Use concise bullet points when possible.`, maxChars)

	return []providers.Message{
		{Role: providers.RoleSystem, Content: "You condense developer conversations into durable context summaries."},
		{Role: providers.RoleUser, Content: fmt.Sprintf("%s\n\n<conversation>\n%s\n</conversation>", instructions, transcript)},
	}
}

func (c *Compressor) fallbackSummary(window []providers.Message) string {
	var snippets []string
	for _, m := range window {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		head := firstLine(content)
		if len(head) > fallbackSnippetLength {
			head = head[:fallbackSnippetLength]
		}
		label := firstNonEmpty(m.Name, string(m.Role))
		snippets = append(snippets, fmt.Sprintf("- %s: %s", label, head))
		if len(snippets) >= fallbackMaxSnippets {
			break
		}
	}

	if len(snippets) == 0 {
		return "Earlier conversation compressed. No textual content captured."
	}
	return "Key points kept due to local fallback:\n" + strings.Join(snippets, "\n")
}

func (c *Compressor) truncateSummary(summaryText string) string {
	maxChars := c.maxSummaryChars()
	summary := strings.TrimSpace(summaryText)
	if len(summary) <= maxChars {
		return summary
	}
	truncated := summary[:maxChars]
	if idx := strings.LastIndex(truncated, "\n"); idx >= 0 {
		truncated = truncated[:idx]
	}
	return strings.TrimRight(truncated, " \t\n")
}

func (c *Compressor) formatSummary(summaryText string, window []providers.Message, windowTokens, totalTokens int, trigger string, passIndex int) string {
	coveredRoles := fmt.Sprintf("%s→%s", window[0].Role, window[len(window)-1].Role)
	metadata := fmt.Sprintf("[context compression #%d | span: %d messages (%s); was ≈%d tokens of ≈%d]",
		c.passCount+1, len(window), coveredRoles, windowTokens, totalTokens)

	guidance := "Use this summary instead of asking the user to repeat earlier details. " +
		"Assume the compressed messages already occurred."

	triggerNote := fmt.Sprintf("Triggered by: %s (pass %d).", firstNonEmpty(trigger, "automatic"), passIndex+1)

	parts := []string{metadata, triggerNote, "", summaryText, "", guidance}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (c *Compressor) renderTranscript(window []providers.Message) string {
	var lines []string
	for _, m := range window {
		label := strings.ToUpper(firstNonEmpty(m.Name, string(m.Role)))
		content := strings.TrimSpace(m.Content)
		if content != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", label, content))
		} else {
			lines = append(lines, fmt.Sprintf("%s: (no textual content)", label))
		}
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
