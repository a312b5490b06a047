package compress

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zai-org/codinglm/internal/config"
	"github.com/zai-org/codinglm/internal/providers"
)

type fixedSummarizer struct {
	text string
	err  error
	fn   func() string
}

func (f *fixedSummarizer) Complete(_ context.Context, _ []providers.Message, _ []providers.ToolDefinition) (providers.Response, error) {
	if f.err != nil {
		return providers.Response{}, f.err
	}
	if f.fn != nil {
		return providers.Response{Content: f.fn()}, nil
	}
	return providers.Response{Content: f.text}, nil
}

func baseConfig() config.ContextCompressionConfig {
	return config.ContextCompressionConfig{
		Enabled:                true,
		MaxContextTokens:       200,
		TargetContextTokens:    150,
		PreserveRecentMessages: 4,
		SummaryMaxTokens:       2000,
		MaxCompressionPasses:   3,
	}
}

func buildAlternating(n int, contentLen int) []providers.Message {
	messages := []providers.Message{{Role: providers.RoleSystem, Content: "system prompt"}}
	body := strings.Repeat("x", contentLen)
	for i := 0; i < n; i++ {
		role := providers.RoleUser
		if i%2 == 1 {
			role = providers.RoleAssistant
		}
		messages = append(messages, providers.Message{Role: role, Content: body})
	}
	return messages
}

// TestCompressor_SpanSelection reproduces SPEC scenario 3.
func TestCompressor_SpanSelection(t *testing.T) {
	cfg := baseConfig()
	messages := buildAlternating(20, 400)
	original := append([]providers.Message(nil), messages...)

	c := New(&fixedSummarizer{text: "summary of earlier conversation"}, cfg)
	c.MaybeCompress(&messages, "test")

	require.GreaterOrEqual(t, len(messages), cfg.PreserveRecentMessages+1)

	lastN := messages[len(messages)-cfg.PreserveRecentMessages:]
	wantLastN := original[len(original)-cfg.PreserveRecentMessages:]
	assert.Equal(t, wantLastN, lastN)

	foundSummary := false
	for _, m := range messages {
		if strings.HasPrefix(m.Name, SummaryName+":") {
			foundSummary = true
		}
	}
	assert.True(t, foundSummary, "expected a summary-marked message in the spliced result")
}

// TestCompressor_ConvergenceGuard reproduces SPEC scenario 4: a
// summariser that always returns a 2000-char string while the source
// span totals ~2200 chars should trip the 10% reduction floor and stop
// well short of MaxCompressionPasses.
func TestCompressor_ConvergenceGuard(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxCompressionPasses = 10
	cfg.MaxContextTokens = 1
	cfg.TargetContextTokens = 0
	// 8 non-system messages with preserve_recent=4 leaves a 4-message,
	// ~2200-char span to compress — about the size of the fixed 2000-char
	// summary below, so the first pass barely shrinks anything.
	messages := buildAlternating(8, 550)

	bigSummary := strings.Repeat("y", 2000)
	c := New(&fixedSummarizer{text: bigSummary}, cfg)
	c.MaybeCompress(&messages, "test")

	assert.Less(t, c.Metrics.TotalCompressions, cfg.MaxCompressionPasses)
}

func TestCompressor_SkipsWhenSpanAlreadyAllSummaries(t *testing.T) {
	cfg := baseConfig()
	cfg.PreserveRecentMessages = 1
	c := New(&fixedSummarizer{text: "summary"}, cfg)

	messages := []providers.Message{
		{Role: providers.RoleSystem, Content: "sys"},
		{Role: providers.RoleAssistant, Name: c.summaryMarker, Content: "prior summary"},
		{Role: providers.RoleUser, Content: strings.Repeat("z", 400)},
	}

	start, end, ok := c.selectSpan(messages)
	assert.False(t, ok, "span of only summary messages must be skipped")
	assert.Equal(t, 0, start)
	assert.Equal(t, 0, end)
}

func TestCompressor_SkipsWhenBelowPreserveCount(t *testing.T) {
	cfg := baseConfig()
	cfg.PreserveRecentMessages = 10
	messages := buildAlternating(4, 400)
	original := append([]providers.Message(nil), messages...)

	c := New(&fixedSummarizer{text: "summary"}, cfg)
	c.MaybeCompress(&messages, "test")

	assert.Equal(t, original, messages)
}

func TestCompressor_FallsBackOnClientError(t *testing.T) {
	cfg := baseConfig()
	messages := buildAlternating(20, 400)

	c := New(&fixedSummarizer{err: assertError("network down")}, cfg)
	c.MaybeCompress(&messages, "test")

	assert.Equal(t, 1, c.Metrics.FallbackSummariesUsed)
	assert.Equal(t, 0, c.Metrics.APICallsSuccessful)
}

func TestCompressor_DisabledIsNoop(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	messages := buildAlternating(20, 400)
	original := append([]providers.Message(nil), messages...)

	c := New(&fixedSummarizer{text: "summary"}, cfg)
	c.MaybeCompress(&messages, "test")

	assert.Equal(t, original, messages)
}

type assertError string

func (e assertError) Error() string { return string(e) }
