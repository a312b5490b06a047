package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const webFetchMaxChars = 10000

// WebSearchTool is a stub: no search API is in scope for this tool (the
// original ships the same placeholder, deferring to a real search MCP
// server instead). Grounded on tools/web.py::WebSearch.
type WebSearchTool struct{}

func NewWebSearchTool() *WebSearchTool { return &WebSearchTool{} }

func (t *WebSearchTool) Name() string        { return "WebSearch" }
func (t *WebSearchTool) Description() string { return "Search the web and return results" }

func (t *WebSearchTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string", "description": "The search query"}},
			"required":   []string{"query"},
		},
	}
}

func (t *WebSearchTool) Execute(_ context.Context, _ map[string]any) *Result {
	return Fail("WebSearch not implemented. Use WebFetch for specific URLs or configure a web search MCP server.")
}

// WebFetchTool downloads a URL and reduces it to markdown-ish text.
// Grounded on tools/web.py::WebFetch; no HTML-to-markdown library appears
// anywhere in the pack for Go, so the reduction step is a small stdlib
// regexp-based tag/script/style stripper rather than a true markdown
// converter — see DESIGN.md's stdlib-exception ledger.
type WebFetchTool struct {
	httpClient *http.Client
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

var (
	scriptStyleTagRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlTagRe        = regexp.MustCompile(`(?s)<[^>]+>`)
	blankLinesRe     = regexp.MustCompile(`\n{3,}`)
)

func htmlToPlainText(html string) string {
	html = scriptStyleTagRe.ReplaceAllString(html, "")
	html = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n", "</div>", "\n").Replace(html)
	text := htmlTagRe.ReplaceAllString(html, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func (t *WebFetchTool) Name() string        { return "WebFetch" }
func (t *WebFetchTool) Description() string { return "Fetches content from a URL and processes it" }

func (t *WebFetchTool) Schema() map[string]any {
	return map[string]any{
		"name":        t.Name(),
		"description": t.Description(),
		"parameters": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url":    map[string]any{"type": "string", "description": "The URL to fetch content from"},
				"prompt": map[string]any{"type": "string", "description": "What information to extract from the page"},
			},
			"required": []string{"url", "prompt"},
		},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) *Result {
	rawURL := stringArg(args, "url")
	prompt := stringArg(args, "prompt")
	if rawURL == "" || prompt == "" {
		return Fail("Missing required parameter 'url' or 'prompt'")
	}

	if strings.HasPrefix(rawURL, "http://") {
		rawURL = "https://" + strings.TrimPrefix(rawURL, "http://")
	}

	requestedHost := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		requestedHost = parsed.Host
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Fail(err.Error())
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Fail(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Fail(fmt.Sprintf("HTTP error: %d", resp.StatusCode))
	}

	if resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.Host != requestedHost {
		final := resp.Request.URL.String()
		return Ok(fmt.Sprintf("Redirected to different host: %s\nPlease fetch: %s", final, final))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Fail(err.Error())
	}

	content := htmlToPlainText(string(body))
	if len(content) > webFetchMaxChars {
		content = content[:webFetchMaxChars] + "\n\n... [content truncated]"
	}

	output := fmt.Sprintf("# Content from %s\n\n**Extraction prompt:** %s\n\n%s", rawURL, prompt, content)
	return Ok(output)
}
