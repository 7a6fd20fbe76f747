package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// InsightProvider generates the short natural-language summaries that
// decorate digests and briefs (deal momentum narrative, meeting prep
// context). Content generation itself is out of scope (Non-goals); this
// client only shuttles a prompt to an opaque external provider and
// parses its structured response, falling back to a deterministic
// heuristic when the provider is unavailable or its response doesn't
// parse.
type InsightProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewInsightProvider builds a client with the spec's fixed 60s timeout
// for AI provider calls.
func NewInsightProvider(baseURL, apiKey string) *InsightProvider {
	return &InsightProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// InsightRequest is the minimal request shape sent upstream; prompt
// contents themselves are out of scope and supplied by the caller.
type InsightRequest struct {
	Prompt    string
	MaxTokens int
}

// InsightResult is the parsed structured response.
type InsightResult struct {
	Summary    string
	Confidence float64
	Heuristic  bool // true if this came from the local fallback, not the provider
}

type messagesRequestBody struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type messagesResponseBody struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type parsedInsight struct {
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// Generate calls the external provider and parses its response. On any
// failure — network error, non-2xx, unparseable body — it falls back to
// a deterministic heuristic summary rather than erroring, so a down
// provider never blocks a dispatch.
func (p *InsightProvider) Generate(ctx context.Context, req InsightRequest) InsightResult {
	if p.baseURL == "" || p.apiKey == "" {
		return heuristicFallback(req)
	}

	body := messagesRequestBody{
		Model:     "insight-default",
		MaxTokens: req.MaxTokens,
	}
	body.Messages = append(body.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(body)
	if err != nil {
		return heuristicFallback(req)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return heuristicFallback(req)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return heuristicFallback(req)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return heuristicFallback(req)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return heuristicFallback(req)
	}

	var envelope messagesResponseBody
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Content) == 0 {
		return heuristicFallback(req)
	}

	text := stripCodeFence(envelope.Content[0].Text)

	var parsed parsedInsight
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || parsed.Summary == "" {
		return heuristicFallback(req)
	}

	return InsightResult{Summary: parsed.Summary, Confidence: parsed.Confidence}
}

// stripCodeFence removes an optional ```json ... ``` wrapper, tolerating
// providers that wrap structured JSON in a markdown fence.
func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
		t = strings.TrimSuffix(t, "```")
	}
	return strings.TrimSpace(t)
}

// heuristicFallback produces a deterministic, provider-free summary so
// dispatch always has content to render.
func heuristicFallback(req InsightRequest) InsightResult {
	summary := req.Prompt
	if len(summary) > 140 {
		summary = summary[:140] + "…"
	}
	return InsightResult{Summary: fmt.Sprintf("Update: %s", summary), Confidence: 0.2, Heuristic: true}
}
