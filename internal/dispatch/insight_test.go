package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateFallsBackToHeuristicWithoutProviderConfig(t *testing.T) {
	p := NewInsightProvider("", "")
	result := p.Generate(context.Background(), InsightRequest{Prompt: "deal stalled 9 days"})

	assert.True(t, result.Heuristic)
	assert.Contains(t, result.Summary, "deal stalled 9 days")
}

func TestHeuristicFallbackTruncatesLongPrompts(t *testing.T) {
	longPrompt := make([]byte, 200)
	for i := range longPrompt {
		longPrompt[i] = 'x'
	}
	result := heuristicFallback(InsightRequest{Prompt: string(longPrompt)})
	assert.True(t, result.Heuristic)
	assert.LessOrEqual(t, len(result.Summary), len("Update: ")+140+len("…"))
}

func TestStripCodeFenceRemovesMarkdownWrapper(t *testing.T) {
	assert.Equal(t, `{"summary":"ok"}`, stripCodeFence("```json\n{\"summary\":\"ok\"}\n```"))
	assert.Equal(t, `{"summary":"ok"}`, stripCodeFence(`{"summary":"ok"}`))
}
