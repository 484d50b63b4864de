package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	prompt := strings.TrimSpace(req.Prompt)
	if runes := []rune(prompt); len(runes) > 80 {
		prompt = string(runes[:80]) + "..."
	}
	return consumer(Chunk{
		Content: "[mock reply to " + prompt + "]",
		Partial: false,
		Latency: 20 * time.Millisecond,
		TraceID: req.TraceID,
	})
}
