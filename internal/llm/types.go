package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loqalabs/voicechat/internal/config"
)

// Request describes a language model prompt.
type Request struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Kind is the relay exchange kind, "text" or "file".
	Kind        string
	TraceID     string
}

// Chunk represents streamed model output.
type Chunk struct {
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	TraceID          string
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// Completion is the concatenated output of a generation.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Collect runs a generation to the end and joins every chunk.
func Collect(ctx context.Context, g Generator, req Request) (Completion, error) {
	var (
		sb  strings.Builder
		out Completion
	)
	err := g.Generate(ctx, req, func(chunk Chunk) error {
		sb.WriteString(chunk.Content)
		if chunk.PromptTokens > 0 {
			out.PromptTokens = chunk.PromptTokens
		}
		if chunk.CompletionTokens > 0 {
			out.CompletionTokens = chunk.CompletionTokens
		}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	out.Text = strings.TrimSpace(sb.String())
	return out, nil
}

// RequestFromConfig builds a request with configured defaults.
func RequestFromConfig(cfg config.LLMConfig, prompt string) Request {
	return Request{
		Prompt:      prompt,
		System:      cfg.System,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

// New returns the generator selected by cfg.Mode.
func New(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}
