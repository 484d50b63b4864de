package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loqalabs/voicechat/internal/execcmd"
)

type execGenerator struct {
	cmd *execcmd.Command
}

// execRequest is the JSON document written to the helper's stdin.
type execRequest struct {
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Kind        string  `json:"kind,omitempty"`
	TraceID     string  `json:"trace_id,omitempty"`
}

type execReply struct {
	Content          *string `json:"content"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
}

// NewExecGenerator runs command once per exchange. The helper reads one JSON
// request on stdin and answers on stdout with either {"content": ...} or the
// bare reply text.
func NewExecGenerator(command string) (Generator, error) {
	cmd, err := execcmd.Parse("llm", command)
	if err != nil {
		return nil, err
	}
	return &execGenerator{cmd: cmd}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	input, err := json.Marshal(execRequest{
		Prompt:      req.Prompt,
		System:      req.System,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Kind:        req.Kind,
		TraceID:     req.TraceID,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	output, err := g.cmd.Run(ctx, input)
	if err != nil {
		return err
	}
	chunk, err := parseExecReply(output)
	if err != nil {
		return err
	}
	chunk.Latency = time.Since(start)
	chunk.TraceID = req.TraceID
	return consumer(chunk)
}

func parseExecReply(output []byte) (Chunk, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var reply execReply
		if err := json.Unmarshal(trimmed, &reply); err != nil {
			return Chunk{}, fmt.Errorf("decode llm exec response: %w", err)
		}
		if reply.Content == nil {
			return Chunk{}, fmt.Errorf("llm exec response has no content")
		}
		return Chunk{
			Content:          *reply.Content,
			PromptTokens:     reply.PromptTokens,
			CompletionTokens: reply.CompletionTokens,
		}, nil
	}
	return Chunk{Content: string(trimmed)}, nil
}
