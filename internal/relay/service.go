// Package relay answers chat exchanges: it prompts the language model,
// synthesizes the reply and packages the speech as a base64 WAV clip.
package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/extract"
	"github.com/loqalabs/voicechat/internal/llm"
	"github.com/loqalabs/voicechat/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/voicechat/internal/relay"

var (
	ErrEmptyText   = errors.New("text must not be empty")
	ErrLLMDisabled = errors.New("language model is disabled")
)

// Reply is the relay's answer. AudioBase64 is empty when speech is disabled.
type Reply struct {
	Text        string
	AudioBase64 string
}

type Service struct {
	llmCfg    config.LLMConfig
	ttsCfg    config.TTSConfig
	relayCfg  config.RelayConfig
	generator llm.Generator
	synth     tts.Synthesizer
	extractor extract.Extractor
	logger    *slog.Logger

	tracer    trace.Tracer
	exchanges metric.Int64Counter
	latency   metric.Float64Histogram
}

// New builds the backends selected by cfg.
func New(cfg config.Config, logger *slog.Logger) (*Service, error) {
	var (
		gen   llm.Generator
		synth tts.Synthesizer
		err   error
	)
	if cfg.LLM.Enabled {
		if gen, err = llm.New(cfg.LLM); err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
	}
	if cfg.TTS.Enabled {
		if synth, err = tts.New(cfg.TTS); err != nil {
			return nil, fmt.Errorf("tts: %w", err)
		}
	}
	ex, err := extract.New(cfg.Extract.Command)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return NewWithBackends(cfg, gen, synth, ex, logger)
}

// NewWithBackends wires explicit backends. A nil synth disables speech.
func NewWithBackends(cfg config.Config, gen llm.Generator, synth tts.Synthesizer, ex extract.Extractor, logger *slog.Logger) (*Service, error) {
	meter := otel.Meter(instrumentationName)
	exchanges, err := meter.Int64Counter("voicechat.relay.exchanges",
		metric.WithDescription("Chat exchanges handled by the relay"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("voicechat.relay.latency",
		metric.WithDescription("End-to-end exchange latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	if ex == nil {
		ex = extract.Plain{}
	}
	return &Service{
		llmCfg:    cfg.LLM,
		ttsCfg:    cfg.TTS,
		relayCfg:  cfg.Relay,
		generator: gen,
		synth:     synth,
		extractor: ex,
		logger:    logger.With(slog.String("component", "relay")),
		tracer:    otel.Tracer(instrumentationName),
		exchanges: exchanges,
		latency:   latency,
	}, nil
}

func (s *Service) LLMEnabled() bool { return s.generator != nil }
func (s *Service) TTSEnabled() bool { return s.synth != nil }

// Reply answers a typed message.
func (s *Service) Reply(ctx context.Context, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyText
	}
	return s.exchange(ctx, "text", func(context.Context) (string, error) {
		return text, nil
	})
}

// ReplyToFile answers question about an uploaded document.
func (s *Service) ReplyToFile(ctx context.Context, doc extract.Document, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		question = s.relayCfg.DefaultQuestion
	}
	return s.exchange(ctx, "file", func(ctx context.Context) (string, error) {
		_, span := s.tracer.Start(ctx, "relay.extract", trace.WithAttributes(
			attribute.String("document.name", doc.Name),
			attribute.Int("document.bytes", len(doc.Data)),
		))
		defer span.End()
		body, err := s.extractor.Extract(ctx, doc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		body = extract.Truncate(body, s.relayCfg.MaxDocumentRune)
		return documentPrompt(doc.Name, body, question), nil
	})
}

func documentPrompt(name, body, question string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The user attached a document named %q.\n\n", name)
	sb.WriteString("<document>\n")
	sb.WriteString(body)
	sb.WriteString("\n</document>\n\n")
	sb.WriteString(question)
	return sb.String()
}

func (s *Service) exchange(ctx context.Context, kind string, prompt func(context.Context) (string, error)) (reply Reply, err error) {
	if s.generator == nil {
		return Reply{}, ErrLLMDisabled
	}
	if s.relayCfg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.relayCfg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	traceID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "relay.exchange", trace.WithAttributes(
		attribute.String("exchange.kind", kind),
		attribute.String("exchange.trace_id", traceID),
	))
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("outcome", outcome))
		s.exchanges.Add(ctx, 1, attrs)
		s.latency.Record(ctx, time.Since(started).Seconds(), attrs)
		span.End()
	}()

	text, err := prompt(ctx)
	if err != nil {
		return Reply{}, err
	}

	req := llm.RequestFromConfig(s.llmCfg, text)
	req.TraceID = traceID
	req.Kind = kind
	completion, err := llm.Collect(ctx, s.generator, req)
	if err != nil {
		return Reply{}, fmt.Errorf("generate reply: %w", err)
	}
	if completion.Text == "" {
		return Reply{}, errors.New("language model returned an empty reply")
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", completion.PromptTokens),
		attribute.Int("llm.completion_tokens", completion.CompletionTokens),
	)

	reply = Reply{Text: completion.Text}
	if s.synth == nil {
		return reply, nil
	}
	wav, err := tts.Render(ctx, s.synth, tts.SynthRequest{Text: completion.Text, Voice: s.ttsCfg.Voice})
	if err != nil {
		return Reply{}, fmt.Errorf("synthesize reply: %w", err)
	}
	reply.AudioBase64 = base64.StdEncoding.EncodeToString(wav)

	s.logger.Debug("exchange complete",
		slog.String("kind", kind),
		slog.String("trace_id", traceID),
		slog.Int("reply_chars", len(reply.Text)),
		slog.Int("audio_bytes", len(wav)),
		slog.Duration("latency", time.Since(started)),
	)
	return reply, nil
}
