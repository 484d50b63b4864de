package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/extract"
	"github.com/loqalabs/voicechat/internal/llm"
	"github.com/loqalabs/voicechat/internal/stt"
	"github.com/loqalabs/voicechat/internal/tts"
)

type recordingGenerator struct {
	prompts []string
	reply   string
	err     error
}

func (g *recordingGenerator) Generate(_ context.Context, req llm.Request, consumer func(llm.Chunk) error) error {
	g.prompts = append(g.prompts, req.Prompt)
	if g.err != nil {
		return g.err
	}
	for _, word := range strings.SplitAfter(g.reply, " ") {
		if err := consumer(llm.Chunk{Content: word, Partial: true}); err != nil {
			return err
		}
	}
	return consumer(llm.Chunk{CompletionTokens: 3})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, gen llm.Generator, withSpeech bool) *Service {
	t.Helper()
	cfg := config.Default()
	var synth tts.Synthesizer
	if withSpeech {
		synth = tts.NewMockSynth(cfg.TTS.SampleRate, cfg.TTS.Channels)
	}
	svc, err := NewWithBackends(cfg, gen, synth, extract.Plain{}, testLogger())
	if err != nil {
		t.Fatalf("NewWithBackends: %v", err)
	}
	return svc
}

func TestReplyReturnsTextAndWAV(t *testing.T) {
	gen := &recordingGenerator{reply: "hi there"}
	svc := newTestService(t, gen, true)

	reply, err := svc.Reply(context.Background(), "  hello ")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text != "hi there" {
		t.Fatalf("unexpected text %q", reply.Text)
	}
	if len(gen.prompts) != 1 || gen.prompts[0] != "hello" {
		t.Fatalf("unexpected prompts %v", gen.prompts)
	}
	wav, err := base64.StdEncoding.DecodeString(reply.AudioBase64)
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	clip, err := stt.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("audio is not a WAV file: %v", err)
	}
	if clip.SampleRate != config.Default().TTS.SampleRate || len(clip.PCM) == 0 {
		t.Fatalf("unexpected clip %d Hz, %d bytes", clip.SampleRate, len(clip.PCM))
	}
}

func TestReplyWithoutSpeechHasNoAudio(t *testing.T) {
	svc := newTestService(t, &recordingGenerator{reply: "quiet"}, false)

	reply, err := svc.Reply(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.AudioBase64 != "" {
		t.Fatal("expected no audio when speech is disabled")
	}
}

func TestReplyRejectsEmptyText(t *testing.T) {
	gen := &recordingGenerator{reply: "unused"}
	svc := newTestService(t, gen, true)

	if _, err := svc.Reply(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if len(gen.prompts) != 0 {
		t.Fatal("generator should not run for empty text")
	}
}

func TestReplyPropagatesGeneratorFailure(t *testing.T) {
	boom := errors.New("model offline")
	svc := newTestService(t, &recordingGenerator{err: boom}, true)

	if _, err := svc.Reply(context.Background(), "hello"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped generator error, got %v", err)
	}
}

func TestReplyWithoutGenerator(t *testing.T) {
	svc := newTestService(t, nil, true)
	if _, err := svc.Reply(context.Background(), "hello"); !errors.Is(err, ErrLLMDisabled) {
		t.Fatalf("expected ErrLLMDisabled, got %v", err)
	}
}

func TestReplyToFileEmbedsDocumentAndDefaultQuestion(t *testing.T) {
	gen := &recordingGenerator{reply: "a summary"}
	svc := newTestService(t, gen, false)

	doc := extract.Document{Name: "notes.txt", Data: []byte("ship the release on friday")}
	if _, err := svc.ReplyToFile(context.Background(), doc, ""); err != nil {
		t.Fatalf("ReplyToFile: %v", err)
	}
	prompt := gen.prompts[0]
	for _, want := range []string{`"notes.txt"`, "ship the release on friday", config.DefaultQuestion} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt %q missing %q", prompt, want)
		}
	}
}

func TestReplyToFileRejectsBinaryWithoutConverter(t *testing.T) {
	svc := newTestService(t, &recordingGenerator{reply: "unused"}, false)

	doc := extract.Document{Name: "scan.pdf", Data: []byte("%PDF-1.7\x00\x01\x02")}
	if _, err := svc.ReplyToFile(context.Background(), doc, "what is this?"); !errors.Is(err, extract.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func writeHelper(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return "sh " + path
}

func TestReplyThroughExecHelpers(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.LLM.Mode = "exec"
	cfg.LLM.Command = writeHelper(t, dir, "llm.sh", `cat > "$(dirname "$0")/llm-request.json"
echo '{"content":"hello from exec"}'`)
	cfg.TTS.Mode = "exec"
	cfg.TTS.Command = writeHelper(t, dir, "tts.sh", `cat >/dev/null
echo '{"pcm_base64":"AQACAAMABAA=","final":true}'`)

	svc, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	reply, err := svc.ReplyToFile(context.Background(), extract.Document{Name: "notes.txt", Data: []byte("pasta")}, "What is in it?")
	if err != nil {
		t.Fatalf("ReplyToFile: %v", err)
	}
	if reply.Text != "hello from exec" {
		t.Fatalf("unexpected text %q", reply.Text)
	}
	wav, err := base64.StdEncoding.DecodeString(reply.AudioBase64)
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	clip, err := stt.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("audio is not a WAV file: %v", err)
	}
	if len(clip.PCM) != 8 || clip.SampleRate != cfg.TTS.SampleRate {
		t.Fatalf("unexpected clip %d Hz, %d bytes", clip.SampleRate, len(clip.PCM))
	}

	data, err := os.ReadFile(filepath.Join(dir, "llm-request.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"kind":"file"`) || !strings.Contains(string(data), "pasta") {
		t.Fatalf("unexpected llm request %s", data)
	}
}
