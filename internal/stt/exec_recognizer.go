package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/execcmd"
)

type execRecognizer struct {
	cmd *execcmd.Command
	cfg config.STTConfig
}

type execResult struct {
	Text       *string `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewExecRecognizer runs cfg.Command once per upload. The placeholders
// {audio}, {model} and {language} are substituted in the arguments. Without
// an {audio} placeholder the WAV clip is written to the helper's stdin.
// The helper prints {"text", "confidence"} or the bare transcript.
func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	cmd, err := execcmd.Parse("stt", cfg.Command)
	if err != nil {
		return nil, err
	}
	return &execRecognizer{cmd: cmd, cfg: cfg}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int) (TranscriptResult, error) {
	file, err := os.CreateTemp("", "voicechat_stt_*.wav")
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, sampleRate, channels); err != nil {
		return TranscriptResult{}, err
	}

	args, usesFile := r.cmd.Expand(map[string]string{
		"audio":    file.Name(),
		"model":    r.cfg.ModelPath,
		"language": r.cfg.Language,
	})
	var stdin []byte
	if !usesFile {
		if stdin, err = os.ReadFile(file.Name()); err != nil {
			return TranscriptResult{}, fmt.Errorf("read stt clip: %w", err)
		}
	}

	output, err := r.cmd.RunArgs(ctx, args, stdin)
	if err != nil {
		return TranscriptResult{}, err
	}
	return parseExecResult(output)
}

func parseExecResult(output []byte) (TranscriptResult, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var resp execResult
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return TranscriptResult{}, fmt.Errorf("decode stt response: %w", err)
		}
		if resp.Text == nil {
			return TranscriptResult{}, fmt.Errorf("stt response has no text")
		}
		return TranscriptResult{Text: *resp.Text, Confidence: resp.Confidence}, nil
	}
	return TranscriptResult{Text: string(trimmed)}, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
