package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
	"github.com/loqalabs/voicechat/internal/execcmd"
)

type execSynth struct {
	cmd        *execcmd.Command
	sampleRate int
	channels   int
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execChunk struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecSynth runs command once per reply. The helper reads one JSON request
// on stdin and writes either a complete WAV file or newline-delimited
// {"pcm_base64", "final"} objects carrying 16-bit PCM at the configured
// format. A WAV answer carries its own format.
func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	cmd, err := execcmd.Parse("tts", command)
	if err != nil {
		return nil, err
	}
	return &execSynth{cmd: cmd, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	schunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(schunks)
		defer close(errs)

		chunks, err := e.run(ctx, req)
		if err != nil {
			errs <- err
			return
		}
		for _, chunk := range chunks {
			select {
			case schunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return schunks, errs
}

func (e *execSynth) run(ctx context.Context, req SynthRequest) ([]SynthChunk, error) {
	input, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      req.Voice,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return nil, err
	}
	output, err := e.cmd.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	if isWAV(output) {
		a, err := decodeWAV(output)
		if err != nil {
			return nil, err
		}
		return []SynthChunk{{SampleRate: a.SampleRate, Channels: a.Channels, PCM: a.PCM, Final: true}}, nil
	}
	return e.parseChunks(output)
}

func (e *execSynth) parseChunks(output []byte) ([]SynthChunk, error) {
	var chunks []SynthChunk
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var resp execChunk
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("decode tts exec chunk: %w", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			return nil, fmt.Errorf("decode tts exec pcm: %w", err)
		}
		chunks = append(chunks, SynthChunk{
			Sequence:   len(chunks),
			SampleRate: e.sampleRate,
			Channels:   e.channels,
			PCM:        pcm,
			Final:      resp.Final,
		})
		if resp.Final {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func decodeWAV(data []byte) (Audio, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() || dec.BitDepth != 16 || dec.WavAudioFormat != 1 {
		return Audio{}, errors.New("tts helper wrote a WAV that is not 16-bit PCM")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Audio{}, fmt.Errorf("decode tts wav: %w", err)
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sample)))
	}
	return Audio{PCM: pcm, SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}, nil
}
