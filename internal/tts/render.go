package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNoAudio is returned when a synthesizer finishes without producing PCM.
var ErrNoAudio = errors.New("synthesizer produced no audio")

// Audio is a complete synthesized utterance.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Collect drains a synthesis into one PCM buffer.
func Collect(ctx context.Context, synth Synthesizer, req SynthRequest) (Audio, error) {
	chunks, errs := synth.Synthesize(ctx, req)
	var out Audio
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			out.PCM = append(out.PCM, chunk.PCM...)
			out.SampleRate = chunk.SampleRate
			out.Channels = chunk.Channels
		case err, ok := <-errs:
			if ok && err != nil {
				return Audio{}, err
			}
			errs = nil
		case <-ctx.Done():
			return Audio{}, ctx.Err()
		}
	}
	if len(out.PCM) == 0 {
		return Audio{}, ErrNoAudio
	}
	return out, nil
}

// Render synthesizes req and returns it packaged as a WAV file.
func Render(ctx context.Context, synth Synthesizer, req SynthRequest) ([]byte, error) {
	a, err := Collect(ctx, synth, req)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(a.PCM, a.SampleRate, a.Channels)
}

// EncodeWAV wraps 16-bit little-endian PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid audio format %d Hz x %d", sampleRate, channels)
	}
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(pcm)/2),
	}
	for i := range buffer.Data {
		buffer.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	// the encoder needs to seek back to patch the header sizes
	file, err := os.CreateTemp("", "voicechat_tts_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return os.ReadFile(file.Name())
}
