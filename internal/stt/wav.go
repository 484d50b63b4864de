package stt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned for uploads that are not 16-bit PCM WAV files.
var ErrInvalidWAV = errors.New("audio must be a 16-bit PCM WAV file")

// Clip is decoded upload audio.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// DecodeWAV extracts 16-bit little-endian PCM from a WAV file.
func DecodeWAV(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	if dec.BitDepth != 16 || dec.WavAudioFormat != 1 {
		return Clip{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode wav: %w", err)
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(sample)))
	}
	return Clip{
		PCM:        pcm,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}
