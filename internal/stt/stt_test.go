package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestWAV(t *testing.T, samples []int16, sampleRate, channels int) []byte {
	t.Helper()
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := writePCMToWav(f, pcm, sampleRate, channels); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768, 42}
	clip, err := DecodeWAV(writeTestWAV(t, samples, 16000, 1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Fatalf("unexpected format %+v", clip)
	}
	if len(clip.PCM) != len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", len(samples)*2, len(clip.PCM))
	}
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(clip.PCM[i*2:]))
		if got != want {
			t.Fatalf("sample %d: got %d want %d", i, got, want)
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not audio")); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}

func TestMockRecognizerReportsDuration(t *testing.T) {
	pcm := make([]byte, 16000*2)
	res, err := NewMockRecognizer().Transcribe(context.Background(), pcm, 16000, 1)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "[transcript of 1000 ms of audio]" {
		t.Fatalf("unexpected transcript %q", res.Text)
	}
}
