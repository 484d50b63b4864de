package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, pcm []byte, sampleRate int, channels int) (TranscriptResult, error) {
	ms := 0
	if sampleRate > 0 && channels > 0 {
		ms = len(pcm) / 2 / channels * 1000 / sampleRate
	}
	return TranscriptResult{
		Text:       fmt.Sprintf("[transcript of %d ms of audio]", ms),
		Confidence: 0,
	}, nil
}
