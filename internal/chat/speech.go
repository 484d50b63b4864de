package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/voicechat/internal/protocol"
)

var ErrSpeechUnavailable = errors.New("speech recognition is not available")

// Transcriber is the relay's speech side.
type Transcriber interface {
	Capabilities(ctx context.Context) (protocol.Capabilities, error)
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Dictation turns recorded WAV clips into message text. Availability is
// decided once per session; when speech is missing the user is told once
// and every later call fails quietly.
type Dictation struct {
	transcriber Transcriber
	notify      Notifier
	logger      *slog.Logger

	once      sync.Once
	available bool
}

func NewDictation(t Transcriber, notify Notifier, logger *slog.Logger) *Dictation {
	if notify == nil {
		notify = func(string) {}
	}
	return &Dictation{
		transcriber: t,
		notify:      notify,
		logger:      logger.With(slog.String("component", "dictation")),
	}
}

// Available runs the capability check on first use.
func (d *Dictation) Available(ctx context.Context) bool {
	d.once.Do(func() {
		caps, err := d.transcriber.Capabilities(ctx)
		if err != nil {
			d.logger.Warn("capability check failed", slogError(err))
		}
		d.available = err == nil && caps.STT
		if !d.available {
			d.notify("Speech recognition is not available; dictation is disabled.")
		}
	})
	return d.available
}

// Transcribe returns the text spoken in wav.
func (d *Dictation) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if !d.Available(ctx) {
		return "", ErrSpeechUnavailable
	}
	text, err := d.transcriber.Transcribe(ctx, wav)
	if err != nil {
		d.notify("Error: " + err.Error())
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return text, nil
}
