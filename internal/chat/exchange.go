package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/loqalabs/voicechat/internal/audio"
	"github.com/loqalabs/voicechat/internal/backend"
	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/conversation"
)

var (
	ErrEmptyInput           = errors.New("type a message or attach a file first")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrBusy                 = errors.New("still waiting for the previous reply")
)

// Backend performs one relay exchange.
type Backend interface {
	SendText(ctx context.Context, text string) (backend.Reply, error)
	SendFile(ctx context.Context, file backend.File, question string) (backend.Reply, error)
}

// AudioDecoder turns a reply's audio payload into a playable resource.
type AudioDecoder interface {
	Decode(payload string) (*audio.Resource, error)
}

// Notifier shows a message to the user.
type Notifier func(message string)

// Input is what the user submitted. File is optional.
type Input struct {
	Text string
	File *backend.File
}

// FileMarker is the message text shown for a file sent without a question.
func FileMarker(name string) string {
	return "📎 " + name
}

// Pipeline runs message exchanges against the active conversation.
type Pipeline struct {
	store    *Store
	backend  Backend
	audio    AudioDecoder
	notify   Notifier
	logger   *slog.Logger
	clock    func() time.Time
	question string
	busy     atomic.Bool
}

func NewPipeline(store *Store, be Backend, decoder AudioDecoder, notify Notifier, logger *slog.Logger) *Pipeline {
	if notify == nil {
		notify = func(string) {}
	}
	return &Pipeline{
		store:    store,
		backend:  be,
		audio:    decoder,
		notify:   notify,
		logger:   logger.With(slog.String("component", "exchange")),
		clock:    time.Now,
		question: config.DefaultQuestion,
	}
}

// Busy reports whether a reply is outstanding.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Send appends the user's message to the active conversation, performs one
// exchange and appends the reply. The reply lands in the conversation that
// was active when Send was called.
func (p *Pipeline) Send(ctx context.Context, in Input) error {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.File == nil {
		p.notify(ErrEmptyInput.Error())
		return ErrEmptyInput
	}
	active, ok := p.store.Active()
	if !ok {
		p.notify(ErrNoActiveConversation.Error())
		return ErrNoActiveConversation
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.notify(ErrBusy.Error())
		return ErrBusy
	}
	defer p.busy.Store(false)

	display := text
	if display == "" {
		display = FileMarker(in.File.Name)
	}
	p.store.Append(active.ID, conversation.Message{
		Role:      conversation.RoleUser,
		Text:      display,
		Timestamp: p.clock().UTC(),
	})

	var (
		reply backend.Reply
		err   error
	)
	if in.File != nil {
		question := text
		if question == "" {
			question = p.question
		}
		reply, err = p.backend.SendFile(ctx, *in.File, question)
	} else {
		reply, err = p.backend.SendText(ctx, text)
	}
	if err != nil {
		p.logger.Warn("exchange failed", slog.String("conversation", active.ID), slogError(err))
		p.notify("Error: " + err.Error())
		return fmt.Errorf("exchange: %w", err)
	}

	msg := conversation.Message{
		Role:      conversation.RoleAI,
		Text:      reply.Text,
		Timestamp: p.clock().UTC(),
	}
	if reply.AudioBase64 != "" {
		res, err := p.audio.Decode(reply.AudioBase64)
		if err != nil {
			p.logger.Warn("reply audio could not be decoded", slog.String("conversation", active.ID), slogError(err))
			p.notify("Error: " + err.Error())
			return fmt.Errorf("decode reply audio: %w", err)
		}
		msg.AudioURL = res.URL()
	}
	if !p.store.Append(active.ID, msg) {
		p.logger.Info("conversation removed before the reply arrived", slog.String("conversation", active.ID))
	}
	return nil
}
