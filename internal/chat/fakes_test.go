package chat

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/voicechat/internal/conversation"
	"github.com/loqalabs/voicechat/internal/identity"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPusher struct {
	mu      sync.Mutex
	pushed  []conversation.Conversation
	removed []string
}

func (p *recordingPusher) Push(c conversation.Conversation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, c)
}

func (p *recordingPusher) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, id)
}

func (p *recordingPusher) snapshot() ([]conversation.Conversation, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]conversation.Conversation(nil), p.pushed...), append([]string(nil), p.removed...)
}

type fakeRemote struct {
	mu        sync.Mutex
	upserts   []conversation.Conversation
	deletes   []string
	upsertErr error
	watchErr  error
	watches   chan func([]conversation.Conversation)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{watches: make(chan func([]conversation.Conversation), 4)}
}

func (r *fakeRemote) Upsert(_ context.Context, _ string, c conversation.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts = append(r.upserts, c)
	return nil
}

func (r *fakeRemote) Delete(_ context.Context, _ string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, id)
	return nil
}

func (r *fakeRemote) Watch(ctx context.Context, _ string, onChange func([]conversation.Conversation)) error {
	r.mu.Lock()
	err := r.watchErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.watches <- onChange
	<-ctx.Done()
	return ctx.Err()
}

func (r *fakeRemote) written() ([]conversation.Conversation, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]conversation.Conversation(nil), r.upserts...), append([]string(nil), r.deletes...)
}

func (r *fakeRemote) nextWatch(t *testing.T) func([]conversation.Conversation) {
	t.Helper()
	select {
	case fn := <-r.watches:
		return fn
	case <-time.After(2 * time.Second):
		t.Fatal("remote watch was not started")
		return nil
	}
}

type fakeProvider struct {
	mu      sync.Mutex
	current *identity.User
	fn      func(*identity.User)
}

func (p *fakeProvider) Subscribe(fn func(*identity.User)) func() {
	p.mu.Lock()
	p.fn = fn
	current := p.current
	p.mu.Unlock()
	fn(current)
	return func() {
		p.mu.Lock()
		p.fn = nil
		p.mu.Unlock()
	}
}

func (p *fakeProvider) set(u *identity.User) {
	p.mu.Lock()
	p.current = u
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

func (p *fakeProvider) SignInWithPopup(context.Context, string) (*identity.User, error) {
	return nil, identity.ErrPopupUnavailable
}

func (p *fakeProvider) SignInWithPassword(context.Context, string, string) (*identity.User, error) {
	return nil, identity.ErrInvalidCredentials
}

func (p *fakeProvider) Register(context.Context, string, string, string) (*identity.User, error) {
	return nil, identity.ErrInvalidCredentials
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.set(nil)
	return nil
}

func remoteSet(base time.Time, titles ...string) []conversation.Conversation {
	out := make([]conversation.Conversation, 0, len(titles))
	for i, title := range titles {
		c := conversation.NewDefault(i+1, base.Add(time.Duration(i)*time.Minute))
		c.Title = title
		c.Messages = append(c.Messages, conversation.Message{Role: conversation.RoleUser, Text: title + " question", Timestamp: c.CreatedAt})
		out = append(out, c)
	}
	return out
}

func ids(convs []conversation.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}

func requireUniqueIDs(t *testing.T, convs []conversation.Conversation) {
	t.Helper()
	seen := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		_, dup := seen[c.ID]
		require.False(t, dup, "duplicate id %s", c.ID)
		seen[c.ID] = struct{}{}
	}
}
