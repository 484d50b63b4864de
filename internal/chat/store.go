package chat

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/voicechat/internal/conversation"
)

// Pusher receives the conversations a Store wants written to, or removed
// from, the remote replica.
type Pusher interface {
	Push(c conversation.Conversation)
	Remove(conversationID string)
}

// Store is the in-memory conversation collection. It always holds at least
// one conversation and ids are unique among the held conversations.
// Mutations are safe from any goroutine; the pusher sees writes in the order
// the mutations were applied.
type Store struct {
	// order is held from a mutation until its writes are handed to the
	// pusher. It is taken before mu.
	order    sync.Mutex
	mu       sync.Mutex
	items    []conversation.Conversation
	activeID string
	pusher   Pusher
	logger   *slog.Logger
	clock    func() time.Time
}

type pending struct {
	push   []conversation.Conversation
	remove []string
}

func NewStore(logger *slog.Logger) *Store {
	s := &Store{
		logger: logger.With(slog.String("component", "conversation-store")),
		clock:  time.Now,
	}
	s.resetLocked()
	return s
}

func (s *Store) createDefault(index int) conversation.Conversation {
	return conversation.NewDefault(index, s.clock().UTC())
}

// dispatch hands scheduled writes to the pusher after the lock is released.
func (s *Store) dispatch(p Pusher, work pending) {
	if p == nil {
		return
	}
	for _, id := range work.remove {
		p.Remove(id)
	}
	for _, c := range work.push {
		p.Push(c)
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) resetLocked() conversation.Conversation {
	fresh := s.createDefault(1)
	s.items = []conversation.Conversation{fresh}
	s.activeID = fresh.ID
	return fresh
}

// New starts an explicit new chat, makes it active and schedules its push.
// The title counter is the current count plus one, so titles can repeat
// after deletions.
func (s *Store) New() conversation.Conversation {
	s.order.Lock()
	defer s.order.Unlock()

	s.mu.Lock()
	c := s.createDefault(len(s.items) + 1)
	s.items = append(s.items, c)
	s.activeID = c.ID
	p := s.pusher
	s.mu.Unlock()

	s.dispatch(p, pending{push: []conversation.Conversation{c.Clone()}})
	return c.Clone()
}

// MutateMessages applies transform to a copy of the named conversation's
// messages. It reports false, and does nothing, when id is unknown.
func (s *Store) MutateMessages(id string, transform func([]conversation.Message) []conversation.Message) bool {
	s.order.Lock()
	defer s.order.Unlock()
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	updated := s.items[i].Clone()
	updated.Messages = transform(updated.Messages)
	if updated.Messages == nil {
		updated.Messages = []conversation.Message{}
	}
	s.items[i] = updated
	p := s.pusher
	s.mu.Unlock()

	s.dispatch(p, pending{push: []conversation.Conversation{updated.Clone()}})
	return true
}

// Append adds one message to the end of a conversation.
func (s *Store) Append(id string, msg conversation.Message) bool {
	return s.MutateMessages(id, func(in []conversation.Message) []conversation.Message {
		return append(in, msg)
	})
}

// Rename replaces the title. Blank titles are ignored.
func (s *Store) Rename(id, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return false
	}
	s.order.Lock()
	defer s.order.Unlock()
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	updated := s.items[i].Clone()
	updated.Title = title
	s.items[i] = updated
	p := s.pusher
	s.mu.Unlock()

	s.dispatch(p, pending{push: []conversation.Conversation{updated.Clone()}})
	return true
}

// Clear empties a conversation's messages.
func (s *Store) Clear(id string) bool {
	return s.MutateMessages(id, func([]conversation.Message) []conversation.Message {
		return []conversation.Message{}
	})
}

// Delete removes a conversation and schedules its remote deletion. Deleting
// the last conversation installs a fresh "New Chat 1" as active.
func (s *Store) Delete(id string) bool {
	s.order.Lock()
	defer s.order.Unlock()
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	work := pending{remove: []string{id}}
	if len(s.items) == 0 {
		fresh := s.createDefault(1)
		s.items = []conversation.Conversation{fresh}
		s.activeID = fresh.ID
		work.push = append(work.push, fresh.Clone())
	} else if s.activeID == id {
		s.activeID = s.items[0].ID
	}
	p := s.pusher
	s.mu.Unlock()

	s.dispatch(p, work)
	return true
}

// SetActive selects a conversation. Unknown ids are logged and ignored.
func (s *Store) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		s.logger.Warn("ignoring selection of unknown conversation", slog.String("conversation", id))
		return false
	}
	s.activeID = id
	return true
}

// Reset discards every conversation, detaches the pusher and installs one
// fresh default conversation as active.
func (s *Store) Reset() conversation.Conversation {
	s.order.Lock()
	defer s.order.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pusher = nil
	return s.resetLocked().Clone()
}

// ApplyRemote replaces the whole collection with a replica snapshot and
// attaches p as the pusher for subsequent mutations. An empty snapshot
// installs a default conversation and pushes it. The active id survives when
// the snapshot still contains it; otherwise the oldest conversation wins.
func (s *Store) ApplyRemote(set []conversation.Conversation, p Pusher) {
	items := conversation.CloneAll(set)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	s.order.Lock()
	defer s.order.Unlock()
	s.mu.Lock()
	s.pusher = p
	var work pending
	if len(items) == 0 {
		fresh := s.resetLocked()
		work.push = append(work.push, fresh.Clone())
	} else {
		for i := range items {
			if items[i].Messages == nil {
				items[i].Messages = []conversation.Message{}
			}
		}
		s.items = items
		if s.indexLocked(s.activeID) < 0 {
			s.activeID = items[0].ID
		}
	}
	s.mu.Unlock()

	s.dispatch(p, work)
}

// List returns a snapshot of every conversation in display order.
func (s *Store) List() []conversation.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conversation.CloneAll(s.items)
}

// Get returns a snapshot of one conversation.
func (s *Store) Get(id string) (conversation.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return conversation.Conversation{}, false
	}
	return s.items[i].Clone(), true
}

// Active returns a snapshot of the active conversation.
func (s *Store) Active() (conversation.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(s.activeID)
	if i < 0 {
		return conversation.Conversation{}, false
	}
	return s.items[i].Clone(), true
}

func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
