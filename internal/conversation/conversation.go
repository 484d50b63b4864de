package conversation

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Role tags who authored a message.
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// Message is one turn of a conversation.
type Message struct {
	Role      Role      `json:"role" firestore:"role"`
	Text      string    `json:"text" firestore:"text"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
	// AudioURL is a local file handle and does not survive a restart.
	AudioURL string `json:"audioUrl,omitempty" firestore:"audioUrl,omitempty"`
}

// Conversation is a titled, ordered chat session.
type Conversation struct {
	ID        string    `json:"id" firestore:"id"`
	Title     string    `json:"title" firestore:"title"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
	Messages  []Message `json:"messages" firestore:"messages"`
}

// newRandom is swapped in tests to exercise the timestamp fallback.
var newRandom = uuid.NewRandom

// NewID returns a random identifier. If the random source fails it falls back
// to the current time in nanoseconds, which is not guaranteed to be unique.
func NewID() string {
	id, err := newRandom()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id.String()
}

// DefaultTitle returns the display title for the index-th default conversation.
func DefaultTitle(index int) string {
	return "New Chat " + strconv.Itoa(index)
}

// NewDefault builds an empty conversation titled "New Chat {index}".
func NewDefault(index int, now time.Time) Conversation {
	return Conversation{
		ID:        NewID(),
		Title:     DefaultTitle(index),
		CreatedAt: now,
		Messages:  []Message{},
	}
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// CloneAll deep-copies a slice of conversations.
func CloneAll(in []Conversation) []Conversation {
	out := make([]Conversation, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
