package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewDefault(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewDefault(3, now)
	if c.Title != "New Chat 3" {
		t.Fatalf("unexpected title %q", c.Title)
	}
	if c.ID == "" {
		t.Fatal("expected id")
	}
	if !c.CreatedAt.Equal(now) {
		t.Fatalf("unexpected createdAt %v", c.CreatedAt)
	}
	if c.Messages == nil || len(c.Messages) != 0 {
		t.Fatalf("expected empty non-nil messages, got %v", c.Messages)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewIDFallsBackToTimestamp(t *testing.T) {
	orig := newRandom
	t.Cleanup(func() { newRandom = orig })
	newRandom = func() (uuid.UUID, error) { return uuid.Nil, errors.New("no entropy") }

	id := NewID()
	if id == "" {
		t.Fatal("expected fallback id")
	}
	if _, err := uuid.Parse(id); err == nil {
		t.Fatalf("expected timestamp id, got uuid %s", id)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	c := NewDefault(1, time.Now())
	c.Messages = append(c.Messages, Message{Role: RoleUser, Text: "hi"})
	cp := c.Clone()
	cp.Messages[0].Text = "changed"
	if c.Messages[0].Text != "hi" {
		t.Fatal("clone aliased the message slice")
	}
}
