package chat

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/voicechat/internal/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreHoldsOneDefaultConversation(t *testing.T) {
	s := NewStore(testLogger())

	all := s.List()
	require.Len(t, all, 1)
	assert.Equal(t, "New Chat 1", all[0].Title)
	assert.Empty(t, all[0].Messages)
	assert.Equal(t, all[0].ID, s.ActiveID())
}

func TestNewUsesCountPlusOneAndActivates(t *testing.T) {
	s := NewStore(testLogger())
	p := &recordingPusher{}
	s.ApplyRemote(nil, p)

	c := s.New()
	assert.Equal(t, "New Chat 2", c.Title)
	assert.Equal(t, c.ID, s.ActiveID())

	pushed, _ := p.snapshot()
	require.Len(t, pushed, 2)
	assert.Equal(t, c.ID, pushed[1].ID)
}

func TestStoreNeverEmptyAndIDsUnique(t *testing.T) {
	s := NewStore(testLogger())
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		all := s.List()
		if rng.Intn(3) == 0 {
			s.New()
		} else {
			victim := all[rng.Intn(len(all))]
			require.True(t, s.Delete(victim.ID))
		}
		after := s.List()
		require.NotEmpty(t, after)
		requireUniqueIDs(t, after)
		_, ok := s.Active()
		require.True(t, ok, "active conversation must exist")
	}
}

func TestDeleteLastInstallsFreshDefault(t *testing.T) {
	s := NewStore(testLogger())
	p := &recordingPusher{}
	s.ApplyRemote(remoteSet(time.Now(), "only"), p)
	only := s.List()[0]

	require.True(t, s.Delete(only.ID))

	all := s.List()
	require.Len(t, all, 1)
	assert.NotEqual(t, only.ID, all[0].ID)
	assert.Equal(t, "New Chat 1", all[0].Title)
	assert.Equal(t, all[0].ID, s.ActiveID())

	pushed, removed := p.snapshot()
	assert.Equal(t, []string{only.ID}, removed)
	require.Len(t, pushed, 1)
	assert.Equal(t, all[0].ID, pushed[0].ID)
}

func TestDeleteActiveSelectsFirstRemaining(t *testing.T) {
	s := NewStore(testLogger())
	first := s.List()[0]
	second := s.New()

	require.True(t, s.Delete(second.ID))
	assert.Equal(t, first.ID, s.ActiveID())
	assert.False(t, s.Delete(second.ID))
}

func TestRenameRejectsBlankTitles(t *testing.T) {
	s := NewStore(testLogger())
	id := s.ActiveID()

	for _, blank := range []string{"", "   ", "\t\n"} {
		assert.False(t, s.Rename(id, blank))
		c, _ := s.Get(id)
		assert.Equal(t, "New Chat 1", c.Title)
	}

	require.True(t, s.Rename(id, "  Trip planning "))
	c, _ := s.Get(id)
	assert.Equal(t, "Trip planning", c.Title)
}

func TestMutateMessagesDoesNotAliasSnapshots(t *testing.T) {
	s := NewStore(testLogger())
	id := s.ActiveID()
	require.True(t, s.Append(id, conversation.Message{Role: conversation.RoleUser, Text: "one"}))

	before, _ := s.Get(id)
	require.True(t, s.Append(id, conversation.Message{Role: conversation.RoleAI, Text: "two"}))

	assert.Len(t, before.Messages, 1)
	after, _ := s.Get(id)
	require.Len(t, after.Messages, 2)
	assert.Equal(t, before.Messages[0], after.Messages[0])

	assert.False(t, s.Append("missing", conversation.Message{Text: "x"}))
}

func TestClearEmptiesMessages(t *testing.T) {
	s := NewStore(testLogger())
	id := s.ActiveID()
	s.Append(id, conversation.Message{Role: conversation.RoleUser, Text: "one"})

	require.True(t, s.Clear(id))
	c, _ := s.Get(id)
	assert.NotNil(t, c.Messages)
	assert.Empty(t, c.Messages)
}

func TestSetActiveIgnoresUnknownID(t *testing.T) {
	s := NewStore(testLogger())
	id := s.ActiveID()

	assert.False(t, s.SetActive("nope"))
	assert.Equal(t, id, s.ActiveID())
}

func TestAnonymousStoreDoesNotPush(t *testing.T) {
	s := NewStore(testLogger())
	p := &recordingPusher{}
	s.ApplyRemote(remoteSet(time.Now(), "a"), p)
	s.Reset()

	s.New()
	s.Rename(s.ActiveID(), "renamed")

	pushed, _ := p.snapshot()
	assert.Empty(t, pushed)
}

func TestApplyRemoteReplacesCollection(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	set := remoteSet(base, "a", "b", "c")

	s := NewStore(testLogger())
	s.ApplyRemote(set, &recordingPusher{})
	require.True(t, s.SetActive(set[1].ID))

	next := []conversation.Conversation{set[2], set[1]}
	s.ApplyRemote(next, &recordingPusher{})

	assert.Equal(t, []string{set[1].ID, set[2].ID}, ids(s.List()))
	assert.Equal(t, set[1].ID, s.ActiveID(), "active id survives when still present")

	s.ApplyRemote([]conversation.Conversation{set[2], set[0]}, &recordingPusher{})
	assert.Equal(t, set[0].ID, s.ActiveID(), "oldest conversation becomes active")
}

func TestApplyRemoteEmptySetSelfHeals(t *testing.T) {
	s := NewStore(testLogger())
	s.New()
	p := &recordingPusher{}

	s.ApplyRemote([]conversation.Conversation{}, p)

	all := s.List()
	require.Len(t, all, 1)
	assert.Equal(t, "New Chat 1", all[0].Title)
	assert.Equal(t, all[0].ID, s.ActiveID())

	pushed, _ := p.snapshot()
	require.Len(t, pushed, 1)
	assert.Equal(t, all[0].ID, pushed[0].ID)
}

func TestConcurrentMutationsReachPusherInOrder(t *testing.T) {
	s := NewStore(testLogger())
	p := &recordingPusher{}
	s.ApplyRemote(nil, p)
	id := s.ActiveID()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Append(id, conversation.Message{Role: conversation.RoleUser, Text: "x"})
			}
		}()
	}
	wg.Wait()

	pushed, _ := p.snapshot()
	// the first push is the default installed by the empty snapshot
	require.Len(t, pushed, 1+writers*perWriter)
	for i, c := range pushed {
		require.Len(t, c.Messages, i, "push %d carried a stale record", i)
	}
	final, ok := s.Get(id)
	require.True(t, ok)
	assert.Len(t, final.Messages, writers*perWriter)
}
