package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/voicechat/internal/conversation"
	"github.com/sourcegraph/conc"
)

// Remote is the per-user replica of the conversation collection.
type Remote interface {
	Upsert(ctx context.Context, userID string, c conversation.Conversation) error
	Delete(ctx context.Context, userID, conversationID string) error
	// Watch delivers the ordered collection whenever it changes and blocks
	// until ctx is done or the subscription fails.
	Watch(ctx context.Context, userID string, onChange func([]conversation.Conversation)) error
}

type SyncState string

const (
	StateUnsubscribed SyncState = "unsubscribed"
	StateLoading      SyncState = "loading"
	StateSynced       SyncState = "synced"
	StateFailed       SyncState = "error"
)

type remoteOp struct {
	conversation   conversation.Conversation
	conversationID string
	remove         bool
}

// Bridge mirrors one user's conversations between a Store and a Remote.
// Writes are issued by a single worker in scheduling order; failed writes
// are logged and dropped.
type Bridge struct {
	remote  Remote
	store   *Store
	userID  string
	logger  *slog.Logger
	timeout time.Duration

	watchCtx    context.Context
	cancelWatch context.CancelFunc
	wg          conc.WaitGroup

	// applyMu orders snapshot application against teardown.
	applyMu sync.Mutex
	stopped bool

	mu       sync.Mutex
	queue    []remoteOp
	inflight sync.WaitGroup
	wake     chan struct{}
	closed   bool
	state    SyncState
	lastErr  error
	onState  func(SyncState)
}

type BridgeOption func(*Bridge)

// WithWriteTimeout bounds each remote write.
func WithWriteTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithStateListener is called after every state transition. fn runs on the
// goroutine that caused the transition and must not call back into the
// Controller that owns the bridge.
func WithStateListener(fn func(SyncState)) BridgeOption {
	return func(b *Bridge) { b.onState = fn }
}

// NewBridge starts the write worker. Call Subscribe to begin receiving
// snapshots and Close to tear the bridge down.
func NewBridge(parent context.Context, remote Remote, store *Store, userID string, logger *slog.Logger, opts ...BridgeOption) *Bridge {
	ctx, cancel := context.WithCancel(parent)
	b := &Bridge{
		remote:      remote,
		store:       store,
		userID:      userID,
		logger:      logger.With(slog.String("component", "sync-bridge"), slog.String("user", userID)),
		timeout:     5 * time.Second,
		watchCtx:    ctx,
		cancelWatch: cancel,
		wake:        make(chan struct{}, 1),
		state:       StateUnsubscribed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.wg.Go(b.writeLoop)
	return b
}

func (b *Bridge) UserID() string { return b.userID }

func (b *Bridge) State() SyncState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the error that moved the bridge into StateFailed.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *Bridge) setState(state SyncState, err error) {
	b.mu.Lock()
	if b.state == state && err == nil {
		b.mu.Unlock()
		return
	}
	b.state = state
	if err != nil {
		b.lastErr = err
	}
	fn := b.onState
	b.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// Push schedules a full-record write of c.
func (b *Bridge) Push(c conversation.Conversation) {
	b.enqueue(remoteOp{conversation: c.Clone(), conversationID: c.ID})
}

// Remove schedules deletion of the remote record. Local state is not touched.
func (b *Bridge) Remove(conversationID string) {
	b.enqueue(remoteOp{conversationID: conversationID, remove: true})
}

func (b *Bridge) enqueue(op remoteOp) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Debug("dropping write scheduled after teardown", slog.String("conversation", op.conversationID))
		return
	}
	b.queue = append(b.queue, op)
	b.inflight.Add(1)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) next() (remoteOp, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return remoteOp{}, false
	}
	op := b.queue[0]
	b.queue = b.queue[1:]
	return op, true
}

func (b *Bridge) writeLoop() {
	for {
		for {
			op, ok := b.next()
			if !ok {
				break
			}
			b.write(op)
			b.inflight.Done()
		}
		b.mu.Lock()
		done := b.closed && len(b.queue) == 0
		b.mu.Unlock()
		if done {
			return
		}
		<-b.wake
	}
}

// write runs detached from the watch context so that writes scheduled
// before logout still reach the replica.
func (b *Bridge) write(op remoteOp) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if op.remove {
		if err := b.remote.Delete(ctx, b.userID, op.conversationID); err != nil {
			b.logger.Warn("remote delete failed", slog.String("conversation", op.conversationID), slogError(err))
		}
		return
	}
	if err := b.remote.Upsert(ctx, b.userID, op.conversation); err != nil {
		b.logger.Warn("remote push failed", slog.String("conversation", op.conversationID), slogError(err))
	}
}

// Flush waits until every write scheduled so far has been attempted.
func (b *Bridge) Flush() {
	b.inflight.Wait()
}

// Subscribe starts watching the replica. The first snapshot attaches the
// bridge to the store as its pusher.
func (b *Bridge) Subscribe() {
	b.setState(StateLoading, nil)
	b.wg.Go(func() {
		err := b.remote.Watch(b.watchCtx, b.userID, b.apply)
		if b.watchCtx.Err() != nil {
			return
		}
		if err != nil {
			b.logger.Error("conversation subscription failed", slogError(err))
			b.setState(StateFailed, err)
			return
		}
		b.logger.Warn("conversation subscription ended")
	})
}

func (b *Bridge) apply(set []conversation.Conversation) {
	b.applyMu.Lock()
	defer b.applyMu.Unlock()
	if b.stopped {
		return
	}
	b.store.ApplyRemote(set, b)
	b.setState(StateSynced, nil)
}

// Close stops the subscription immediately. Snapshots delivered afterwards
// are discarded. Writes already scheduled are still drained by the worker.
func (b *Bridge) Close() {
	b.applyMu.Lock()
	b.stopped = true
	b.cancelWatch()
	b.applyMu.Unlock()

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
	b.setState(StateUnsubscribed, nil)
}

// Wait blocks until the watcher and the write worker have exited. It must
// be called after Close.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
