package chat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/loqalabs/voicechat/internal/identity"
)

// Controller follows the identity provider and decides whether the store
// is anonymous-local or mirrored to a user's replica.
type Controller struct {
	parent  context.Context
	store   *Store
	remote  Remote
	logger  *slog.Logger
	options []BridgeOption

	mu          sync.Mutex
	user        *identity.User
	bridge      *Bridge
	unsubscribe func()
}

// NewController binds store to remote. A nil remote keeps every session
// local even when a user is signed in.
func NewController(ctx context.Context, store *Store, remote Remote, logger *slog.Logger, opts ...BridgeOption) *Controller {
	return &Controller{
		parent:  ctx,
		store:   store,
		remote:  remote,
		logger:  logger.With(slog.String("component", "session")),
		options: opts,
	}
}

// Attach subscribes to provider. The provider reports the current user
// immediately, so the store is reset or subscribed before Attach returns.
func (c *Controller) Attach(provider identity.Provider) {
	unsubscribe := provider.Subscribe(c.handleUser)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
}

func (c *Controller) handleUser(u *identity.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u == nil {
		c.teardownLocked()
		c.store.Reset()
		if c.user != nil {
			c.logger.Info("signed out; conversations are local only")
		}
		c.user = nil
		return
	}

	if c.user != nil && c.user.UID == u.UID {
		cp := *u
		c.user = &cp
		return
	}

	// Switching straight from one user to another must not carry the
	// previous user's conversations into the new scope.
	if c.user != nil {
		c.teardownLocked()
		c.store.Reset()
	}
	cp := *u
	c.user = &cp
	if c.remote == nil {
		c.logger.Info("signed in without a remote store", slog.String("user", u.UID))
		return
	}
	c.bridge = NewBridge(c.parent, c.remote, c.store, u.UID, c.logger, c.options...)
	c.bridge.Subscribe()
	c.logger.Info("signed in; syncing conversations", slog.String("user", u.UID))
}

func (c *Controller) teardownLocked() {
	if c.bridge == nil {
		return
	}
	c.bridge.Close()
	c.bridge = nil
}

// User returns a copy of the signed-in user, or nil.
func (c *Controller) User() *identity.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	cp := *c.user
	return &cp
}

// SyncState reports the state of the current bridge.
func (c *Controller) SyncState() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bridge == nil {
		return StateUnsubscribed
	}
	return c.bridge.State()
}

// Loading reports whether the first snapshot is still outstanding.
func (c *Controller) Loading() bool {
	return c.SyncState() == StateLoading
}

// Flush waits for the current bridge's scheduled writes.
func (c *Controller) Flush() {
	c.mu.Lock()
	b := c.bridge
	c.mu.Unlock()
	if b != nil {
		b.Flush()
	}
}

// Close unsubscribes from the provider and tears down any bridge, waiting
// for pending writes to drain.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	b := c.bridge
	c.bridge = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if b != nil {
		b.Close()
		b.Wait()
	}
}
