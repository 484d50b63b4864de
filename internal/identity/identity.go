package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidEmail       = errors.New("email address is invalid")
	// ErrPopupUnavailable is returned for federated sign-in, which needs a browser.
	ErrPopupUnavailable = errors.New("federated popup sign-in is not available in this client")
)

// User is the signed-in identity. A nil *User means nobody is signed in.
type User struct {
	UID         string
	DisplayName string
	Email       string
	PhotoURL    string
}

// Provider is the identity collaborator the session controller listens to.
type Provider interface {
	// Subscribe calls fn with the current user immediately and on every change.
	Subscribe(fn func(*User)) (unsubscribe func())
	SignInWithPopup(ctx context.Context, providerID string) (*User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*User, error)
	Register(ctx context.Context, email, password, displayName string) (*User, error)
	SignOut(ctx context.Context) error
}
