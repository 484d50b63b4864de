package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/loqalabs/voicechat/internal/protocol"
)

// HTTPProvider signs in against the relay's /api/auth endpoints and keeps the
// current user in memory for the life of the process.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	users   watchers
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *HTTPProvider) Subscribe(fn func(*User)) func() {
	return p.users.subscribe(fn)
}

// Current returns the signed-in user or nil.
func (p *HTTPProvider) Current() *User {
	return p.users.get()
}

func (p *HTTPProvider) SignInWithPopup(context.Context, string) (*User, error) {
	return nil, ErrPopupUnavailable
}

func (p *HTTPProvider) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	return p.authenticate(ctx, "/api/auth/login", protocol.Credentials{Email: email, Password: password})
}

func (p *HTTPProvider) Register(ctx context.Context, email, password, displayName string) (*User, error) {
	return p.authenticate(ctx, "/api/auth/register", protocol.Credentials{Email: email, Password: password, DisplayName: displayName})
}

func (p *HTTPProvider) SignOut(context.Context) error {
	if p.users.get() == nil {
		return nil
	}
	p.users.set(nil)
	return nil
}

func (p *HTTPProvider) authenticate(ctx context.Context, path string, creds protocol.Credentials) (*User, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e protocol.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, errors.New(e.Error)
		}
		return nil, fmt.Errorf("identity request failed: %s", resp.Status)
	}
	var wire protocol.User
	if err := json.Unmarshal(data, &wire); err != nil || wire.UID == "" {
		return nil, errors.New("identity response is malformed")
	}
	user := &User{UID: wire.UID, DisplayName: wire.DisplayName, Email: wire.Email, PhotoURL: wire.PhotoURL}
	p.users.set(user)
	return copyUser(user), nil
}

// ToWire converts a user to its JSON representation.
func ToWire(u *User) protocol.User {
	return protocol.User{UID: u.UID, DisplayName: u.DisplayName, Email: u.Email, PhotoURL: u.PhotoURL}
}
