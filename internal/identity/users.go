package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Users is the relay's minimal email/password account table.
type Users struct {
	db    *sql.DB
	cost  int
	clock func() time.Time
}

// NewUsers creates the users table on db if needed.
func NewUsers(ctx context.Context, db *sql.DB) (*Users, error) {
	ddl := `
CREATE TABLE IF NOT EXISTS users (
    uid TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT NOT NULL,
    photo_url TEXT NOT NULL DEFAULT '',
    password_hash BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("init users schema: %w", err)
	}
	return &Users{db: db, cost: bcrypt.DefaultCost, clock: time.Now}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register creates an account. The display name defaults to the email's local part.
func (u *Users) Register(ctx context.Context, email, password, displayName string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var exists int
	if err := u.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = ?`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailTaken
	}

	user := &User{UID: uuid.NewString(), DisplayName: displayName, Email: email}
	_, err = u.db.ExecContext(ctx,
		`INSERT INTO users(uid, email, display_name, photo_url, password_hash, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		user.UID, user.Email, user.DisplayName, user.PhotoURL, hash, u.clock().UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// Authenticate checks an email/password pair.
func (u *Users) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	var (
		user User
		hash []byte
	)
	err = u.db.QueryRowContext(ctx,
		`SELECT uid, email, display_name, photo_url, password_hash FROM users WHERE email = ?`, email).
		Scan(&user.UID, &user.Email, &user.DisplayName, &user.PhotoURL, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}
