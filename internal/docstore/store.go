package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/conversation"
	_ "modernc.org/sqlite"
)

// ErrInvalidKey is returned when a user or conversation id is empty.
var ErrInvalidKey = errors.New("user id and conversation id must not be empty")

// Store keeps each user's conversations in SQLite, one row per conversation.
type Store struct {
	db  *sql.DB
	cfg config.StoreConfig
	log *slog.Logger
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log.With(slog.String("component", "docstore"))}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			s.log.Warn("docstore vacuum failed", slogError(err))
		}
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS conversations (
    user_id TEXT NOT NULL,
    id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    messages TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, id)
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_created ON conversations(user_id, created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init docstore schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so other tables can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert writes the full conversation record, replacing any previous one.
func (s *Store) Upsert(ctx context.Context, userID string, c conversation.Conversation) error {
	if userID == "" || c.ID == "" {
		return ErrInvalidKey
	}
	messages := c.Messages
	if messages == nil {
		messages = []conversation.Message{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations(user_id, id, title, created_at, messages, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, id) DO UPDATE SET
		   title=excluded.title, created_at=excluded.created_at,
		   messages=excluded.messages, updated_at=excluded.updated_at`,
		userID, c.ID, c.Title, c.CreatedAt.UTC().UnixNano(), string(payload), time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// Delete removes a conversation. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, userID, conversationID string) error {
	if userID == "" || conversationID == "" {
		return ErrInvalidKey
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ? AND id = ?`, userID, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// List returns every conversation of a user ordered by creation time ascending.
func (s *Store) List(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, messages FROM conversations
		 WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []conversation.Conversation{}
	for rows.Next() {
		var (
			c        conversation.Conversation
			created  int64
			messages string
		)
		if err := rows.Scan(&c.ID, &c.Title, &created, &messages); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(messages), &c.Messages); err != nil {
			return nil, fmt.Errorf("decode messages of %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
