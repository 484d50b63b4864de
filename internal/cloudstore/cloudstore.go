// Package cloudstore keeps a user's conversations in Cloud Firestore under
// users/{uid}/chats/{conversationID}.
package cloudstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"github.com/loqalabs/voicechat/internal/conversation"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	usersCollection = "users"
	chatsCollection = "chats"
	orderField      = "createdAt"
)

type Store struct {
	client *firestore.Client
	logger *slog.Logger
}

// Open connects to projectID. credentialsFile may be empty to use the
// ambient application default credentials or FIRESTORE_EMULATOR_HOST.
func Open(ctx context.Context, projectID, credentialsFile string, logger *slog.Logger) (*Store, error) {
	if projectID == "" {
		return nil, errors.New("cloudstore: project id is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{
		client: client,
		logger: logger.With(slog.String("component", "cloudstore")),
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) chats(userID string) *firestore.CollectionRef {
	return s.client.Collection(usersCollection).Doc(userID).Collection(chatsCollection)
}

// Upsert overwrites the whole conversation document.
func (s *Store) Upsert(ctx context.Context, userID string, c conversation.Conversation) error {
	if userID == "" || c.ID == "" {
		return errors.New("cloudstore: user and conversation id are required")
	}
	if c.Messages == nil {
		c.Messages = []conversation.Message{}
	}
	if _, err := s.chats(userID).Doc(c.ID).Set(ctx, c); err != nil {
		return fmt.Errorf("set %s: %w", c.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID, conversationID string) error {
	if userID == "" || conversationID == "" {
		return errors.New("cloudstore: user and conversation id are required")
	}
	if _, err := s.chats(userID).Doc(conversationID).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", conversationID, err)
	}
	return nil
}

// Watch streams the user's chats ordered by creation time until ctx is
// done. Every snapshot carries the complete collection.
func (s *Store) Watch(ctx context.Context, userID string, onChange func([]conversation.Conversation)) error {
	it := s.chats(userID).OrderBy(orderField, firestore.Asc).Snapshots(ctx)
	defer it.Stop()

	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return ctx.Err()
			}
			return fmt.Errorf("watch chats: %w", err)
		}
		docs, err := snap.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("read chats snapshot: %w", err)
		}
		convs := make([]conversation.Conversation, 0, len(docs))
		for _, doc := range docs {
			var c conversation.Conversation
			if err := doc.DataTo(&c); err != nil {
				s.logger.Warn("skipping unreadable chat document", slog.String("doc", doc.Ref.ID), slog.String("error", err.Error()))
				continue
			}
			if c.ID == "" {
				c.ID = doc.Ref.ID
			}
			if c.Messages == nil {
				c.Messages = []conversation.Message{}
			}
			convs = append(convs, c)
		}
		onChange(convs)
	}
}
