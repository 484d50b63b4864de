package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/voicechat/internal/bus"
	"github.com/loqalabs/voicechat/internal/conversation"
	"github.com/loqalabs/voicechat/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Client reaches a docstore Service over the bus. It satisfies the remote
// replica contract used by the chat sync bridge.
type Client struct {
	conn    *nats.Conn
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(busClient *bus.Client, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		conn:    busClient.Conn(),
		timeout: timeout,
		logger:  logger.With(slog.String("component", "docstore-client")),
	}
}

func (c *Client) Upsert(ctx context.Context, userID string, conv conversation.Conversation) error {
	var ack protocol.AckReply
	if err := c.request(ctx, protocol.SubjectStoreUpsert, protocol.UpsertRequest{UserID: userID, Conversation: conv}, &ack); err != nil {
		return err
	}
	if ack.Error != "" {
		return fmt.Errorf("docstore upsert: %s", ack.Error)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, userID, conversationID string) error {
	var ack protocol.AckReply
	if err := c.request(ctx, protocol.SubjectStoreDelete, protocol.DeleteRequest{UserID: userID, ConversationID: conversationID}, &ack); err != nil {
		return err
	}
	if ack.Error != "" {
		return fmt.Errorf("docstore delete: %s", ack.Error)
	}
	return nil
}

// List fetches the user's conversations ordered by creation time.
func (c *Client) List(ctx context.Context, userID string) ([]conversation.Conversation, error) {
	var reply protocol.ListReply
	if err := c.request(ctx, protocol.SubjectStoreList, protocol.ListRequest{UserID: userID}, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("docstore list: %s", reply.Error)
	}
	if reply.Conversations == nil {
		reply.Conversations = []conversation.Conversation{}
	}
	return reply.Conversations, nil
}

// Watch delivers the full ordered collection once on start and again after
// every change notice, until ctx is cancelled or a fetch fails. Notices that
// arrive while a fetch is running collapse into one refetch.
func (c *Client) Watch(ctx context.Context, userID string, onChange func([]conversation.Conversation)) error {
	pending := make(chan struct{}, 1)
	sub, err := c.conn.Subscribe(protocol.ChangedSubject(userID), func(*nats.Msg) {
		select {
		case pending <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe change feed: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("flush change subscription: %w", err)
	}

	deliver := func() error {
		items, err := c.List(ctx, userID)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		onChange(items)
		return nil
	}

	if err := deliver(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			if err := deliver(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func (c *Client) request(ctx context.Context, subject string, payload, reply any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("docstore unavailable: %w", err)
		}
		return fmt.Errorf("docstore request %s: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("decode docstore reply: %w", err)
	}
	return nil
}
