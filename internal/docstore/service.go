package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/voicechat/internal/bus"
	"github.com/loqalabs/voicechat/internal/protocol"
	"github.com/nats-io/nats.go"
)

const queueGroup = "docstore"

// Service answers document store requests on the bus and publishes a change
// notice after every successful write.
type Service struct {
	store  *Store
	bus    *bus.Client
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	subs   []*nats.Subscription
	clock  func() time.Time
}

func NewService(parent context.Context, store *Store, busClient *bus.Client, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		store:  store,
		bus:    busClient,
		logger: logger.With(slog.String("component", "docstore-service")),
		ctx:    ctx,
		cancel: cancel,
		clock:  time.Now,
	}
}

func (s *Service) Start() error {
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectStoreUpsert: s.handleUpsert,
		protocol.SubjectStoreDelete: s.handleDelete,
		protocol.SubjectStoreList:   s.handleList,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for subject, handler := range handlers {
		sub, err := s.bus.Conn().QueueSubscribe(subject, queueGroup, handler)
		if err != nil {
			for _, existing := range s.subs {
				_ = existing.Drain()
			}
			s.subs = nil
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	return s.bus.Conn().Flush()
}

func (s *Service) Close() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs) == 3 && s.bus.Healthy()
}

func (s *Service) handleUpsert(msg *nats.Msg) {
	var req protocol.UpsertRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, protocol.AckReply{Error: "malformed upsert request"})
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.Upsert(ctx, req.UserID, req.Conversation); err != nil {
		s.logger.Warn("upsert failed", slogError(err), slog.String("conversation", req.Conversation.ID))
		s.respond(msg, protocol.AckReply{Error: err.Error()})
		return
	}
	s.respond(msg, protocol.AckReply{})
	s.publishChange(protocol.ChangeNotice{UserID: req.UserID, ConversationID: req.Conversation.ID})
}

func (s *Service) handleDelete(msg *nats.Msg) {
	var req protocol.DeleteRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, protocol.AckReply{Error: "malformed delete request"})
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, req.UserID, req.ConversationID); err != nil {
		s.logger.Warn("delete failed", slogError(err), slog.String("conversation", req.ConversationID))
		s.respond(msg, protocol.AckReply{Error: err.Error()})
		return
	}
	s.respond(msg, protocol.AckReply{})
	s.publishChange(protocol.ChangeNotice{UserID: req.UserID, ConversationID: req.ConversationID, Deleted: true})
}

func (s *Service) handleList(msg *nats.Msg) {
	var req protocol.ListRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, protocol.ListReply{Error: "malformed list request"})
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	items, err := s.store.List(ctx, req.UserID)
	if err != nil {
		s.logger.Warn("list failed", slogError(err))
		s.respond(msg, protocol.ListReply{Error: err.Error()})
		return
	}
	s.respond(msg, protocol.ListReply{Conversations: items})
}

func (s *Service) respond(msg *nats.Msg, reply any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond", slogError(err))
	}
}

func (s *Service) publishChange(notice protocol.ChangeNotice) {
	notice.Timestamp = s.clock().UTC()
	data, err := json.Marshal(notice)
	if err != nil {
		s.logger.Warn("failed to marshal change notice", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.ChangedSubject(notice.UserID), data); err != nil {
		s.logger.Warn("failed to publish change notice", slogError(err))
	}
}
