package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatService runs realtime conversations on top of a ConversationStore.
type ChatService struct {
	store  ConversationStore
	events EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewChatService wires conversations. events may be nil.
func NewChatService(store ConversationStore, events EventPublisher, logger *zap.Logger) *ChatService {
	return &ChatService{
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// OpenConversation returns the conversation between the actor and
// participant, creating it on first use.
func (s *ChatService) OpenConversation(ctx context.Context, actor Actor, participant string) (*Conversation, error) {
	if err := ValidateIdentifier("participant", participant); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("user", actor.UserID); err != nil {
		return nil, err
	}
	if participant == actor.UserID {
		return nil, Invalid("participant", "cannot start a conversation with yourself")
	}

	now := s.now().UTC()
	a, b := actor.UserID, participant
	if b < a {
		a, b = b, a
	}
	conv, created, err := s.store.CreateConversation(ctx, &Conversation{
		ID:           ThreadID(a, b),
		Participants: []string{a, b},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	if created {
		s.logger.Debug("conversation created", zap.String("conversation_id", conv.ID))
	}
	return conv, nil
}

func (s *ChatService) ListConversations(ctx context.Context, actor Actor) ([]*Conversation, error) {
	return s.store.ListConversations(ctx, actor.UserID)
}

func (s *ChatService) ListMessages(ctx context.Context, actor Actor, conversationID string, limit int) ([]*ChatMessage, error) {
	if _, err := s.member(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID, window(limit))
}

// SendMessage appends a message and advances the conversation's lastMessage.
func (s *ChatService) SendMessage(ctx context.Context, actor Actor, conversationID, text string) (*ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, Invalid("text", "is required")
	}
	conv, err := s.member(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(actor.UserID) {
		return nil, ErrForbidden
	}

	msg := &ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       actor.UserID,
		Text:           text,
		Timestamp:      s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	// wake clients that have no live listener on this conversation
	var others []string
	for _, p := range conv.Participants {
		if p != actor.UserID {
			others = append(others, p)
		}
	}
	publishAsync(s.events, s.logger, EventNewChatMessage, msg, others...)
	return msg, nil
}

// WatchConversations streams the actor's conversation list until ctx ends.
func (s *ChatService) WatchConversations(ctx context.Context, actor Actor, fn func([]*Conversation)) error {
	return s.store.WatchConversations(ctx, actor.UserID, fn)
}

// WatchMessages streams the recent window of one conversation until ctx ends.
func (s *ChatService) WatchMessages(ctx context.Context, actor Actor, conversationID string, fn func([]*ChatMessage)) error {
	if _, err := s.member(ctx, actor, conversationID); err != nil {
		return err
	}
	return s.store.WatchMessages(ctx, conversationID, DefaultMessageWindow, fn)
}

func (s *ChatService) member(ctx context.Context, actor Actor, conversationID string) (*Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && !conv.HasParticipant(actor.UserID) {
		return nil, ErrForbidden
	}
	return conv, nil
}

func window(limit int) int {
	if limit <= 0 || limit > DefaultMessageWindow {
		return DefaultMessageWindow
	}
	return limit
}
