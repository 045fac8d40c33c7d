package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/badge"
	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/internal/realtime"
)

// Client actions
const (
	actionSubscribeConversations = "subscribe_conversations"
	actionOpenConversation       = "open_conversation"
	actionCloseConversation      = "close_conversation"
	actionSendMessage            = "send_message"
)

// Server events
const (
	eventConversations = "conversations"
	eventMessages      = "messages"
	eventUnreadCount   = "unread_count"
	eventMessageSent   = "message_sent"
	eventError         = "error"
)

type wsAction struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversationId,omitempty"`
	Text           string `json:"text,omitempty"`
}

type unreadPayload struct {
	Count int  `json:"count"`
	Cue   bool `json:"cue"`
}

type messagesPayload struct {
	ConversationID string                `json:"conversationId"`
	Messages       []*domain.ChatMessage `json:"messages"`
}

type errorPayload struct {
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}

// session holds the live listeners of one WebSocket connection. Every
// listener it opens is closed by close.
type session struct {
	client        *Client
	actor         domain.Actor
	chat          *domain.ChatService
	notifications *domain.NotificationService
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	conversations *realtime.Subscription
	messages      *realtime.Subscription
	poller        *badge.Poller
}

func newSession(client *Client, actor domain.Actor, chat *domain.ChatService, notifications *domain.NotificationService, pollInterval time.Duration, logger *zap.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		client:        client,
		actor:         actor,
		chat:          chat,
		notifications: notifications,
		logger:        logger.With(zap.String("userID", actor.UserID), zap.String("clientID", client.ID)),
		ctx:           ctx,
		cancel:        cancel,
	}
	s.poller = badge.NewPoller(pollInterval, func(ctx context.Context) ([]*domain.Notification, error) {
		// the badge counts up to MaxNotificationLimit unread items
		return notifications.List(ctx, actor, "", domain.MaxNotificationLimit)
	}, func(unread int, cue bool) {
		s.send(eventUnreadCount, unreadPayload{Count: unread, Cue: cue})
	}, s.logger)
	return s
}

// start begins badge polling.
func (s *session) start() {
	s.poller.Start(s.ctx)
}

func (s *session) handle(data []byte) {
	var a wsAction
	if err := json.Unmarshal(data, &a); err != nil {
		s.send(eventError, errorPayload{Message: "invalid action"})
		return
	}

	switch a.Action {
	case actionSubscribeConversations:
		s.subscribeConversations()
	case actionOpenConversation:
		s.openConversation(a.ConversationID)
	case actionCloseConversation:
		s.closeConversation()
	case actionSendMessage:
		msg, err := s.chat.SendMessage(s.ctx, s.actor, a.ConversationID, a.Text)
		if err != nil {
			s.sendError(a.Action, err)
			return
		}
		s.send(eventMessageSent, msg)
	default:
		s.send(eventError, errorPayload{Action: a.Action, Message: "unknown action"})
	}
}

func (s *session) subscribeConversations() {
	s.mu.Lock()
	if s.conversations != nil {
		s.mu.Unlock()
		return
	}
	sub := realtime.NewSubscription("conversations", s.logger)
	s.conversations = sub
	s.mu.Unlock()

	watch := func(ctx context.Context, fn func([]*domain.Conversation)) error {
		return s.chat.WatchConversations(ctx, s.actor, fn)
	}
	realtime.Subscribe(s.ctx, sub, watch, func(convs []*domain.Conversation) {
		s.send(eventConversations, convs)
	})
}

// openConversation replaces the current message listener with one on id.
func (s *session) openConversation(id string) {
	// membership is checked up front so the client gets a direct answer
	if _, err := s.chat.ListMessages(s.ctx, s.actor, id, 1); err != nil {
		s.sendError(actionOpenConversation, err)
		return
	}

	s.closeConversation()

	sub := realtime.NewSubscription("messages:"+id, s.logger)
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.messages = sub
	s.mu.Unlock()

	watch := func(ctx context.Context, fn func([]*domain.ChatMessage)) error {
		return s.chat.WatchMessages(ctx, s.actor, id, fn)
	}
	realtime.Subscribe(s.ctx, sub, watch, func(msgs []*domain.ChatMessage) {
		s.send(eventMessages, messagesPayload{ConversationID: id, Messages: msgs})
	})
}

func (s *session) closeConversation() {
	s.mu.Lock()
	sub := s.messages
	s.messages = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// close stops the poller and every listener and waits for them to exit.
func (s *session) close() {
	s.cancel()
	s.poller.Stop()

	s.mu.Lock()
	subs := []*realtime.Subscription{s.conversations, s.messages}
	s.conversations, s.messages = nil, nil
	s.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			sub.Close()
		}
	}
}

// send queues one event for the write loop. It gives up once the session
// is closed or the write loop has stalled for writeWait.
func (s *session) send(eventType string, payload interface{}) {
	data, err := json.Marshal(WSEvent{Type: eventType, Payload: payload})
	if err != nil {
		s.logger.Error("Failed to marshal event", zap.String("event", eventType), zap.Error(err))
		return
	}
	select {
	case s.client.Send <- data:
	case <-s.ctx.Done():
	case <-time.After(writeWait):
		s.logger.Debug("Dropped event for stalled client", zap.String("event", eventType))
	}
}

func (s *session) sendError(action string, err error) {
	msg := "internal error"
	switch {
	case domain.IsValidation(err):
		msg = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		msg = "not found"
	case errors.Is(err, domain.ErrForbidden):
		msg = "forbidden"
	default:
		s.logger.Error("WebSocket action failed", zap.String("action", action), zap.Error(err))
	}
	s.send(eventError, errorPayload{Action: action, Message: msg})
}
