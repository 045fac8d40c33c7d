package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MessageService struct {
	repo     MessageRepository
	notifier Notifier
	events   EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

func NewMessageService(repo MessageRepository, notifier Notifier, events EventPublisher, logger *zap.Logger) *MessageService {
	return &MessageService{
		repo:     repo,
		notifier: notifier,
		events:   events,
		logger:   logger,
		now:      time.Now,
	}
}

// Send stores a message from the actor to req.To under their shared thread id
// and notifies the recipient.
func (s *MessageService) Send(ctx context.Context, actor Actor, req SendMessageRequest) (*Message, error) {
	from, err := senderFor(actor, req.From)
	if err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("to", req.To); err != nil {
		return nil, err
	}
	if req.To == from {
		return nil, Invalid("to", "cannot message yourself")
	}

	msg, err := s.store(ctx, from, req.To, req.Message)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, msg.To, KindSystem, fmt.Sprintf("New message from %s", from), inboxLink(msg.ThreadID))
	return msg, nil
}

// Reply answers within an existing thread. The recipient is the participant
// of threadId that is not the sender.
func (s *MessageService) Reply(ctx context.Context, actor Actor, req ReplyRequest) (*Message, error) {
	from, err := senderFor(actor, req.From)
	if err != nil {
		return nil, err
	}
	to, err := OtherParticipant(req.ThreadID, from)
	if err != nil {
		return nil, err
	}

	msg, err := s.store(ctx, from, to, req.Message)
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, to, KindReply, fmt.Sprintf("%s replied to your message", from), inboxLink(msg.ThreadID))
	return msg, nil
}

// Inbox lists one entry per thread of user, carrying its latest message.
func (s *MessageService) Inbox(ctx context.Context, actor Actor, user string) ([]*Message, error) {
	user = defaultUser(actor, user)
	if !actor.CanActFor(user) {
		return nil, ErrForbidden
	}
	return s.repo.Inbox(ctx, user)
}

// Thread returns the full history of threadID for one of its participants.
func (s *MessageService) Thread(ctx context.Context, actor Actor, threadID string) ([]*Message, error) {
	a, b, err := ThreadParticipants(threadID)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(a) && !actor.CanActFor(b) {
		return nil, ErrForbidden
	}
	return s.repo.ListThread(ctx, ThreadID(a, b))
}

func (s *MessageService) store(ctx context.Context, from, to, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, Invalid("message", "is required")
	}

	msg := &Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		ThreadID:  ThreadID(from, to),
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	publishAsync(s.events, s.logger, EventNewMessage, msg, msg.To, msg.From)
	return msg, nil
}

// senderFor resolves the sending identity. A body-supplied sender must match
// the authenticated actor unless the actor is an admin.
func senderFor(actor Actor, from string) (string, error) {
	if from == "" {
		from = actor.UserID
	}
	if err := ValidateIdentifier("from", from); err != nil {
		return "", err
	}
	if !actor.CanActFor(from) {
		return "", ErrForbidden
	}
	return from, nil
}

func inboxLink(threadID string) string {
	return "/inbox/" + threadID
}
