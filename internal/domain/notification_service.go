package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/metrics"
)

const (
	defaultNotificationLimit = 100
	MaxNotificationLimit     = 500
	defaultNotifyTimeout     = 3 * time.Second
	pushTitle                = "tunehub"

	// EventNotification is published to the recipient's live connections.
	EventNotification = "notification"
)

type NotificationService struct {
	repo    NotificationRepository
	devices DeviceRepository
	pusher  Pusher
	events  EventPublisher
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationService wires the dispatcher. pusher and events may be nil,
// in which case that delivery channel is skipped.
func NewNotificationService(repo NotificationRepository, devices DeviceRepository, pusher Pusher, events EventPublisher, timeout time.Duration, logger *zap.Logger) *NotificationService {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &NotificationService{
		repo:    repo,
		devices: devices,
		pusher:  pusher,
		events:  events,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Notify writes one notification for recipient on a best-effort basis.
// It never fails the caller: every error, including a panicking store, is
// logged and counted, then dropped. The write runs with its own timeout and
// ignores cancellation of ctx so an aborted request does not lose it.
func (s *NotificationService) Notify(ctx context.Context, recipient string, kind NotificationKind, message, link string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordNotification(string(kind), "panic")
			s.logger.Error("notification dispatch panicked",
				zap.Any("panic", r),
				zap.String("recipient", recipient),
				zap.String("kind", string(kind)),
			)
		}
	}()

	if recipient == "" || !kind.Valid() {
		metrics.RecordNotification(string(kind), "dropped")
		s.logger.Warn("dropping malformed notification",
			zap.String("recipient", recipient),
			zap.String("kind", string(kind)),
		)
		return
	}

	n := s.newNotification(recipient, kind, message, link)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.repo.CreateNotification(writeCtx, n); err != nil {
		metrics.RecordNotification(string(kind), "failed")
		s.logger.Error("failed to write notification",
			zap.String("recipient", recipient),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}

	metrics.RecordNotification(string(kind), "ok")
	go s.deliver(n)
}

// Create stores a notification on behalf of the API. Unlike Notify it
// reports validation and persistence failures.
func (s *NotificationService) Create(ctx context.Context, actor Actor, req CreateNotificationRequest) (*Notification, error) {
	if err := ValidateIdentifier("user", req.User); err != nil {
		return nil, err
	}
	kind := NotificationKind(req.Type)
	if !kind.Valid() {
		return nil, Invalid("type", fmt.Sprintf("unknown notification type %q", req.Type))
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, Invalid("message", "is required")
	}

	n := s.newNotification(req.User, kind, req.Message, req.Link)
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	metrics.RecordNotification(string(kind), "ok")
	s.logger.Debug("notification created",
		zap.String("actor", actor.UserID),
		zap.String("recipient", n.Recipient),
		zap.String("kind", string(kind)),
	)
	go s.deliver(n)
	return n, nil
}

// List returns the newest notifications of user. An empty user means the actor.
func (s *NotificationService) List(ctx context.Context, actor Actor, user string, limit int) ([]*Notification, error) {
	user = defaultUser(actor, user)
	if !actor.CanActFor(user) {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}
	return s.repo.ListNotifications(ctx, user, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor Actor, user string) (int64, error) {
	user = defaultUser(actor, user)
	if !actor.CanActFor(user) {
		return 0, ErrForbidden
	}
	return s.repo.CountUnreadNotifications(ctx, user)
}

func (s *NotificationService) MarkRead(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.MarkNotificationRead(ctx, id)
}

// MarkAllRead flips read on every notification of user and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor Actor, user string) (int64, error) {
	user = defaultUser(actor, user)
	if !actor.CanActFor(user) {
		return 0, ErrForbidden
	}
	return s.repo.MarkAllNotificationsRead(ctx, user)
}

func (s *NotificationService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.DeleteNotification(ctx, id)
}

// RegisterDevice stores a push token for the actor.
func (s *NotificationService) RegisterDevice(ctx context.Context, actor Actor, token string) error {
	if strings.TrimSpace(token) == "" {
		return Invalid("token", "is required")
	}
	return s.devices.SaveDeviceToken(ctx, actor.UserID, token)
}

// PurgeRead deletes read notifications older than age.
func (s *NotificationService) PurgeRead(ctx context.Context, age time.Duration) (int64, error) {
	return s.repo.DeleteReadNotificationsBefore(ctx, s.now().Add(-age))
}

func (s *NotificationService) owned(ctx context.Context, actor Actor, id string) (*Notification, error) {
	n, err := s.repo.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(n.Recipient) {
		return nil, ErrForbidden
	}
	return n, nil
}

func (s *NotificationService) newNotification(recipient string, kind NotificationKind, message, link string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Kind:      kind,
		Message:   message,
		Link:      link,
		CreatedAt: s.now().UTC(),
	}
}

// deliver pushes a stored notification to live connections and devices.
func (s *NotificationService) deliver(n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.events != nil {
		if err := s.events.Publish(ctx, n.Recipient, EventNotification, n); err != nil {
			s.logger.Warn("failed to publish notification event", zap.String("recipient", n.Recipient), zap.Error(err))
		}
	}

	if s.pusher == nil || s.devices == nil {
		return
	}

	tokens, err := s.devices.GetDeviceTokens(ctx, n.Recipient)
	if err != nil {
		s.logger.Warn("failed to get device tokens", zap.String("recipient", n.Recipient), zap.Error(err))
		return
	}

	data := map[string]string{
		"id":   n.ID,
		"type": string(n.Kind),
		"link": n.Link,
	}
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if err := s.pusher.Send(ctx, token, pushTitle, n.Message, data); err != nil {
			s.logger.Debug("push delivery failed", zap.String("recipient", n.Recipient), zap.Error(err))
		}
	}
}

func defaultUser(actor Actor, user string) string {
	if user == "" {
		return actor.UserID
	}
	return user
}
