package domain

import (
	"context"
	"time"
)

// NotificationKind classifies a notification.
type NotificationKind string

const (
	KindComment     NotificationKind = "comment"
	KindLike        NotificationKind = "like"
	KindFollow      NotificationKind = "follow"
	KindSystem      NotificationKind = "system"
	KindMention     NotificationKind = "mention"
	KindNewSong     NotificationKind = "new_song"
	KindNewAlbum    NotificationKind = "new_album"
	KindNewPlaylist NotificationKind = "new_playlist"
	KindReply       NotificationKind = "reply"
)

var notificationKinds = map[NotificationKind]struct{}{
	KindComment:     {},
	KindLike:        {},
	KindFollow:      {},
	KindSystem:      {},
	KindMention:     {},
	KindNewSong:     {},
	KindNewAlbum:    {},
	KindNewPlaylist: {},
	KindReply:       {},
}

// Valid reports whether k is a known kind.
func (k NotificationKind) Valid() bool {
	_, ok := notificationKinds[k]
	return ok
}

// Notification is owned by its recipient. Only Read ever changes after creation.
type Notification struct {
	ID        string           `json:"id" bson:"_id"`
	Recipient string           `json:"user" bson:"user"`
	Kind      NotificationKind `json:"type" bson:"type"`
	Message   string           `json:"message" bson:"message"`
	Link      string           `json:"link,omitempty" bson:"link,omitempty"`
	Read      bool             `json:"read" bson:"read"`
	CreatedAt time.Time        `json:"createdAt" bson:"createdAt"`
}

// CreateNotificationRequest is the body of POST /notifications.
type CreateNotificationRequest struct {
	User    string `json:"user" validate:"required"`
	Type    string `json:"type" validate:"required"`
	Message string `json:"message" validate:"required"`
	Link    string `json:"link"`
}

// CountUnread returns how many notifications are still unread.
func CountUnread(notifications []*Notification) int {
	n := 0
	for _, item := range notifications {
		if !item.Read {
			n++
		}
	}
	return n
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)
	ListNotifications(ctx context.Context, recipient string, limit int) ([]*Notification, error)
	CountUnreadNotifications(ctx context.Context, recipient string) (int64, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, recipient string) (int64, error)
	DeleteNotification(ctx context.Context, id string) error
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeviceRepository stores push registration tokens per user.
type DeviceRepository interface {
	SaveDeviceToken(ctx context.Context, userID, token string) error
	GetDeviceTokens(ctx context.Context, userID string) ([]string, error)
}

// Pusher delivers a push message to one device token.
type Pusher interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// EventPublisher fans realtime events out to a user's live connections.
type EventPublisher interface {
	Publish(ctx context.Context, userID, eventType string, payload interface{}) error
}
