package domain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Notifier is the best-effort dispatcher contract used by mutating services.
type Notifier interface {
	Notify(ctx context.Context, recipient string, kind NotificationKind, message, link string)
}

const (
	EventNewMessage     = "new_message"
	EventNewChatMessage = "chat_message"
	publishTimeout      = 2 * time.Second
)

// publishAsync sends an event to each user without blocking the caller.
// Failures are logged only.
func publishAsync(events EventPublisher, logger *zap.Logger, eventType string, payload interface{}, users ...string) {
	if events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		for _, user := range users {
			if err := events.Publish(ctx, user, eventType, payload); err != nil {
				logger.Warn("failed to publish event",
					zap.String("event", eventType),
					zap.String("user", user),
					zap.Error(err),
				)
			}
		}
	}()
}
