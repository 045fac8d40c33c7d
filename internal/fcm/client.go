package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// NewApp initializes the Firebase app shared by push, Firestore and token
// verification.
func NewApp(ctx context.Context, logger *zap.Logger, projectID, credentialsFile string) (*firebase.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		logger.Warn("No Firebase credentials file provided. Falling back to GOOGLE_APPLICATION_CREDENTIALS or default credentials.")
	}

	var cfg *firebase.Config
	if projectID != "" {
		cfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	return app, nil
}

// Client sends notification pushes through Firebase Cloud Messaging.
type Client struct {
	msgClient *messaging.Client
	logger    *zap.Logger
}

func NewClient(ctx context.Context, app *firebase.App, logger *zap.Logger) (*Client, error) {
	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &Client{
		msgClient: msgClient,
		logger:    logger,
	}, nil
}

func (c *Client) Send(ctx context.Context, token string, title, body string, data map[string]string) error {
	if token == "" {
		return nil // No token, skip
	}

	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	_, err := c.msgClient.Send(ctx, message)
	if err != nil {
		if messaging.IsUnregistered(err) {
			c.logger.Debug("FCM token is no longer registered", zap.String("token", token))
			return err
		}
		c.logger.Error("Failed to send FCM message", zap.String("token", token), zap.Error(err))
		return err
	}
	return nil
}
