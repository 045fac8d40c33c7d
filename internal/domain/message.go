package domain

import (
	"context"
	"time"
)

// Message is an immutable direct message addressed by thread.
type Message struct {
	ID        string    `json:"id" bson:"_id"`
	From      string    `json:"from" bson:"from"`
	To        string    `json:"to" bson:"to"`
	ThreadID  string    `json:"threadId" bson:"threadId"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// SendMessageRequest is the body of POST /message.
type SendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	From    string `json:"from"`
	Message string `json:"message" validate:"required"`
}

// ReplyRequest is the body of POST /message/reply.
type ReplyRequest struct {
	ThreadID string `json:"threadId" validate:"required"`
	From     string `json:"from"`
	Message  string `json:"message" validate:"required"`
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, m *Message) error
	// ListThread returns every message of a thread, oldest first.
	ListThread(ctx context.Context, threadID string) ([]*Message, error)
	// Inbox returns the most recent message of every thread user takes part
	// in, newest thread first.
	Inbox(ctx context.Context, user string) ([]*Message, error)
}
