package domain

import (
	"context"
	"time"
)

// DefaultMessageWindow bounds how many recent messages a conversation view loads.
const DefaultMessageWindow = 50

// LastMessage is a denormalized copy of a conversation's newest message.
type LastMessage struct {
	Text      string    `json:"text" firestore:"text"`
	SenderID  string    `json:"senderId" firestore:"senderId"`
	Timestamp time.Time `json:"timestamp" firestore:"timestamp"`
}

// Conversation is the realtime view of a two-party thread. Its ID is the
// thread id of the participants.
type Conversation struct {
	ID           string       `json:"id" firestore:"-"`
	Participants []string     `json:"participants" firestore:"participants"`
	LastMessage  *LastMessage `json:"lastMessage,omitempty" firestore:"lastMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt" firestore:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt" firestore:"updatedAt"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ChatMessage is one message of a realtime conversation.
type ChatMessage struct {
	ID             string    `json:"id" firestore:"-"`
	ConversationID string    `json:"conversationId" firestore:"conversationId"`
	SenderID       string    `json:"senderId" firestore:"senderId"`
	Text           string    `json:"text" firestore:"text"`
	Timestamp      time.Time `json:"timestamp" firestore:"timestamp"`
}

// ConversationStore is the realtime document store behind conversations.
//
// Watch operations block, invoking fn with a full snapshot whenever the
// result set changes, until ctx is cancelled. They return nil on
// cancellation.
type ConversationStore interface {
	// CreateConversation creates conv unless a conversation with the same id
	// exists. It returns the stored conversation and whether it was created.
	CreateConversation(ctx context.Context, conv *Conversation) (*Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations orders by lastMessage timestamp, newest first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	// ListMessages returns the newest limit messages, oldest first.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*ChatMessage, error)
	// AppendMessage inserts msg and advances the conversation's lastMessage.
	// lastMessage never moves to an older timestamp.
	AppendMessage(ctx context.Context, msg *ChatMessage) error
	WatchConversations(ctx context.Context, userID string, fn func([]*Conversation)) error
	WatchMessages(ctx context.Context, conversationID string, limit int, fn func([]*ChatMessage)) error
}

// conversationActivity is the lastMessage timestamp, or the creation time
// while a conversation has no messages.
func conversationActivity(c *Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return c.CreatedAt
}

// NewerFirst reports whether a should be listed before b.
func NewerFirst(a, b *Conversation) bool {
	return conversationActivity(a).After(conversationActivity(b))
}
