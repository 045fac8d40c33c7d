package realtime

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tunehub/backend/internal/domain"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// FirestoreStore keeps conversations in Firestore. Messages live in a
// subcollection of their conversation.
//
// Listing conversations for a participant needs a composite index on
// (participants array-contains, updatedAt desc).
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Ping reads at most one conversation to check the connection.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	it := s.conversations().Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

func (s *FirestoreStore) conversations() *firestore.CollectionRef {
	return s.client.Collection(conversationsCollection)
}

func (s *FirestoreStore) messages(conversationID string) *firestore.CollectionRef {
	return s.conversations().Doc(conversationID).Collection(messagesCollection)
}

// CreateConversation relies on Create failing with AlreadyExists, so two
// participants opening the same thread at once end up with one document.
func (s *FirestoreStore) CreateConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	ref := s.conversations().Doc(conv.ID)
	_, err := ref.Create(ctx, conv)
	if err == nil {
		out := *conv
		return &out, true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}

	existing, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *FirestoreStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	snap, err := s.conversations().Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return decodeConversation(snap)
}

func (s *FirestoreStore) conversationQuery(userID string) firestore.Query {
	return s.conversations().
		Where("participants", "array-contains", userID).
		OrderBy("updatedAt", firestore.Desc)
}

func (s *FirestoreStore) ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	docs, err := s.conversationQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return decodeConversations(docs)
}

func (s *FirestoreStore) messageQuery(conversationID string, limit int) firestore.Query {
	return s.messages(conversationID).
		OrderBy("timestamp", firestore.Desc).
		Limit(limit)
}

func (s *FirestoreStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*domain.ChatMessage, error) {
	docs, err := s.messageQuery(conversationID, limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return decodeMessages(docs)
}

// AppendMessage writes the message and the conversation's lastMessage in one
// transaction. lastMessage is left alone when the stored one is newer.
func (s *FirestoreStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	convRef := s.conversations().Doc(msg.ConversationID)
	msgRef := s.messages(msg.ConversationID).Doc(msg.ID)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(convRef)
		if status.Code(err) == codes.NotFound {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		conv, err := decodeConversation(snap)
		if err != nil {
			return err
		}

		if err := tx.Create(msgRef, msg); err != nil {
			return err
		}

		if conv.LastMessage != nil && conv.LastMessage.Timestamp.After(msg.Timestamp) {
			return nil
		}
		return tx.Update(convRef, []firestore.Update{
			{Path: "lastMessage", Value: domain.LastMessage{
				Text:      msg.Text,
				SenderID:  msg.SenderID,
				Timestamp: msg.Timestamp,
			}},
			{Path: "updatedAt", Value: msg.Timestamp},
		})
	})
}

func (s *FirestoreStore) WatchConversations(ctx context.Context, userID string, fn func([]*domain.Conversation)) error {
	return watch(ctx, s.conversationQuery(userID), func(docs []*firestore.DocumentSnapshot) error {
		convs, err := decodeConversations(docs)
		if err != nil {
			return err
		}
		fn(convs)
		return nil
	})
}

func (s *FirestoreStore) WatchMessages(ctx context.Context, conversationID string, limit int, fn func([]*domain.ChatMessage)) error {
	return watch(ctx, s.messageQuery(conversationID, limit), func(docs []*firestore.DocumentSnapshot) error {
		msgs, err := decodeMessages(docs)
		if err != nil {
			return err
		}
		fn(msgs)
		return nil
	})
}

// watch drives a snapshot listener until ctx ends. The listener is stopped
// on every exit path.
func watch(ctx context.Context, q firestore.Query, fn func([]*firestore.DocumentSnapshot) error) error {
	it := q.Snapshots(ctx)
	defer it.Stop()

	for {
		qs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
				return nil
			}
			return fmt.Errorf("snapshot listener: %w", err)
		}

		docs, err := qs.Documents.GetAll()
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if err := fn(docs); err != nil {
			return err
		}
	}
}

func decodeConversation(snap *firestore.DocumentSnapshot) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := snap.DataTo(&conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", snap.Ref.ID, err)
	}
	conv.ID = snap.Ref.ID
	return &conv, nil
}

func decodeConversations(docs []*firestore.DocumentSnapshot) ([]*domain.Conversation, error) {
	convs := make([]*domain.Conversation, 0, len(docs))
	for _, doc := range docs {
		conv, err := decodeConversation(doc)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// decodeMessages turns a newest-first window into oldest-first order.
func decodeMessages(docs []*firestore.DocumentSnapshot) ([]*domain.ChatMessage, error) {
	msgs := make([]*domain.ChatMessage, len(docs))
	for i, doc := range docs {
		var msg domain.ChatMessage
		if err := doc.DataTo(&msg); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", doc.Ref.ID, err)
		}
		msg.ID = doc.Ref.ID
		msgs[len(docs)-1-i] = &msg
	}
	return msgs, nil
}
