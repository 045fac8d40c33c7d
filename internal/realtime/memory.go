package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/tunehub/backend/internal/domain"
)

// MemoryStore is an in-process ConversationStore with live listeners. It
// backs tests and local development.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]domain.Conversation
	messages      map[string][]domain.ChatMessage
	listeners     map[int]chan struct{}
	nextListener  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]domain.Conversation),
		messages:      make(map[string][]domain.ChatMessage),
		listeners:     make(map[int]chan struct{}),
	}
}

// Listeners reports how many watch calls are currently registered.
func (s *MemoryStore) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, bool, error) {
	s.mu.Lock()
	if existing, ok := s.conversations[conv.ID]; ok {
		s.mu.Unlock()
		return copyConversation(existing), false, nil
	}
	stored := *copyConversation(*conv)
	s.conversations[conv.ID] = stored
	s.changedLocked()
	s.mu.Unlock()

	return copyConversation(stored), true, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationsLocked(userID), nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesLocked(conversationID, limit), nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return domain.ErrNotFound
	}

	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	if conv.LastMessage == nil || !conv.LastMessage.Timestamp.After(msg.Timestamp) {
		conv.LastMessage = &domain.LastMessage{
			Text:      msg.Text,
			SenderID:  msg.SenderID,
			Timestamp: msg.Timestamp,
		}
		conv.UpdatedAt = msg.Timestamp
		s.conversations[msg.ConversationID] = conv
	}
	s.changedLocked()
	return nil
}

func (s *MemoryStore) WatchConversations(ctx context.Context, userID string, fn func([]*domain.Conversation)) error {
	return s.watch(ctx, func() {
		s.mu.Lock()
		convs := s.conversationsLocked(userID)
		s.mu.Unlock()
		fn(convs)
	})
}

func (s *MemoryStore) WatchMessages(ctx context.Context, conversationID string, limit int, fn func([]*domain.ChatMessage)) error {
	return s.watch(ctx, func() {
		s.mu.Lock()
		msgs := s.messagesLocked(conversationID, limit)
		s.mu.Unlock()
		fn(msgs)
	})
}

// watch delivers an initial snapshot, then one per change, until ctx ends.
// Changes that arrive while a snapshot is being delivered coalesce.
func (s *MemoryStore) watch(ctx context.Context, snapshot func()) error {
	changed := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = changed
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}()

	snapshot()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			snapshot()
		}
	}
}

func (s *MemoryStore) changedLocked() {
	for _, ch := range s.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *MemoryStore) conversationsLocked(userID string) []*domain.Conversation {
	convs := make([]*domain.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			convs = append(convs, copyConversation(conv))
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return domain.NewerFirst(convs[i], convs[j])
	})
	return convs
}

func (s *MemoryStore) messagesLocked(conversationID string, limit int) []*domain.ChatMessage {
	all := make([]domain.ChatMessage, len(s.messages[conversationID]))
	copy(all, s.messages[conversationID])
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}

	msgs := make([]*domain.ChatMessage, len(all))
	for i := range all {
		msgs[i] = &all[i]
	}
	return msgs
}

func copyConversation(c domain.Conversation) *domain.Conversation {
	c.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		c.LastMessage = &lm
	}
	return &c
}
