package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tunehub/backend/internal/domain"
)

type followKey struct{ follower, followee string }

type favoriteKey struct{ user, release string }

type deviceEntry struct {
	user    string
	updated time.Time
}

// MemoryStore provides an in-memory implementation of every repository
// interface for tests and local development. Records are copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	releases      map[string]domain.Release
	follows       map[followKey]domain.Follow
	favorites     map[favoriteKey]domain.Favorite
	comments      map[string]domain.Comment
	devices       map[string]deviceEntry // keyed by token
	notifications map[string]domain.Notification
	messages      []domain.Message

	// FailNotifications makes every notification write fail with this error.
	FailNotifications error
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		releases:      make(map[string]domain.Release),
		follows:       make(map[followKey]domain.Follow),
		favorites:     make(map[favoriteKey]domain.Favorite),
		comments:      make(map[string]domain.Comment),
		devices:       make(map[string]deviceEntry),
		notifications: make(map[string]domain.Notification),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// User operations

func (s *MemoryStore) UpsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.users {
		if id != u.ID && strings.EqualFold(other.Handle, u.Handle) {
			return nil, domain.ErrConflict
		}
	}
	stored := *u
	if existing, ok := s.users[u.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.users[u.ID] = stored
	out := stored
	return &out, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByHandle(ctx context.Context, handle string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Handle, handle) {
			out := u
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Catalog and social graph operations

func (s *MemoryStore) UpsertRelease(ctx context.Context, r *domain.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *r
	if existing, ok := s.releases[r.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.releases[r.ID] = stored
	return nil
}

func (s *MemoryStore) GetRelease(ctx context.Context, id string) (*domain.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.releases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) CreateFollow(ctx context.Context, f *domain.Follow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := followKey{f.FollowerID, f.FolloweeID}
	if _, ok := s.follows[key]; ok {
		return domain.ErrConflict
	}
	s.follows[key] = *f
	return nil
}

func (s *MemoryStore) ListFollowers(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	follows := make([]domain.Follow, 0)
	for _, f := range s.follows {
		if f.FolloweeID == userID {
			follows = append(follows, f)
		}
	}
	sort.Slice(follows, func(i, j int) bool {
		if follows[i].CreatedAt.Equal(follows[j].CreatedAt) {
			return follows[i].FollowerID < follows[j].FollowerID
		}
		return follows[i].CreatedAt.Before(follows[j].CreatedAt)
	})

	followers := make([]string, 0, len(follows))
	for _, f := range follows {
		followers = append(followers, f.FollowerID)
	}
	return followers, nil
}

func (s *MemoryStore) CreateFavorite(ctx context.Context, f *domain.Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := favoriteKey{f.UserID, f.ReleaseID}
	if _, ok := s.favorites[key]; ok {
		return domain.ErrConflict
	}
	s.favorites[key] = *f
	return nil
}

func (s *MemoryStore) CreateComment(ctx context.Context, c *domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.comments[c.ID] = *c
	return nil
}

// Device operations

func (s *MemoryStore) SaveDeviceToken(ctx context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.devices[token] = deviceEntry{user: userID, updated: time.Now()}
	return nil
}

func (s *MemoryStore) GetDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []string
	for token, entry := range s.devices {
		if entry.user == userID {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (s *MemoryStore) DeleteStaleDeviceTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for token, entry := range s.devices {
		if entry.updated.Before(cutoff) {
			delete(s.devices, token)
			deleted++
		}
	}
	return deleted, nil
}

// Notification operations

func (s *MemoryStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNotifications != nil {
		return s.FailNotifications
	}
	s.notifications[n.ID] = *n
	return nil
}

func (s *MemoryStore) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &n, nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, recipient string, limit int) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Notification, 0)
	for _, n := range s.notifications {
		if n.Recipient == recipient {
			item := n
			result = append(result, &item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) CountUnreadNotifications(ctx context.Context, recipient string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, n := range s.notifications {
		if n.Recipient == recipient && !n.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

func (s *MemoryStore) MarkAllNotificationsRead(ctx context.Context, recipient string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for id, n := range s.notifications {
		if n.Recipient == recipient && !n.Read {
			n.Read = true
			s.notifications[id] = n
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.notifications, id)
	return nil
}

func (s *MemoryStore) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.notifications {
		if n.Read && n.CreatedAt.Before(cutoff) {
			delete(s.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

// Message operations

func (s *MemoryStore) CreateMessage(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, *m)
	return nil
}

func (s *MemoryStore) ListThread(ctx context.Context, threadID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Message, 0)
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			item := m
			result = append(result, &item)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *MemoryStore) Inbox(ctx context.Context, user string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]domain.Message)
	for _, m := range s.messages {
		if m.From != user && m.To != user {
			continue
		}
		if current, ok := latest[m.ThreadID]; !ok || !m.CreatedAt.Before(current.CreatedAt) {
			latest[m.ThreadID] = m
		}
	}

	result := make([]*domain.Message, 0, len(latest))
	for _, m := range latest {
		item := m
		result = append(result, &item)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Notifications returns a snapshot of every stored notification, for tests.
func (s *MemoryStore) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
