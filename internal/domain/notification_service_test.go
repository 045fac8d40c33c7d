package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/internal/repository"
)

type sentPush struct {
	token string
	body  string
	data  map[string]string
}

type fakePusher struct {
	mu   sync.Mutex
	sent []sentPush
}

func (p *fakePusher) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sentPush{token: token, body: body, data: data})
	return nil
}

func (p *fakePusher) Sent() []sentPush {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentPush(nil), p.sent...)
}

type publishedEvent struct {
	user      string
	eventType string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(ctx context.Context, userID, eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{user: userID, eventType: eventType})
	return nil
}

func (p *fakePublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

type panickingStore struct {
	*repository.MemoryStore
}

func (panickingStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	panic("store exploded")
}

func newNotificationService(store *repository.MemoryStore) *domain.NotificationService {
	return domain.NewNotificationService(store, store, nil, nil, time.Second, zap.NewNop())
}

func seedNotification(t *testing.T, store *repository.MemoryStore, id, user string, read bool, createdAt time.Time) {
	t.Helper()
	require.NoError(t, store.CreateNotification(context.Background(), &domain.Notification{
		ID:        id,
		Recipient: user,
		Kind:      domain.KindSystem,
		Message:   "hello " + id,
		Read:      read,
		CreatedAt: createdAt,
	}))
}

func TestNotifyStoresNotification(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)

	svc.Notify(context.Background(), "u1", domain.KindFollow, "someone followed you", "/users/u2")

	got := store.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].Recipient)
	assert.Equal(t, domain.KindFollow, got[0].Kind)
	assert.Equal(t, "/users/u2", got[0].Link)
	assert.False(t, got[0].Read)
	assert.NotEmpty(t, got[0].ID)
}

func TestNotifySwallowsStoreFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	store.FailNotifications = errors.New("connection refused")
	svc := newNotificationService(store)

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), "u1", domain.KindLike, "liked", "")
	})
	assert.Empty(t, store.Notifications())
}

func TestNotifyRecoversFromPanic(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := domain.NewNotificationService(panickingStore{store}, store, nil, nil, time.Second, zap.NewNop())

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), "u1", domain.KindLike, "liked", "")
	})
}

func TestNotifyIgnoresCallerCancellation(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Notify(ctx, "u1", domain.KindComment, "commented", "/songs/s1")

	assert.Len(t, store.Notifications(), 1)
}

func TestNotifyDropsMalformed(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)

	svc.Notify(context.Background(), "", domain.KindLike, "liked", "")
	svc.Notify(context.Background(), "u1", domain.NotificationKind("poke"), "poked", "")

	assert.Empty(t, store.Notifications())
}

func TestNotifyDeliversPushAndEvent(t *testing.T) {
	store := repository.NewMemoryStore()
	pusher := &fakePusher{}
	events := &fakePublisher{}
	svc := domain.NewNotificationService(store, store, pusher, events, time.Second, zap.NewNop())

	actor := domain.Actor{UserID: "u1"}
	require.NoError(t, svc.RegisterDevice(context.Background(), actor, "device-token"))

	svc.Notify(context.Background(), "u1", domain.KindMention, "you were mentioned", "/songs/s1#comment-c1")

	require.Eventually(t, func() bool { return len(pusher.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	push := pusher.Sent()[0]
	assert.Equal(t, "device-token", push.token)
	assert.Equal(t, "you were mentioned", push.body)
	assert.Equal(t, "mention", push.data["type"])

	require.Eventually(t, func() bool { return len(events.Events()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, publishedEvent{user: "u1", eventType: domain.EventNotification}, events.Events()[0])
}

func TestCreateNotification(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)
	actor := domain.Actor{UserID: "u1"}

	n, err := svc.Create(context.Background(), actor, domain.CreateNotificationRequest{
		User: "u2", Type: "system", Message: "welcome", Link: "/welcome",
	})
	require.NoError(t, err)
	assert.Equal(t, "u2", n.Recipient)
	assert.Equal(t, domain.KindSystem, n.Kind)

	_, err = svc.Create(context.Background(), actor, domain.CreateNotificationRequest{User: "u2", Type: "poke", Message: "x"})
	assert.True(t, domain.IsValidation(err))

	_, err = svc.Create(context.Background(), actor, domain.CreateNotificationRequest{User: "", Type: "system", Message: "x"})
	assert.True(t, domain.IsValidation(err))

	_, err = svc.Create(context.Background(), actor, domain.CreateNotificationRequest{User: "u2", Type: "system", Message: "  "})
	assert.True(t, domain.IsValidation(err))
}

func TestCreateNotificationReportsStoreFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	store.FailNotifications = errors.New("disk full")
	svc := newNotificationService(store)

	_, err := svc.Create(context.Background(), domain.Actor{UserID: "u1"}, domain.CreateNotificationRequest{
		User: "u2", Type: "system", Message: "welcome",
	})
	require.Error(t, err)
	assert.False(t, domain.IsValidation(err))
}

func TestListNotificationsNewestFirst(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	seedNotification(t, store, "n1", "u1", false, base)
	seedNotification(t, store, "n3", "u1", false, base.Add(2*time.Minute))
	seedNotification(t, store, "n2", "u1", true, base.Add(time.Minute))
	seedNotification(t, store, "other", "u2", false, base.Add(3*time.Minute))

	got, err := svc.List(context.Background(), domain.Actor{UserID: "u1"}, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"n3", "n2", "n1"}, []string{got[0].ID, got[1].ID, got[2].ID})

	limited, err := svc.List(context.Background(), domain.Actor{UserID: "u1"}, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestListNotificationsAccess(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)
	seedNotification(t, store, "n1", "u2", false, time.Now())

	_, err := svc.List(context.Background(), domain.Actor{UserID: "u1"}, "u2", 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := svc.List(context.Background(), domain.Actor{UserID: "ops", Admin: true}, "u2", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMarkAllReadOnlyTouchesUser(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)
	now := time.Now()

	seedNotification(t, store, "a1", "u1", false, now)
	seedNotification(t, store, "a2", "u1", false, now)
	seedNotification(t, store, "a3", "u1", true, now)
	seedNotification(t, store, "b1", "u2", false, now)

	actor := domain.Actor{UserID: "u1"}
	updated, err := svc.MarkAllRead(context.Background(), actor, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	count, err := svc.UnreadCount(context.Background(), actor, "")
	require.NoError(t, err)
	assert.Zero(t, count)

	other, err := svc.UnreadCount(context.Background(), domain.Actor{UserID: "u2"}, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, other)

	_, err = svc.MarkAllRead(context.Background(), actor, "u2")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestMarkReadAndDelete(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)
	seedNotification(t, store, "n1", "u1", false, time.Now())

	stranger := domain.Actor{UserID: "u2"}
	assert.ErrorIs(t, svc.MarkRead(context.Background(), stranger, "n1"), domain.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(context.Background(), stranger, "n1"), domain.ErrForbidden)
	assert.ErrorIs(t, svc.MarkRead(context.Background(), stranger, "missing"), domain.ErrNotFound)

	owner := domain.Actor{UserID: "u1"}
	require.NoError(t, svc.MarkRead(context.Background(), owner, "n1"))
	n, err := store.GetNotification(context.Background(), "n1")
	require.NoError(t, err)
	assert.True(t, n.Read)

	require.NoError(t, svc.Delete(context.Background(), owner, "n1"))
	_, err = store.GetNotification(context.Background(), "n1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPurgeRead(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newNotificationService(store)
	now := time.Now().UTC()

	seedNotification(t, store, "old-read", "u1", true, now.Add(-48*time.Hour))
	seedNotification(t, store, "old-unread", "u1", false, now.Add(-48*time.Hour))
	seedNotification(t, store, "new-read", "u1", true, now)

	deleted, err := svc.PurgeRead(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	ids := make([]string, 0)
	for _, n := range store.Notifications() {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{"old-unread", "new-read"}, ids)
}

func TestRegisterDeviceRequiresToken(t *testing.T) {
	svc := newNotificationService(repository.NewMemoryStore())
	err := svc.RegisterDevice(context.Background(), domain.Actor{UserID: "u1"}, " ")
	assert.True(t, domain.IsValidation(err))
}
