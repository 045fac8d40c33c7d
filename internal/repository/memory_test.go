package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunehub/backend/internal/domain"
)

func TestUserHandlesAreCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.UpsertUser(ctx, &domain.User{ID: "u1", Handle: "Nova"})
	require.NoError(t, err)

	u, err := s.GetUserByHandle(ctx, "nova")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = s.UpsertUser(ctx, &domain.User{ID: "u2", Handle: "NOVA"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestFollowersInFollowOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.CreateFollow(ctx, &domain.Follow{FollowerID: "late", FolloweeID: "star", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.CreateFollow(ctx, &domain.Follow{FollowerID: "early", FolloweeID: "star", CreatedAt: base}))
	assert.ErrorIs(t, s.CreateFollow(ctx, &domain.Follow{FollowerID: "early", FolloweeID: "star"}), domain.ErrConflict)

	followers, err := s.ListFollowers(ctx, "star")
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, followers)
}

func TestNotificationQueries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, n := range []domain.Notification{
		{ID: "a", Recipient: "u1", Read: true},
		{ID: "b", Recipient: "u1"},
		{ID: "c", Recipient: "u1"},
		{ID: "d", Recipient: "u2"},
	} {
		n := n
		n.Kind = domain.KindSystem
		n.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.CreateNotification(ctx, &n))
	}

	list, err := s.ListNotifications(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	unread, err := s.CountUnreadNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread)

	changed, err := s.MarkAllNotificationsRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	// a and b are read and older than the cutoff
	deleted, err := s.DeleteReadNotificationsBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	assert.ErrorIs(t, s.MarkNotificationRead(ctx, "a"), domain.ErrNotFound)
	assert.ErrorIs(t, s.DeleteNotification(ctx, "a"), domain.ErrNotFound)
	require.NoError(t, s.DeleteNotification(ctx, "d"))
}

func TestDeviceTokens(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SaveDeviceToken(ctx, "u1", "tok-b"))
	require.NoError(t, s.SaveDeviceToken(ctx, "u1", "tok-a"))
	require.NoError(t, s.SaveDeviceToken(ctx, "u2", "tok-c"))

	tokens, err := s.GetDeviceTokens(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a", "tok-b"}, tokens)

	// a token moves with the account that registered it last
	require.NoError(t, s.SaveDeviceToken(ctx, "u2", "tok-a"))
	tokens, err = s.GetDeviceTokens(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-b"}, tokens)

	deleted, err := s.DeleteStaleDeviceTokens(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)
}

func TestInboxLatestPerThread(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i, m := range []domain.Message{
		{ID: "1", From: "a", To: "b", Text: "first"},
		{ID: "2", From: "b", To: "a", Text: "second"},
		{ID: "3", From: "a", To: "c", Text: "third"},
	} {
		m := m
		m.ThreadID = domain.ThreadID(m.From, m.To)
		m.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateMessage(ctx, &m))
	}

	inbox, err := s.Inbox(ctx, "a")
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, "3", inbox[0].ID)
	assert.Equal(t, "2", inbox[1].ID)

	inbox, err = s.Inbox(ctx, "c")
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	thread, err := s.ListThread(ctx, "a_b")
	require.NoError(t, err)
	assert.Len(t, thread, 2)
}
