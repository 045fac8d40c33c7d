package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
	"github.com/tunehub/backend/internal/realtime"
)

func TestOpenConversationIsIdempotent(t *testing.T) {
	svc := domain.NewChatService(realtime.NewMemoryStore(), nil, zap.NewNop())
	ctx := context.Background()

	first, err := svc.OpenConversation(ctx, domain.Actor{UserID: "bob"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", first.ID)
	assert.Equal(t, []string{"alice", "bob"}, first.Participants)

	second, err := svc.OpenConversation(ctx, domain.Actor{UserID: "alice"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	_, err = svc.OpenConversation(ctx, domain.Actor{UserID: "bob"}, "bob")
	assert.True(t, domain.IsValidation(err))
}

func TestChatSendMessage(t *testing.T) {
	events := &fakePublisher{}
	svc := domain.NewChatService(realtime.NewMemoryStore(), events, zap.NewNop())
	ctx := context.Background()
	bob := domain.Actor{UserID: "bob"}

	conv, err := svc.OpenConversation(ctx, bob, "alice")
	require.NoError(t, err)

	msg, err := svc.SendMessage(ctx, bob, conv.ID, "hey")
	require.NoError(t, err)
	assert.Equal(t, "bob", msg.SenderID)

	convs, err := svc.ListConversations(ctx, domain.Actor{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hey", convs[0].LastMessage.Text)
	assert.Equal(t, msg.Timestamp, convs[0].LastMessage.Timestamp)

	msgs, err := svc.ListMessages(ctx, bob, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	_, err = svc.SendMessage(ctx, domain.Actor{UserID: "eve"}, conv.ID, "intrude")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.ListMessages(ctx, domain.Actor{UserID: "eve"}, conv.ID, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.SendMessage(ctx, bob, conv.ID, " ")
	assert.True(t, domain.IsValidation(err))

	_, err = svc.SendMessage(ctx, bob, "alice_nobody", "hi")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChatConversationsOrderedByActivity(t *testing.T) {
	svc := domain.NewChatService(realtime.NewMemoryStore(), nil, zap.NewNop())
	ctx := context.Background()
	bob := domain.Actor{UserID: "bob"}

	withAlice, err := svc.OpenConversation(ctx, bob, "alice")
	require.NoError(t, err)
	withCarol, err := svc.OpenConversation(ctx, bob, "carol")
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, bob, withCarol.ID, "first")
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, bob, withAlice.ID, "second")
	require.NoError(t, err)

	convs, err := svc.ListConversations(ctx, bob)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, withAlice.ID, convs[0].ID)
	assert.Equal(t, withCarol.ID, convs[1].ID)
}
