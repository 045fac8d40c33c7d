package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMentions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "great track", nil},
		{"single", "nice one @dj_k", []string{"dj_k"}},
		{"dedup keeps first order", "@b hey @a and @b again", []string{"b", "a"}},
		{"punctuation ends handle", "thanks @mia, @leo!", []string{"mia", "leo"}},
		{"bare at sign", "email me @ home", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMentions(tt.text))
		})
	}
}

func TestValidHandle(t *testing.T) {
	assert.True(t, ValidHandle("dj_k9"))
	assert.False(t, ValidHandle("dj k"))
	assert.False(t, ValidHandle("dj-k"))
	assert.False(t, ValidHandle(""))
}

func TestNotificationKindValid(t *testing.T) {
	assert.True(t, KindMention.Valid())
	assert.True(t, KindNewPlaylist.Valid())
	assert.False(t, NotificationKind("poke").Valid())
}

func TestCountUnread(t *testing.T) {
	assert.Equal(t, 0, CountUnread(nil))
	assert.Equal(t, 2, CountUnread([]*Notification{{Read: false}, {Read: true}, {Read: false}}))
}

func TestNewerFirst(t *testing.T) {
	older := &Conversation{ID: "a_b", CreatedAt: mustTime(t, "2024-01-01T00:00:00Z")}
	newer := &Conversation{ID: "a_c", CreatedAt: mustTime(t, "2024-01-01T00:00:00Z"),
		LastMessage: &LastMessage{Timestamp: mustTime(t, "2024-02-01T00:00:00Z")}}

	assert.True(t, NewerFirst(newer, older))
	assert.False(t, NewerFirst(older, newer))
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestReleaseKindNotificationKind(t *testing.T) {
	kind, ok := ReleaseAlbum.NotificationKind()
	assert.True(t, ok)
	assert.Equal(t, KindNewAlbum, kind)

	_, ok = ReleaseKind("mixtape").NotificationKind()
	assert.False(t, ok)
}
