package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadID(t *testing.T) {
	assert.Equal(t, "alice_bob", ThreadID("alice", "bob"))
	assert.Equal(t, ThreadID("alice", "bob"), ThreadID("bob", "alice"))
	assert.Equal(t, "u1_u1", ThreadID("u1", "u1"))
}

func TestThreadParticipants(t *testing.T) {
	a, b, err := ThreadParticipants("alice_bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	for _, bad := range []string{"", "alice", "alice_", "_bob", "a_b_c"} {
		_, _, err := ThreadParticipants(bad)
		assert.True(t, IsValidation(err), "thread id %q", bad)
	}
}

func TestOtherParticipant(t *testing.T) {
	to, err := OtherParticipant("a_b", "a")
	require.NoError(t, err)
	assert.Equal(t, "b", to)

	to, err = OtherParticipant("a_b", "b")
	require.NoError(t, err)
	assert.Equal(t, "a", to)

	_, err = OtherParticipant("a_b", "c")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("user", "u-1"))
	assert.True(t, IsValidation(ValidateIdentifier("user", " ")))
	assert.True(t, IsValidation(ValidateIdentifier("user", "has_underscore")))
}

func TestActorCanActFor(t *testing.T) {
	assert.True(t, Actor{UserID: "u1"}.CanActFor("u1"))
	assert.False(t, Actor{UserID: "u1"}.CanActFor("u2"))
	assert.False(t, Actor{}.CanActFor(""))
	assert.True(t, Actor{UserID: "root", Admin: true}.CanActFor("u2"))
}
