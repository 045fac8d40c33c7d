package domain

import (
	"strings"
)

// ThreadSeparator joins the two participant identifiers of a thread id.
// Identifiers themselves must never contain it.
const ThreadSeparator = "_"

// ThreadID returns the order-independent thread id of a two-party exchange:
// the identifiers sorted lexicographically and joined by ThreadSeparator.
func ThreadID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ThreadSeparator + b
}

// ThreadParticipants splits a thread id back into its two participants.
func ThreadParticipants(threadID string) (string, string, error) {
	parts := strings.Split(threadID, ThreadSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", Invalid("threadId", "must join exactly two participant ids")
	}
	return parts[0], parts[1], nil
}

// OtherParticipant returns the participant of threadID that is not sender.
func OtherParticipant(threadID, sender string) (string, error) {
	a, b, err := ThreadParticipants(threadID)
	if err != nil {
		return "", err
	}
	switch sender {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", ErrForbidden
}

// ValidateIdentifier checks that id can take part in a thread id.
func ValidateIdentifier(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return Invalid(field, "is required")
	}
	if strings.Contains(id, ThreadSeparator) {
		return Invalid(field, "must not contain "+ThreadSeparator)
	}
	return nil
}
