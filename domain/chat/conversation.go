// Package chat contains core concepts of the support messaging system.
// No runtime, storage, or UI logic should be added here.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation is a persistent two-party thread, identified by its
// unordered participant pair. At most one conversation exists per pair.
// Conversations are never deleted or merged; UpdatedAt is bumped on every
// appended message and is the sole driver of list ordering.
type Conversation struct {
	ID           uuid.UUID
	Participants [2]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PairKey normalizes an unordered participant pair into a stable key.
// PairKey(a, b) == PairKey(b, a) for all a, b.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// NewConversation builds a conversation between two distinct users with
// participants stored in normalized order.
func NewConversation(a, b string, at time.Time) Conversation {
	if b < a {
		a, b = b, a
	}
	return Conversation{
		ID:           uuid.New(),
		Participants: [2]string{a, b},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// PairKey returns the normalized key of this conversation's pair.
func (c Conversation) PairKey() string {
	return PairKey(c.Participants[0], c.Participants[1])
}

// Has tells whether userID is one of the two participants.
func (c Conversation) Has(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// CounterpartOf returns the other participant of the pair. The empty
// string is returned when userID is not a participant.
func (c Conversation) CounterpartOf(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}

// TrimContent applies the single normalization rule for message bodies.
func TrimContent(content string) string {
	return strings.TrimSpace(content)
}
