package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable chat event, except for the IsRead flag which
// only ever transitions false -> true, and only under a reader that is
// not the sender.
//
// The read model assumes exactly two participants: a single flag per
// message is enough because "read" can only mean "read by the
// counterpart". Group threads would need a per-reader cursor instead.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Content        string
	Lang           string
	IsRead         bool
	// Seq is the order key: strictly increasing per conversation,
	// assigned at append time. Ties on CreatedAt are impossible by
	// construction.
	Seq       uint64
	CreatedAt time.Time
}

// Identity is the directory view of a user, resolved externally.
type Identity struct {
	DisplayName string
	Role        Role
	AvatarURL   string
}
