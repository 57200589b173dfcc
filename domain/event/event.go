package event

import "github.com/google/uuid"

// Kind discriminates the two subscription targets of the live feed.
type Kind string

const (
	// KindConversationList targets one user's conversation list.
	KindConversationList Kind = "conversation-list"
	// KindThread targets one conversation's message list.
	KindThread Kind = "thread"
)

// FeedKey identifies a subscription target: a user id for conversation
// lists, a conversation id for threads. Updates to the same key are
// observed in commit order; nothing is guaranteed across keys.
type FeedKey struct {
	Kind Kind
	ID   string
}

// DomainEvent marks a committed mutation that invalidates one feed key.
type DomainEvent interface {
	Key() FeedKey
}

// ConversationChanged fires when a conversation containing the user
// changed: a new message bumped its UpdatedAt, a read receipt landed, or
// the conversation was just created.
type ConversationChanged struct {
	UserID string
}

func (e ConversationChanged) Key() FeedKey {
	return FeedKey{Kind: KindConversationList, ID: e.UserID}
}

// ThreadChanged fires when a message was appended to the conversation or
// an existing message's read flag flipped.
type ThreadChanged struct {
	ConversationID uuid.UUID
}

func (e ThreadChanged) Key() FeedKey {
	return FeedKey{Kind: KindThread, ID: e.ConversationID.String()}
}
