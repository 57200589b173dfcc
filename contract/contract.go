//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"support-chat/domain/chat"
	"support-chat/domain/event"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Snapshot is what the live feed delivers: the current consistent state
// for one feed key, never a diff. A slow subscriber catches up to the
// present instead of replaying a backlog.
type Snapshot interface {
	Key() event.FeedKey
}

// ConversationListSnapshot carries one user's conversations, sorted by
// latest activity descending.
type ConversationListSnapshot struct {
	UserID        string
	Conversations []chat.Conversation
}

func (s ConversationListSnapshot) Key() event.FeedKey {
	return event.FeedKey{Kind: event.KindConversationList, ID: s.UserID}
}

// ThreadSnapshot carries one conversation's full message list in total
// order.
type ThreadSnapshot struct {
	ConversationID uuid.UUID
	Messages       []chat.Message
}

func (s ThreadSnapshot) Key() event.FeedKey {
	return event.FeedKey{Kind: event.KindThread, ID: s.ConversationID.String()}
}

type EventSink interface {
	Consume(ctx context.Context, s Snapshot) error
}

type IRegistry interface {
	GetSinks(key event.FeedKey) []EventSink
	Subscribe(subscriberID string, key event.FeedKey, sink EventSink)
	Unsubscribe(subscriberID string, key event.FeedKey)
}

// IFeed is the push-based subscription layer. Both subscribe calls return
// an unsubscribe handle which takes effect before any later delivery for
// the key.
type IFeed interface {
	SubscribeConversations(subscriberID, userID string, sink EventSink) (unsubscribe func())
	SubscribeThread(subscriberID string, conversationID uuid.UUID, sink EventSink) (unsubscribe func())
	Publish(evt ...event.DomainEvent)
}

type IConversationRepository interface {
	// FindOrCreate returns the one conversation for the unordered pair
	// {a, b}, creating it on first contact. The created flag reports
	// whether this call made the record.
	FindOrCreate(a, b string, at time.Time) (conv chat.Conversation, created bool, err error)
	GetByID(id uuid.UUID) (chat.Conversation, error)
	ListFor(userID string) ([]chat.Conversation, error)
	// Touch bumps UpdatedAt after an appended message.
	Touch(id uuid.UUID, at time.Time) error
}

type IMessageRepository interface {
	// Append persists a new unread message and assigns its order key.
	// The conversation record is passed in so participant membership is
	// checked against committed state.
	Append(conv chat.Conversation, senderID, content, lang string, at time.Time) (chat.Message, error)
	// List returns all messages ascending by order key.
	List(conversationID uuid.UUID) ([]chat.Message, error)
	// MarkRead flips IsRead on every unread message not sent by readerID.
	// It reports how many flags flipped; zero is a no-op, not an error.
	MarkRead(conversationID uuid.UUID, readerID string) (int, error)
	UnreadCount(conversationID uuid.UUID, userID string) (int, error)
}

// IIdentityDirectory resolves user ids to display data. Identity issuance
// itself belongs to another part of the site.
type IIdentityDirectory interface {
	Lookup(userID string) (chat.Identity, error)
	Put(userID string, identity chat.Identity) error
}

// INotificationSink is the OS/browser notification surface. Strictly
// advisory: callers check permission first and ignore every failure.
type INotificationSink interface {
	RequestPermission() bool
	Notify(title, body string) error
}

// ISearchIndex is the full-text index fed on append.
type ISearchIndex interface {
	Index(msg chat.Message) error
	Search(conversationID uuid.UUID, query string) ([]uuid.UUID, error)
}
