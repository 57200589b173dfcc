package runtime

import (
	"context"
	"testing"

	"support-chat/contract"
	"support-chat/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type nullSink struct{}

func (s nullSink) Consume(_ context.Context, _ contract.Snapshot) error {
	return nil
}

func listKey(userID string) event.FeedKey {
	return event.FeedKey{Kind: event.KindConversationList, ID: userID}
}

func threadKey(conversationID string) event.FeedKey {
	return event.FeedKey{Kind: event.KindThread, ID: conversationID}
}

func TestRegistry_Subscribe_One_Key_One_Subscriber(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	subscriberID := uuid.NewString()
	key := threadKey(uuid.NewString())
	sink := nullSink{}

	// Given nobody is connected
	req.Empty(registry.Sessions)
	req.Empty(registry.Members)

	// When a subscriber watches a thread
	registry.Subscribe(subscriberID, key, sink)

	// Then
	req.Len(registry.Sessions, 1)
	req.Equal(sink, registry.Sessions[subscriberID])

	req.Len(registry.Members, 1)
	req.Contains(registry.Members[key], subscriberID)

	req.Len(registry.GetSinks(key), 1)
	req.Contains(registry.GetSinks(key), contract.EventSink(sink))
}

func TestRegistry_Subscribe_One_Key_Multiple_Subscribers(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	key := threadKey(uuid.NewString())

	// When two browser tabs watch the same thread
	registry.Subscribe(uuid.NewString(), key, nullSink{})
	registry.Subscribe(uuid.NewString(), key, nullSink{})

	// Then both sinks are resolved for the key
	req.Len(registry.Sessions, 2)
	req.Len(registry.Members[key], 2)
	req.Len(registry.GetSinks(key), 2)
}

func TestRegistry_Unsubscribe_Removes_Key_And_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	subscriberID := uuid.NewString()
	key := listKey("customer-1")

	// Given a subscriber watches one key
	registry.Subscribe(subscriberID, key, nullSink{})

	// When it unsubscribes
	registry.Unsubscribe(subscriberID, key)

	// Then nothing is left behind
	req.Empty(registry.Sessions)
	req.Empty(registry.Members)
	req.Nil(registry.GetSinks(key))
}

func TestRegistry_Unsubscribe_Keeps_Session_While_Other_Keys_Remain(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	subscriberID := uuid.NewString()
	list := listKey("customer-1")
	thread := threadKey(uuid.NewString())
	sink := nullSink{}

	// Given one session watches its list and an open thread
	registry.Subscribe(subscriberID, list, sink)
	registry.Subscribe(subscriberID, thread, sink)

	// When the thread is closed
	registry.Unsubscribe(subscriberID, thread)

	// Then the list subscription still delivers
	req.Len(registry.Sessions, 1)
	req.Nil(registry.GetSinks(thread))
	req.Len(registry.GetSinks(list), 1)

	// And signing out clears everything
	registry.Unsubscribe(subscriberID, list)
	req.Empty(registry.Sessions)
	req.Empty(registry.Members)
}
