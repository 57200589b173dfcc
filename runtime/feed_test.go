package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"support-chat/contract"
	"support-chat/domain/event"
	"support-chat/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	snapshots chan contract.Snapshot
}

func newRecordingSink() *recordingSink {
	return &recordingSink{snapshots: make(chan contract.Snapshot, 64)}
}

func (s *recordingSink) Consume(_ context.Context, snap contract.Snapshot) error {
	s.snapshots <- snap
	return nil
}

func (s *recordingSink) next(t *testing.T) contract.Snapshot {
	t.Helper()
	select {
	case snap := <-s.snapshots:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered in time")
		return nil
	}
}

func (s *recordingSink) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case snap := <-s.snapshots:
		t.Fatalf("unexpected snapshot after unsubscribe: %+v", snap)
	case <-time.After(150 * time.Millisecond):
	}
}

type feedFixture struct {
	feed          *Feed
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
}

func newFeedFixture(t *testing.T) feedFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conversations := repositories.NewConversationRepository(db, slog.Default())
	messages := repositories.NewMessageRepository(db, slog.Default())
	feed := NewFeed(slog.Default(), NewRegistry(), conversations, messages)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = feed.Run(ctx) }()

	return feedFixture{feed: feed, conversations: conversations, messages: messages}
}

func TestFeed_Thread_Subscription_Delivers_Current_Snapshot(t *testing.T) {
	req := require.New(t)
	fx := newFeedFixture(t)
	at := time.Now().UTC()

	conv, _, err := fx.conversations.FindOrCreate("customer-1", "staff-1", at)
	req.NoError(err)

	// Subscribing delivers the present state first, here an empty thread
	sink := newRecordingSink()
	unsubscribe := fx.feed.SubscribeThread("tab-1", conv.ID, sink)
	defer unsubscribe()

	initial, ok := sink.next(t).(contract.ThreadSnapshot)
	req.True(ok)
	req.Empty(initial.Messages)

	// A committed append followed by a publish reaches the subscriber
	_, err = fx.messages.Append(conv, "customer-1", "Hello", "", at)
	req.NoError(err)
	fx.feed.Publish(event.ThreadChanged{ConversationID: conv.ID})

	updated, ok := sink.next(t).(contract.ThreadSnapshot)
	req.True(ok)
	req.Len(updated.Messages, 1)
	req.Equal("Hello", updated.Messages[0].Content)
}

func TestFeed_Burst_Coalesces_To_Latest_State(t *testing.T) {
	req := require.New(t)
	fx := newFeedFixture(t)
	at := time.Now().UTC()

	conv, _, err := fx.conversations.FindOrCreate("customer-1", "staff-1", at)
	req.NoError(err)

	sink := newRecordingSink()
	unsubscribe := fx.feed.SubscribeThread("tab-1", conv.ID, sink)
	defer unsubscribe()

	// When five appends publish in a burst
	const burst = 5
	for i := 0; i < burst; i++ {
		_, err := fx.messages.Append(conv, "customer-1", "hello", "", at)
		req.NoError(err)
		fx.feed.Publish(event.ThreadChanged{ConversationID: conv.ID})
	}

	// Then intermediate deliveries may be skipped, but the last observed
	// snapshot is the full committed list
	var last contract.ThreadSnapshot
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-sink.snapshots:
			last = snap.(contract.ThreadSnapshot)
		case <-deadline:
			t.Fatal("never caught up to the full thread")
		}
		if len(last.Messages) == burst {
			return
		}
	}
}

func TestFeed_Unsubscribe_Stops_Deliveries(t *testing.T) {
	req := require.New(t)
	fx := newFeedFixture(t)
	at := time.Now().UTC()

	conv, _, err := fx.conversations.FindOrCreate("customer-1", "staff-1", at)
	req.NoError(err)

	sink := newRecordingSink()
	unsubscribe := fx.feed.SubscribeThread("tab-1", conv.ID, sink)
	sink.next(t) // initial snapshot

	unsubscribe()

	_, err = fx.messages.Append(conv, "customer-1", "after unsubscribe", "", at)
	req.NoError(err)
	fx.feed.Publish(event.ThreadChanged{ConversationID: conv.ID})

	sink.expectSilence(t)
}

func TestFeed_Conversation_List_Sorted_By_Activity(t *testing.T) {
	req := require.New(t)
	fx := newFeedFixture(t)
	at := time.Now().UTC()

	older, _, err := fx.conversations.FindOrCreate("customer-1", "staff-1", at)
	req.NoError(err)
	newer, _, err := fx.conversations.FindOrCreate("customer-1", "staff-2", at.Add(time.Second))
	req.NoError(err)

	sink := newRecordingSink()
	unsubscribe := fx.feed.SubscribeConversations("tab-1", "customer-1", sink)
	defer unsubscribe()

	snap, ok := sink.next(t).(contract.ConversationListSnapshot)
	req.True(ok)
	req.Len(snap.Conversations, 2)
	req.Equal(newer.ID, snap.Conversations[0].ID)

	// A message in the older conversation moves it to the top
	_, err = fx.messages.Append(older, "staff-1", "are you still there?", "", at.Add(2*time.Second))
	req.NoError(err)
	req.NoError(fx.conversations.Touch(older.ID, at.Add(2*time.Second)))
	fx.feed.Publish(event.ConversationChanged{UserID: "customer-1"})

	snap, ok = sink.next(t).(contract.ConversationListSnapshot)
	req.True(ok)
	req.Equal(older.ID, snap.Conversations[0].ID)
}
