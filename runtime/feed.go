package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"support-chat/contract"
	"support-chat/domain/event"

	"github.com/google/uuid"
)

// Feed is the push-based live layer. Committed mutations are published as
// dirty feed keys; a single dispatch goroutine rebuilds the current
// snapshot for each dirty key from the store and hands it to every
// registered sink.
//
// Coalescing the dirty set gives last-value-wins per key: a burst of
// appends may collapse into one delivery, but that delivery always
// carries the present state, so a slow subscriber catches up instead of
// replaying a backlog. One dispatch goroutine per feed keeps deliveries
// for the same key in commit order; nothing is ordered across keys.
type Feed struct {
	log           *slog.Logger
	registry      contract.IRegistry
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository

	mu    sync.Mutex
	dirty map[event.FeedKey]struct{}
	nudge chan struct{}
}

func NewFeed(log *slog.Logger, registry contract.IRegistry,
	conversations contract.IConversationRepository,
	messages contract.IMessageRepository) *Feed {
	return &Feed{
		log:           log,
		registry:      registry,
		conversations: conversations,
		messages:      messages,
		dirty:         make(map[event.FeedKey]struct{}),
		nudge:         make(chan struct{}, 1),
	}
}

// Publish marks the keys of the given events dirty. Callers invoke it
// right after the store write commits, so delivery order per key follows
// commit order. Never blocks.
func (f *Feed) Publish(evts ...event.DomainEvent) {
	f.mu.Lock()
	for _, evt := range evts {
		f.dirty[evt.Key()] = struct{}{}
	}
	f.mu.Unlock()

	select {
	case f.nudge <- struct{}{}:
	default:
	}
}

// SubscribeConversations registers a sink for one user's conversation
// list and schedules an initial snapshot so the subscriber starts from
// the present state.
func (f *Feed) SubscribeConversations(subscriberID, userID string, sink contract.EventSink) func() {
	key := event.FeedKey{Kind: event.KindConversationList, ID: userID}
	return f.subscribe(subscriberID, key, sink)
}

// SubscribeThread registers a sink for one conversation's message list.
func (f *Feed) SubscribeThread(subscriberID string, conversationID uuid.UUID, sink contract.EventSink) func() {
	key := event.FeedKey{Kind: event.KindThread, ID: conversationID.String()}
	return f.subscribe(subscriberID, key, sink)
}

func (f *Feed) subscribe(subscriberID string, key event.FeedKey, sink contract.EventSink) func() {
	f.registry.Subscribe(subscriberID, key, sink)
	f.Publish(dirtyKey{key})
	return func() {
		f.registry.Unsubscribe(subscriberID, key)
	}
}

// dirtyKey lets subscribe reuse Publish for the initial delivery.
type dirtyKey struct{ key event.FeedKey }

func (d dirtyKey) Key() event.FeedKey { return d.key }

// Run drains dirty keys until the context ends. On a snapshot build
// failure the key is re-marked dirty and the error is returned, so the
// supervisor restarts the feed after its restart interval; that delay is
// the retry backoff.
func (f *Feed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			f.log.Debug("Context done, stopping feed dispatch")
			return nil
		case <-f.nudge:
			if err := f.flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (f *Feed) flush(ctx context.Context) error {
	for {
		keys := f.takeDirty()
		if len(keys) == 0 {
			return nil
		}
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return nil
			}
			if err := f.deliver(ctx, key); err != nil {
				f.Publish(dirtyKey{key})
				return fmt.Errorf("snapshot for %s %q: %w", key.Kind, key.ID, err)
			}
		}
	}
}

func (f *Feed) takeDirty() []event.FeedKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.dirty) == 0 {
		return nil
	}
	keys := make([]event.FeedKey, 0, len(f.dirty))
	for key := range f.dirty {
		keys = append(keys, key)
	}
	f.dirty = make(map[event.FeedKey]struct{})
	return keys
}

func (f *Feed) deliver(ctx context.Context, key event.FeedKey) error {
	sinks := f.registry.GetSinks(key)
	if len(sinks) == 0 {
		return nil
	}
	snapshot, err := f.buildSnapshot(key)
	if err != nil {
		return err
	}
	for _, sink := range sinks {
		// A failing sink must not starve the others.
		if err := sink.Consume(ctx, snapshot); err != nil {
			f.log.Warn("Sink rejected snapshot", "kind", key.Kind, "id", key.ID, "error", err)
		}
	}
	return nil
}

func (f *Feed) buildSnapshot(key event.FeedKey) (contract.Snapshot, error) {
	switch key.Kind {
	case event.KindConversationList:
		conversations, err := f.conversations.ListFor(key.ID)
		if err != nil {
			return nil, err
		}
		// Most recently active first; UpdatedAt follows the latest
		// message by construction.
		sort.Slice(conversations, func(i, j int) bool {
			return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
		})
		return contract.ConversationListSnapshot{UserID: key.ID, Conversations: conversations}, nil
	case event.KindThread:
		conversationID, err := uuid.Parse(key.ID)
		if err != nil {
			return nil, err
		}
		messages, err := f.messages.List(conversationID)
		if err != nil {
			return nil, err
		}
		return contract.ThreadSnapshot{ConversationID: conversationID, Messages: messages}, nil
	}
	return nil, fmt.Errorf("unknown feed kind %q", key.Kind)
}
