// Package runtime handles subscription bookkeeping and live-feed
// propagation. It orchestrates delivery without containing domain rules.
package runtime

import (
	"sync"

	"support-chat/contract"
	"support-chat/domain/event"
)

type Set map[string]struct{}

// Registry tracks which subscriber wants updates for which feed key.
type Registry struct {
	mu sync.RWMutex
	// Sessions maps subscriber id -> sink. A subscriber keeps a single
	// delivery channel even when watching several keys.
	Sessions map[string]contract.EventSink
	// Members maps feed key -> subscriber ids.
	Members map[event.FeedKey]Set
}

func NewRegistry() *Registry {
	return &Registry{
		Sessions: make(map[string]contract.EventSink),
		Members:  make(map[event.FeedKey]Set),
	}
}

// GetSinks resolves the active sinks for a feed key in two steps:
// key -> subscriber ids, then ids -> sinks. Returns nil when nobody is
// watching the key.
func (r *Registry) GetSinks(key event.FeedKey) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.Members[key]
	if !ok {
		return nil
	}
	var sinks []contract.EventSink
	for subscriberID := range members {
		if sink, exists := r.Sessions[subscriberID]; exists {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

// Subscribe registers the subscriber's sink and adds it to the key's
// membership, initializing the key on the fly.
func (r *Registry) Subscribe(subscriberID string, key event.FeedKey, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Sessions[subscriberID] = sink
	if _, ok := r.Members[key]; !ok {
		r.Members[key] = make(Set)
	}
	r.Members[key][subscriberID] = struct{}{}
}

// Unsubscribe removes the subscriber from the key. The sink itself is
// dropped once the subscriber watches no key at all, and empty membership
// sets are removed so the maps don't grow forever.
func (r *Registry) Unsubscribe(subscriberID string, key event.FeedKey) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.Members[key]; ok {
		delete(members, subscriberID)
		if len(members) == 0 {
			delete(r.Members, key)
		}
	}

	for _, members := range r.Members {
		if _, still := members[subscriberID]; still {
			return
		}
	}
	delete(r.Sessions, subscriberID)
}
