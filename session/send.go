package session

import (
	"context"
	"time"

	"support-chat/contract"
	"support-chat/domain/chat"

	"github.com/google/uuid"
)

// pendingWindow bounds content-based deduplication of an optimistic entry
// against its confirmed twin arriving through the subscription.
const pendingWindow = 10 * time.Second

type sendState string

const (
	sendPending   sendState = "pending"
	sendConfirmed sendState = "confirmed"
	sendFailed    sendState = "failed"
)

// pendingSend is the explicit state machine of one in-flight optimistic
// send: Pending -> Confirmed | Failed. Keeping it as data (instead of
// promise chaining) lets tests drive both outcomes deterministically.
type pendingSend struct {
	localID     uuid.UUID
	content     string // as typed, after trimming; restored on failure
	at          time.Time
	state       sendState
	confirmedID uuid.UUID // set on confirmation, for exact dedup
}

// Send runs the optimistic send algorithm on the current input field:
//
//  1. Empty trimmed input or no active thread: silent no-op.
//  2. Render an optimistic entry under a temporary local id and clear
//     the input immediately.
//  3. Call the store asynchronously.
//  4. On success the authoritative message also arrives via the thread
//     subscription; reconciliation drops the optimistic twin.
//  5. On failure the optimistic entry disappears, the input is restored,
//     and the error is surfaced. No ghost messages.
func (c *Controller) Send(ctx context.Context) {
	pending, conversationID, ok := c.beginSend()
	if !ok {
		return
	}
	go func() {
		msg, err := c.service.Send(ctx, conversationID, c.userID, pending.content)
		c.finishSend(pending.localID, msg, err)
	}()
}

// beginSend performs the synchronous, visible half of the algorithm.
func (c *Controller) beginSend() (*pendingSend, uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	trimmed := chat.TrimContent(c.input)
	if trimmed == "" || c.state != StateThreadActive || c.active == nil {
		return nil, uuid.Nil, false
	}

	pending := &pendingSend{
		localID: uuid.New(),
		content: trimmed,
		at:      time.Now().UTC(),
		state:   sendPending,
	}
	c.pending = append(c.pending, pending)
	c.input = ""
	conversationID := c.active.ID
	c.thread = append(c.thread, chat.Message{
		ID:             pending.localID,
		ConversationID: conversationID,
		SenderID:       c.userID,
		Content:        pending.content,
		CreatedAt:      pending.at,
	})
	c.rerenderThreadLocked()
	return pending, conversationID, true
}

// finishSend applies the confirmed/failed transition. On failure the
// optimistic entry disappears from the rendered thread and the unsent
// text goes back into the input field, unless the user already typed
// something new.
func (c *Controller) finishSend(localID uuid.UUID, msg chat.Message, err error) {
	c.mu.Lock()
	for _, p := range c.pending {
		if p.localID != localID {
			continue
		}
		if err != nil {
			p.state = sendFailed
		} else {
			p.state = sendConfirmed
			p.confirmedID = msg.ID
		}
		break
	}
	if err != nil {
		restored := c.removePending(localID)
		kept := c.thread[:0]
		for _, m := range c.thread {
			if m.ID != localID {
				kept = append(kept, m)
			}
		}
		c.thread = kept
		if c.input == "" {
			c.input = restored
		}
		c.rerenderThreadLocked()
	}
	c.mu.Unlock()

	if err != nil {
		c.toast(err)
	}
}

// removePending deletes the entry for localID and returns its content.
func (c *Controller) removePending(localID uuid.UUID) string {
	var content string
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.localID == localID {
			content = p.content
			continue
		}
		kept = append(kept, p)
	}
	c.pending = kept
	return content
}

// applyThread reconciles a thread snapshot with in-flight optimistic
// sends and fires notifications for fresh counterpart messages.
func (c *Controller) applyThread(snapshot contract.ThreadSnapshot) {
	c.mu.Lock()
	if c.state != StateThreadActive || c.active == nil || c.active.ID != snapshot.ConversationID {
		// Stale delivery for a thread no longer open.
		c.mu.Unlock()
		return
	}

	c.reconcilePending(snapshot.Messages)

	var fresh []chat.Message
	for _, msg := range snapshot.Messages {
		if msg.Seq > c.lastSeen {
			if msg.SenderID != c.userID {
				fresh = append(fresh, msg)
			}
			c.lastSeen = msg.Seq
		}
	}

	c.thread = append([]chat.Message(nil), snapshot.Messages...)
	c.thread = append(c.thread, c.optimisticMessages()...)
	notifyInBackground := !c.foreground
	c.rerenderThreadLocked()
	c.mu.Unlock()

	// The active thread is on screen; only a backgrounded app notifies.
	if notifyInBackground {
		for _, msg := range fresh {
			c.notify("New message from "+c.displayName(msg.SenderID), msg.Content)
		}
	}
}

// reconcilePending drops every optimistic entry whose authoritative twin
// is present in the snapshot: by confirmed id when the append call
// already returned, by sender+content inside the pending window when the
// subscription outran the call.
func (c *Controller) reconcilePending(messages []chat.Message) {
	if len(c.pending) == 0 {
		return
	}
	now := time.Now().UTC()
	kept := c.pending[:0]
	for _, p := range c.pending {
		confirmed := false
		for _, msg := range messages {
			if p.state == sendConfirmed && msg.ID == p.confirmedID {
				confirmed = true
				break
			}
			if msg.SenderID == c.userID && msg.Content == p.content &&
				now.Sub(p.at) < pendingWindow {
				confirmed = true
				break
			}
		}
		if !confirmed {
			kept = append(kept, p)
		}
	}
	c.pending = kept
}

// optimisticMessages renders the still-pending sends as local messages
// appended after the authoritative list.
func (c *Controller) optimisticMessages() []chat.Message {
	var out []chat.Message
	for _, p := range c.pending {
		if p.state == sendFailed {
			continue
		}
		out = append(out, chat.Message{
			ID:             p.localID,
			ConversationID: c.active.ID,
			SenderID:       c.userID,
			Content:        p.content,
			CreatedAt:      p.at,
		})
	}
	return out
}

// rerenderThreadLocked pushes the current thread view to the renderer.
// Caller holds the mutex.
func (c *Controller) rerenderThreadLocked() {
	if c.renderer == nil || c.active == nil {
		return
	}
	view := make([]chat.Message, len(c.thread))
	copy(view, c.thread)
	c.renderer.RenderThread(*c.active, view)
}
