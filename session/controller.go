// Package session drives one signed-in client: the live conversation
// list, the active thread, optimistic sends, read receipts, and advisory
// notifications. Everything here is a transient, derived copy of store
// state; the repositories stay the single source of truth.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"support-chat/contract"
	"support-chat/domain/chat"
	apperrors "support-chat/errors"
	"support-chat/services"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// State is the controller's lifecycle position.
type State string

const (
	StateIdle         State = "idle"
	StateListLoaded   State = "list-loaded"
	StateThreadActive State = "thread-active"
	StateEnded        State = "ended"
)

// ConversationEntry is one rendered row of the conversation list.
type ConversationEntry struct {
	Conversation    chat.Conversation
	CounterpartID   string
	CounterpartName string
	Preview         string
	UnreadCount     int
	LastActivity    time.Time
}

// Candidate is a user the current one may start a conversation with.
type Candidate struct {
	UserID      string
	DisplayName string
}

// Renderer receives the controller's view state. Implementations must not
// call back into the controller.
type Renderer interface {
	RenderList(entries []ConversationEntry)
	RenderThread(conv chat.Conversation, messages []chat.Message)
	Toast(text string)
}

// Controller is the per-session state machine:
//
//	Idle -> ListLoaded (Start)
//	ListLoaded -> ThreadActive (Open / StartConversationWith)
//	ThreadActive -> ListLoaded (CloseThread)
//	any -> Ended (SignOut)
//
// All entry points and feed callbacks serialize on one mutex, mirroring
// the single-threaded cooperative event handling of a browser client.
type Controller struct {
	log       *slog.Logger
	userID    string
	sessionID string
	service   services.IChatService
	feed      contract.IFeed
	directory contract.IIdentityDirectory
	notifier  contract.INotificationSink
	renderer  Renderer

	mu         sync.Mutex
	state      State
	entries    []ConversationEntry
	active     *chat.Conversation
	thread     []chat.Message
	pending    []*pendingSend
	input      string
	foreground bool
	lastSeen   uint64         // highest Seq observed in the active thread
	prevUnread map[string]int // conversation id -> last rendered unread count
	names      map[string]string

	unsubscribeList   func()
	unsubscribeThread func()

	retryBase time.Duration
	retryMax  time.Duration
}

func NewController(log *slog.Logger, userID string,
	service services.IChatService, feed contract.IFeed,
	directory contract.IIdentityDirectory,
	notifier contract.INotificationSink,
	renderer Renderer) *Controller {
	return &Controller{
		log:        log,
		userID:     userID,
		sessionID:  uuid.NewString(),
		service:    service,
		feed:       feed,
		directory:  directory,
		notifier:   notifier,
		renderer:   renderer,
		state:      StateIdle,
		foreground: true,
		prevUnread: make(map[string]int),
		names:      make(map[string]string),
		retryBase:  200 * time.Millisecond,
		retryMax:   5 * time.Second,
	}
}

// Start subscribes to the user's conversation list. A transiently
// unavailable store is retried with doubling backoff instead of giving
// up; any other failure is surfaced.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	// Probe the store before wiring the subscription, so a dead backend
	// at sign-in does not leave a half-started session.
	err := c.withBackoff(ctx, func() error {
		_, err := c.service.Conversations(c.userID)
		return err
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribeList = c.feed.SubscribeConversations(c.sessionID+":list", c.userID, sinkFunc(c.consume))
	c.state = StateListLoaded
	return nil
}

// Open activates a conversation: subscribe to its message list and issue
// the read receipt. Opening an unknown conversation surfaces ErrNotFound.
func (c *Controller) Open(ctx context.Context, conversationID uuid.UUID) error {
	c.mu.Lock()
	if c.state != StateListLoaded && c.state != StateThreadActive {
		c.mu.Unlock()
		return nil
	}
	var conv *chat.Conversation
	for i := range c.entries {
		if c.entries[i].Conversation.ID == conversationID {
			conv = &c.entries[i].Conversation
			break
		}
	}
	c.mu.Unlock()

	if conv == nil {
		loaded, err := c.findConversation(conversationID)
		if err != nil {
			return err
		}
		conv = &loaded
	}

	c.mu.Lock()
	if c.unsubscribeThread != nil {
		c.unsubscribeThread()
		c.unsubscribeThread = nil
	}
	c.active = conv
	c.thread = nil
	c.lastSeen = 0
	c.state = StateThreadActive
	c.unsubscribeThread = c.feed.SubscribeThread(c.sessionID+":thread", conversationID, sinkFunc(c.consume))
	c.mu.Unlock()

	if err := c.service.MarkRead(ctx, conversationID, c.userID); err != nil {
		c.toast(err)
	}
	return nil
}

// CloseThread navigates back to the list. The unsubscribe happens under
// the lock, so no further thread render can slip in afterwards.
func (c *Controller) CloseThread() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateThreadActive {
		return
	}
	if c.unsubscribeThread != nil {
		c.unsubscribeThread()
		c.unsubscribeThread = nil
	}
	c.active = nil
	c.thread = nil
	c.pending = nil
	c.state = StateListLoaded
}

// SignOut tears the session down. Terminal: the controller cannot be
// restarted.
func (c *Controller) SignOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribeThread != nil {
		c.unsubscribeThread()
		c.unsubscribeThread = nil
	}
	if c.unsubscribeList != nil {
		c.unsubscribeList()
		c.unsubscribeList = nil
	}
	c.active = nil
	c.thread = nil
	c.pending = nil
	c.state = StateEnded
}

// StartConversationWith resolves (or creates) the conversation with the
// candidate and jumps straight to the active thread.
func (c *Controller) StartConversationWith(ctx context.Context, counterpartID string) error {
	me, err := c.directory.Lookup(c.userID)
	if err != nil {
		c.toast(err)
		return err
	}
	other, err := c.directory.Lookup(counterpartID)
	if err != nil {
		c.toast(err)
		return err
	}
	if !chat.CanContact(me.Role, other.Role) {
		return apperrors.ErrInvalidPair
	}

	conv, err := c.service.FindOrCreate(ctx, c.userID, counterpartID)
	if err != nil {
		c.toast(err)
		return err
	}

	c.mu.Lock()
	c.entries = append(c.entries, ConversationEntry{
		Conversation:    conv,
		CounterpartID:   counterpartID,
		CounterpartName: other.DisplayName,
		LastActivity:    conv.UpdatedAt,
	})
	c.mu.Unlock()
	return c.Open(ctx, conv.ID)
}

// Candidates filters the given user ids down to those the current user
// may contact: customers see staff, staff see customers.
func (c *Controller) Candidates(userIDs []string) []Candidate {
	me, err := c.directory.Lookup(c.userID)
	if err != nil {
		return nil
	}
	return lo.FilterMap(userIDs, func(id string, _ int) (Candidate, bool) {
		if id == c.userID {
			return Candidate{}, false
		}
		identity, err := c.directory.Lookup(id)
		if err != nil || !chat.CanContact(me.Role, identity.Role) {
			return Candidate{}, false
		}
		return Candidate{UserID: id, DisplayName: identity.DisplayName}, true
	})
}

// TypeInput replaces the input field content.
func (c *Controller) TypeInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
}

// Input returns the current input field content.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetForeground records whether the application is visible. A background
// app gets notified even for the active thread.
func (c *Controller) SetForeground(foreground bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.foreground = foreground
}

// State returns the controller's current lifecycle position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Entries returns the rendered conversation list.
func (c *Controller) Entries() []ConversationEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ConversationEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Thread returns the rendered active thread, optimistic entries included.
func (c *Controller) Thread() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, len(c.thread))
	copy(out, c.thread)
	return out
}

// consume is the single entry point for feed deliveries.
func (c *Controller) consume(ctx context.Context, snapshot contract.Snapshot) error {
	switch s := snapshot.(type) {
	case contract.ConversationListSnapshot:
		c.applyList(s)
	case contract.ThreadSnapshot:
		c.applyThread(s)
	}
	_ = ctx
	return nil
}

// applyList rebuilds the annotated, sorted conversation list and fires a
// notification for any non-active conversation whose unread count rose.
func (c *Controller) applyList(snapshot contract.ConversationListSnapshot) {
	entries := make([]ConversationEntry, 0, len(snapshot.Conversations))
	for _, conv := range snapshot.Conversations {
		entries = append(entries, c.annotate(conv))
	}
	// Most recently active first; latest-message time wins, UpdatedAt is
	// the fallback for empty conversations.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastActivity.After(entries[j].LastActivity)
	})

	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	var toNotify []ConversationEntry
	for _, entry := range entries {
		id := entry.Conversation.ID.String()
		activeHere := c.active != nil && c.active.ID == entry.Conversation.ID
		if entry.UnreadCount > c.prevUnread[id] && !activeHere {
			toNotify = append(toNotify, entry)
		}
		c.prevUnread[id] = entry.UnreadCount
	}
	c.entries = entries
	renderer := c.renderer
	c.mu.Unlock()

	for _, entry := range toNotify {
		c.notify("New message from "+entry.CounterpartName, entry.Preview)
	}
	if renderer != nil {
		renderer.RenderList(entries)
	}
}

// annotate resolves the counterpart's display name and derives preview,
// unread count, and last-activity time for one list row.
func (c *Controller) annotate(conv chat.Conversation) ConversationEntry {
	counterpartID := conv.CounterpartOf(c.userID)
	entry := ConversationEntry{
		Conversation:    conv,
		CounterpartID:   counterpartID,
		CounterpartName: c.displayName(counterpartID),
		LastActivity:    conv.UpdatedAt,
	}
	if unread, err := c.service.UnreadCount(conv.ID, c.userID); err == nil {
		entry.UnreadCount = unread
	}
	if messages, err := c.service.Messages(conv.ID); err == nil && len(messages) > 0 {
		latest := messages[len(messages)-1]
		entry.Preview = latest.Content
		entry.LastActivity = latest.CreatedAt
	}
	return entry
}

// displayName caches directory lookups for the session's lifetime.
func (c *Controller) displayName(userID string) string {
	c.mu.Lock()
	if name, ok := c.names[userID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	identity, err := c.directory.Lookup(userID)
	if err != nil {
		return userID
	}
	c.mu.Lock()
	c.names[userID] = identity.DisplayName
	c.mu.Unlock()
	return identity.DisplayName
}

// findConversation locates a conversation of the current user by id.
func (c *Controller) findConversation(conversationID uuid.UUID) (chat.Conversation, error) {
	conversations, err := c.service.Conversations(c.userID)
	if err != nil {
		return chat.Conversation{}, err
	}
	for _, conv := range conversations {
		if conv.ID == conversationID {
			return conv, nil
		}
	}
	return chat.Conversation{}, apperrors.ErrNotFound
}

// notify is the advisory notification path: permission checked first,
// every failure swallowed. It must never break delivery.
func (c *Controller) notify(title, body string) {
	if c.notifier == nil || !c.notifier.RequestPermission() {
		return
	}
	if err := c.notifier.Notify(title, body); err != nil {
		c.log.Debug("Notification dropped", "error", err)
	}
}

// toast surfaces a non-blocking, user-visible error.
func (c *Controller) toast(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	renderer := c.renderer
	c.mu.Unlock()
	if renderer != nil {
		renderer.Toast(err.Error())
	}
	c.log.Warn("Surfaced error", "user_id", c.userID, "error", err)
}

// withBackoff retries fn on transient store failures with doubling delay.
func (c *Controller) withBackoff(ctx context.Context, fn func() error) error {
	delay := c.retryBase
	for {
		err := fn()
		if err == nil || !errors.Is(err, apperrors.ErrStoreUnavailable) {
			return err
		}
		c.log.Warn("Store unavailable, retrying", "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.retryMax {
			delay = c.retryMax
		}
	}
}

// sinkFunc adapts a function to the EventSink interface.
type sinkFunc func(ctx context.Context, s contract.Snapshot) error

func (f sinkFunc) Consume(ctx context.Context, s contract.Snapshot) error {
	return f(ctx, s)
}
