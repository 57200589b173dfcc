package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"support-chat/contract"
	"support-chat/domain/chat"
	apperrors "support-chat/errors"
	"support-chat/identity"
	"support-chat/repositories"
	"support-chat/runtime"
	"support-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

const (
	staffID     = "staff-amina"
	customerID  = "customer-brian"
	customer2ID = "customer-chloe"
)

type fakeRenderer struct {
	mu      sync.Mutex
	lists   [][]ConversationEntry
	threads [][]chat.Message
	toasts  []string
}

func (r *fakeRenderer) RenderList(entries []ConversationEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, entries)
}

func (r *fakeRenderer) RenderThread(_ chat.Conversation, messages []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = append(r.threads, messages)
}

func (r *fakeRenderer) Toast(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, text)
}

func (r *fakeRenderer) lastThread() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.threads) == 0 {
		return nil
	}
	return r.threads[len(r.threads)-1]
}

type fakeNotifier struct {
	permission bool
	mu         sync.Mutex
	titles     []string
}

func (n *fakeNotifier) RequestPermission() bool { return n.permission }

func (n *fakeNotifier) Notify(title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.titles)
}

type controllerFixture struct {
	service  services.IChatService
	feed     contract.IFeed
	dir      contract.IIdentityDirectory
	renderer *fakeRenderer
	notifier *fakeNotifier
}

// newControllerFixture wires a real store behind the controller. The feed
// worker is deliberately not running: deliveries are driven by hand
// through consume, so every test is deterministic.
func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conversations := repositories.NewConversationRepository(db, slog.Default())
	messages := repositories.NewMessageRepository(db, slog.Default())
	feed := runtime.NewFeed(slog.Default(), runtime.NewRegistry(), conversations, messages)
	service := services.NewChatService(slog.Default(), conversations, messages, feed, nil, nil)

	dir := identity.NewDirectory(db)
	require.NoError(t, dir.Put(staffID, chat.Identity{DisplayName: "Amina", Role: chat.RoleStaff}))
	require.NoError(t, dir.Put(customerID, chat.Identity{DisplayName: "Brian", Role: chat.RoleCustomer}))
	require.NoError(t, dir.Put(customer2ID, chat.Identity{DisplayName: "Chloe", Role: chat.RoleCustomer}))

	return &controllerFixture{
		service:  service,
		feed:     feed,
		dir:      dir,
		renderer: &fakeRenderer{},
		notifier: &fakeNotifier{permission: true},
	}
}

func (fx *controllerFixture) controller(userID string) *Controller {
	return NewController(slog.Default(), userID, fx.service, fx.feed,
		fx.dir, fx.notifier, fx.renderer)
}

func TestController_Lifecycle_Transitions(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)

	req.Equal(StateIdle, controller.State())

	req.NoError(controller.Start(ctx))
	req.Equal(StateListLoaded, controller.State())

	req.NoError(controller.StartConversationWith(ctx, staffID))
	req.Equal(StateThreadActive, controller.State())
	req.Len(controller.Entries(), 1)

	controller.CloseThread()
	req.Equal(StateListLoaded, controller.State())

	controller.SignOut()
	req.Equal(StateEnded, controller.State())
}

func TestController_Rejects_Same_Role_Pair(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))

	err := controller.StartConversationWith(ctx, customer2ID)
	req.ErrorIs(err, apperrors.ErrInvalidPair)
	req.Equal(StateListLoaded, controller.State())
	req.Empty(controller.Entries())
}

func TestController_Candidates_Are_Opposite_Role_Only(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	everybody := []string{staffID, customerID, customer2ID, "ghost-user"}

	staffView := fx.controller(staffID).Candidates(everybody)
	req.Len(staffView, 2)
	for _, candidate := range staffView {
		req.NotEqual(staffID, candidate.UserID)
	}

	customerView := fx.controller(customerID).Candidates(everybody)
	req.Len(customerView, 1)
	req.Equal(staffID, customerView[0].UserID)
	req.Equal("Amina", customerView[0].DisplayName)
}

func TestController_Optimistic_Send_Reconciles_With_Confirmation(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))
	req.NoError(controller.StartConversationWith(ctx, staffID))
	conv := controller.Entries()[0].Conversation

	// When the input is committed, the entry shows up before the store
	// round-trip and the field clears
	controller.TypeInput("Is the June departure still open?")
	pending, conversationID, ok := controller.beginSend()
	req.True(ok)
	req.Equal(conv.ID, conversationID)
	req.Empty(controller.Input())
	req.Len(controller.Thread(), 1)
	req.Equal(pending.localID, controller.Thread()[0].ID)

	// And the store confirms
	msg, err := fx.service.Send(ctx, conversationID, customerID, pending.content)
	req.NoError(err)
	controller.finishSend(pending.localID, msg, nil)

	// Then the authoritative snapshot replaces the optimistic twin
	authoritative, err := fx.service.Messages(conversationID)
	req.NoError(err)
	req.NoError(controller.consume(ctx, contract.ThreadSnapshot{
		ConversationID: conversationID,
		Messages:       authoritative,
	}))

	thread := controller.Thread()
	req.Len(thread, 1)
	req.Equal(msg.ID, thread[0].ID)
	req.Equal("Is the June departure still open?", thread[0].Content)
}

func TestController_Failed_Send_Rolls_Back_And_Restores_Input(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))
	req.NoError(controller.StartConversationWith(ctx, staffID))

	controller.TypeInput("please hold my booking")
	pending, _, ok := controller.beginSend()
	req.True(ok)
	req.Len(controller.Thread(), 1)

	// When the store rejects the append
	controller.finishSend(pending.localID, chat.Message{}, errors.New("store exploded"))

	// Then no ghost message survives and the text comes back
	req.Empty(controller.Thread())
	req.Equal("please hold my booking", controller.Input())
	req.NotEmpty(fx.renderer.toasts)
}

func TestController_Failed_Send_Keeps_Newer_Typed_Input(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))
	req.NoError(controller.StartConversationWith(ctx, staffID))

	controller.TypeInput("first draft")
	pending, _, ok := controller.beginSend()
	req.True(ok)

	// The user typed again while the send was in flight
	controller.TypeInput("second draft")
	controller.finishSend(pending.localID, chat.Message{}, errors.New("store exploded"))

	req.Equal("second draft", controller.Input())
}

func TestController_Blank_Input_Is_A_Silent_Noop(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))
	req.NoError(controller.StartConversationWith(ctx, staffID))

	controller.TypeInput("   \t ")
	_, _, ok := controller.beginSend()
	req.False(ok)
	req.Empty(controller.Thread())
}

func TestController_Notifies_On_Unread_Rise_In_Inactive_Conversation(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))

	// Given the staff wrote while the customer only has the list open
	conv, err := fx.service.FindOrCreate(ctx, customerID, staffID)
	req.NoError(err)
	_, err = fx.service.Send(ctx, conv.ID, staffID, "your itinerary changed")
	req.NoError(err)

	conversations, err := fx.service.Conversations(customerID)
	req.NoError(err)
	req.NoError(controller.consume(ctx, contract.ConversationListSnapshot{
		UserID:        customerID,
		Conversations: conversations,
	}))

	req.Equal(1, fx.notifier.count())
	entries := controller.Entries()
	req.Len(entries, 1)
	req.Equal(1, entries[0].UnreadCount)
	req.Equal("your itinerary changed", entries[0].Preview)

	// A repeated delivery with the same count stays quiet
	req.NoError(controller.consume(ctx, contract.ConversationListSnapshot{
		UserID:        customerID,
		Conversations: conversations,
	}))
	req.Equal(1, fx.notifier.count())
}

func TestController_Active_Foreground_Thread_Suppresses_Notification(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))
	req.NoError(controller.StartConversationWith(ctx, staffID))
	conv := controller.Entries()[0].Conversation

	// A counterpart message lands while the thread is on screen
	_, err := fx.service.Send(ctx, conv.ID, staffID, "hello, how can I help?")
	req.NoError(err)
	messages, err := fx.service.Messages(conv.ID)
	req.NoError(err)
	req.NoError(controller.consume(ctx, contract.ThreadSnapshot{
		ConversationID: conv.ID,
		Messages:       messages,
	}))
	req.Zero(fx.notifier.count())

	// Backgrounded, the next counterpart message does notify
	controller.SetForeground(false)
	_, err = fx.service.Send(ctx, conv.ID, staffID, "still there?")
	req.NoError(err)
	messages, err = fx.service.Messages(conv.ID)
	req.NoError(err)
	req.NoError(controller.consume(ctx, contract.ThreadSnapshot{
		ConversationID: conv.ID,
		Messages:       messages,
	}))
	req.Equal(1, fx.notifier.count())
}

func TestController_Stale_Thread_Delivery_Is_Dropped(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))
	req.NoError(controller.StartConversationWith(ctx, staffID))
	conv := controller.Entries()[0].Conversation

	controller.CloseThread()

	// A delivery for the closed thread must not resurrect it
	_, err := fx.service.Send(ctx, conv.ID, staffID, "too late")
	req.NoError(err)
	messages, err := fx.service.Messages(conv.ID)
	req.NoError(err)
	req.NoError(controller.consume(ctx, contract.ThreadSnapshot{
		ConversationID: conv.ID,
		Messages:       messages,
	}))
	req.Empty(controller.Thread())
	req.Equal(StateListLoaded, controller.State())
}

func TestController_Open_Issues_Read_Receipt(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	ctx := context.Background()

	conv, err := fx.service.FindOrCreate(ctx, customerID, staffID)
	req.NoError(err)
	_, err = fx.service.Send(ctx, conv.ID, staffID, "welcome aboard")
	req.NoError(err)

	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))
	req.NoError(controller.Open(ctx, conv.ID))

	unread, err := fx.service.UnreadCount(conv.ID, customerID)
	req.NoError(err)
	req.Zero(unread)
}

func TestController_Denied_Permission_Silences_Notifications(t *testing.T) {
	req := require.New(t)
	fx := newControllerFixture(t)
	fx.notifier.permission = false
	ctx := context.Background()
	controller := fx.controller(customerID)
	req.NoError(controller.Start(ctx))

	conv, err := fx.service.FindOrCreate(ctx, customerID, staffID)
	req.NoError(err)
	_, err = fx.service.Send(ctx, conv.ID, staffID, "psst")
	req.NoError(err)

	conversations, err := fx.service.Conversations(customerID)
	req.NoError(err)
	req.NoError(controller.consume(ctx, contract.ConversationListSnapshot{
		UserID:        customerID,
		Conversations: conversations,
	}))
	req.Zero(fx.notifier.count())
}
