//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"time"

	"support-chat/contract"
	"support-chat/domain/chat"
	"support-chat/domain/event"
	"support-chat/errors"
	"support-chat/moderation"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

type IChatService interface {
	FindOrCreate(ctx context.Context, userA, userB string) (chat.Conversation, error)
	Send(ctx context.Context, conversationID uuid.UUID, senderID, content string) (chat.Message, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, readerID string) error
	Conversations(userID string) ([]chat.Conversation, error)
	Messages(conversationID uuid.UUID) ([]chat.Message, error)
	UnreadCount(conversationID uuid.UUID, userID string) (int, error)
	SearchMessages(conversationID uuid.UUID, query string) ([]uuid.UUID, error)
}

// ChatService is the write path of the messaging subsystem. Every
// mutation goes through here: validate, moderate, persist, then publish
// the dirty feed keys — in that order, so subscribers only ever observe
// committed state.
type ChatService struct {
	log           *slog.Logger
	conversations contract.IConversationRepository
	messages      contract.IMessageRepository
	feed          contract.IFeed
	moderator     *moderation.Moderator
	index         contract.ISearchIndex
	now           func() time.Time
}

func NewChatService(log *slog.Logger,
	conversations contract.IConversationRepository,
	messages contract.IMessageRepository,
	feed contract.IFeed,
	moderator *moderation.Moderator,
	index contract.ISearchIndex) *ChatService {
	return &ChatService{
		log:           log,
		conversations: conversations,
		messages:      messages,
		feed:          feed,
		moderator:     moderator,
		index:         index,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// FindOrCreate resolves the single conversation between two users,
// creating it on first contact. Both participants' conversation lists are
// notified when a record was created.
func (s *ChatService) FindOrCreate(_ context.Context, userA, userB string) (chat.Conversation, error) {
	conv, created, err := s.conversations.FindOrCreate(userA, userB, s.now())
	if err != nil {
		return chat.Conversation{}, err
	}
	if created {
		s.log.Info("Conversation created", "conversation_id", conv.ID, "pair", conv.PairKey())
		s.feed.Publish(
			event.ConversationChanged{UserID: conv.Participants[0]},
			event.ConversationChanged{UserID: conv.Participants[1]},
		)
	}
	return conv, nil
}

// Send validates, censors, and appends one message, bumps the
// conversation's UpdatedAt, feeds the search index, and notifies the
// thread plus both conversation lists. The returned message carries its
// assigned id and order key.
func (s *ChatService) Send(_ context.Context, conversationID uuid.UUID, senderID, content string) (chat.Message, error) {
	trimmed := chat.TrimContent(content)
	if trimmed == "" {
		return chat.Message{}, errors.ErrEmptyContent
	}

	conv, err := s.conversations.GetByID(conversationID)
	if err != nil {
		return chat.Message{}, err
	}

	clean := trimmed
	if s.moderator != nil {
		clean = s.moderator.Censor(trimmed)
	}

	msg, err := s.messages.Append(conv, senderID, clean, detectLang(clean), s.now())
	if err != nil {
		return chat.Message{}, err
	}

	if err := s.conversations.Touch(conversationID, msg.CreatedAt); err != nil {
		// The message is committed; a failed bump only delays list
		// reordering until the next append.
		s.log.Warn("UpdatedAt bump failed", "conversation_id", conversationID, "error", err)
	}

	if s.index != nil {
		if err := s.index.Index(msg); err != nil {
			// Derived data: the message itself is safe.
			s.log.Warn("Search indexing failed", "message_id", msg.ID, "error", err)
		}
	}

	s.feed.Publish(
		event.ThreadChanged{ConversationID: conversationID},
		event.ConversationChanged{UserID: conv.Participants[0]},
		event.ConversationChanged{UserID: conv.Participants[1]},
	)
	return msg, nil
}

// MarkRead issues a read receipt: every unread counterpart message in the
// conversation flips to read. Publishing only happens when something
// actually flipped.
func (s *ChatService) MarkRead(_ context.Context, conversationID uuid.UUID, readerID string) error {
	flipped, err := s.messages.MarkRead(conversationID, readerID)
	if err != nil {
		return err
	}
	if flipped == 0 {
		return nil
	}
	s.feed.Publish(
		event.ThreadChanged{ConversationID: conversationID},
		event.ConversationChanged{UserID: readerID},
	)
	return nil
}

func (s *ChatService) Conversations(userID string) ([]chat.Conversation, error) {
	return s.conversations.ListFor(userID)
}

func (s *ChatService) Messages(conversationID uuid.UUID) ([]chat.Message, error) {
	return s.messages.List(conversationID)
}

func (s *ChatService) UnreadCount(conversationID uuid.UUID, userID string) (int, error) {
	return s.messages.UnreadCount(conversationID, userID)
}

func (s *ChatService) SearchMessages(conversationID uuid.UUID, query string) ([]uuid.UUID, error) {
	if s.index == nil {
		return nil, nil
	}
	return s.index.Search(conversationID, query)
}

// detectLang tags the message with its ISO 639-3 code when detection is
// confident enough, empty otherwise.
func detectLang(content string) string {
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return whatlanggo.LangToString(info.Lang)
}
