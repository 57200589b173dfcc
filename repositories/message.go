//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"support-chat/contract"
	"support-chat/domain/chat"
	apperrors "support-chat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) contract.IMessageRepository {
	return &MessageRepository{db: db, log: log}
}

// diskMessage is the stored shape of a message.
type diskMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	Lang           string `json:"lang,omitempty"`
	IsRead         bool   `json:"is_read"`
	Seq            uint64 `json:"seq"`
	CreatedAt      int64  `json:"created_at"`
}

// Key layout:
//
//	msg:{conversation_id}:{seq_padded} -> message record
//	msg:seq:{conversation_id}          -> last assigned sequence number
//
// The sequence is padded to 19 digits so a plain lexicographic prefix
// scan yields the total order. It is assigned inside the append
// transaction: two racing appends collide on the counter key, one
// retries, and the order stays strict and gap-free.
func messageKey(conversationID uuid.UUID, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d", conversationID, seq))
}

func seqKey(conversationID uuid.UUID) []byte {
	return []byte("msg:seq:" + conversationID.String())
}

func messagePrefix(conversationID uuid.UUID) []byte {
	return []byte("msg:" + conversationID.String() + ":")
}

// Append persists a new unread message and assigns its order key. The
// sender must belong to the conversation and the content must already be
// trimmed and non-empty.
func (m *MessageRepository) Append(conv chat.Conversation, senderID, content, lang string, at time.Time) (chat.Message, error) {
	if !conv.Has(senderID) {
		return chat.Message{}, apperrors.ErrNotParticipant
	}
	if chat.TrimContent(content) == "" {
		return chat.Message{}, apperrors.ErrEmptyContent
	}

	msg := chat.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		Lang:           lang,
		IsRead:         false,
		CreatedAt:      at.UTC(),
	}

	for attempt := 0; attempt < conflictRetries; attempt++ {
		err := m.db.Update(func(txn *badger.Txn) error {
			seq, err := nextSeq(txn, conv.ID)
			if err != nil {
				return err
			}
			msg.Seq = seq

			data, err := json.Marshal(fromMessage(msg))
			if err != nil {
				return err
			}
			return txn.Set(messageKey(conv.ID, seq), data)
		})
		if errors.Is(err, badger.ErrConflict) {
			m.log.Debug("append conflict, retrying", "conversation_id", conv.ID)
			continue
		}
		if err != nil {
			return chat.Message{}, mapStoreErr(err)
		}
		return msg, nil
	}
	return chat.Message{}, fmt.Errorf("%w: too many conflicts appending to %s",
		apperrors.ErrStoreUnavailable, conv.ID)
}

// nextSeq bumps and persists the per-conversation counter within the
// caller's transaction.
func nextSeq(txn *badger.Txn, conversationID uuid.UUID) (uint64, error) {
	var seq uint64
	item, err := txn.Get(seqKey(conversationID))
	switch {
	case err == nil:
		err = item.Value(func(val []byte) error {
			seq = binary.BigEndian.Uint64(val)
			return nil
		})
		if err != nil {
			return 0, err
		}
	case errors.Is(err, badger.ErrKeyNotFound):
		// First message of the conversation.
	default:
		return 0, err
	}

	seq++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return seq, txn.Set(seqKey(conversationID), buf)
}

// List returns all messages of the conversation ascending by order key.
// Thanks to the padded sequence in the key, the iterator order is the
// total order.
func (m *MessageRepository) List(conversationID uuid.UUID) ([]chat.Message, error) {
	var messages []chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				msg, err := decodeMessage(val)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return messages, nil
}

// MarkRead flips IsRead on every unread message whose sender is not the
// reader. Idempotent: a second call finds nothing to flip and succeeds.
func (m *MessageRepository) MarkRead(conversationID uuid.UUID, readerID string) (int, error) {
	var flipped int
	for attempt := 0; attempt < conflictRetries; attempt++ {
		flipped = 0
		err := m.db.Update(func(txn *badger.Txn) error {
			prefix := messagePrefix(conversationID)
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()

			type pending struct {
				key  []byte
				data []byte
			}
			var updates []pending

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				key := item.KeyCopy(nil)
				err := item.Value(func(val []byte) error {
					var disk diskMessage
					if err := json.Unmarshal(val, &disk); err != nil {
						return err
					}
					if disk.IsRead || disk.SenderID == readerID {
						return nil
					}
					disk.IsRead = true
					data, err := json.Marshal(disk)
					if err != nil {
						return err
					}
					updates = append(updates, pending{key: key, data: data})
					return nil
				})
				if err != nil {
					return err
				}
			}

			// Writes happen after the iterator closes; badger forbids
			// Set while iterating the same transaction.
			for _, u := range updates {
				if err := txn.Set(u.key, u.data); err != nil {
					return err
				}
			}
			flipped = len(updates)
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, mapStoreErr(err)
		}
		return flipped, nil
	}
	return 0, fmt.Errorf("%w: too many conflicts marking %s read",
		apperrors.ErrStoreUnavailable, conversationID)
}

// UnreadCount counts messages sent by the counterpart and not yet read.
func (m *MessageRepository) UnreadCount(conversationID uuid.UUID, userID string) (int, error) {
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var disk diskMessage
				if err := json.Unmarshal(val, &disk); err != nil {
					return err
				}
				if !disk.IsRead && disk.SenderID != userID {
					count++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return count, nil
}

func fromMessage(msg chat.Message) diskMessage {
	return diskMessage{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Lang:           msg.Lang,
		IsRead:         msg.IsRead,
		Seq:            msg.Seq,
		CreatedAt:      msg.CreatedAt.UnixNano(),
	}
}

func decodeMessage(val []byte) (chat.Message, error) {
	var disk diskMessage
	if err := json.Unmarshal(val, &disk); err != nil {
		return chat.Message{}, err
	}
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return chat.Message{}, err
	}
	conversationID, err := uuid.Parse(disk.ConversationID)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       disk.SenderID,
		Content:        disk.Content,
		Lang:           disk.Lang,
		IsRead:         disk.IsRead,
		Seq:            disk.Seq,
		CreatedAt:      time.Unix(0, disk.CreatedAt).UTC(),
	}, nil
}
