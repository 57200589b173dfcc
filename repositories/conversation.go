//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
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

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) contract.IConversationRepository {
	return &ConversationRepository{db: db, log: log}
}

// diskConversation is the stored shape of a conversation record.
type diskConversation struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	CreatedAt    int64     `json:"created_at"`
	UpdatedAt    int64     `json:"updated_at"`
}

// Key layout:
//
//	conv:pair:{a}|{b}          -> conversation record (pair normalized, unique per pair)
//	conv:id:{conversation_id}  -> pair key (lookup by id)
//	conv:user:{user_id}:{conversation_id} -> nil (per-user index)
//
// The pair key is the uniqueness anchor: both racing creators write the
// same key, the transaction conflict elects a winner and the loser
// re-reads the winner's record on retry.
func pairRecordKey(pairKey string) []byte { return []byte("conv:pair:" + pairKey) }
func idIndexKey(id uuid.UUID) []byte      { return []byte("conv:id:" + id.String()) }
func userIndexKey(userID string, id uuid.UUID) []byte {
	return []byte("conv:user:" + userID + ":" + id.String())
}

// FindOrCreate resolves the single conversation for the unordered pair
// {a, b}, creating it on first contact. Safe under concurrent calls for
// the same pair: only one record can ever exist per pair key.
func (r *ConversationRepository) FindOrCreate(a, b string, at time.Time) (chat.Conversation, bool, error) {
	if a == b || a == "" || b == "" {
		return chat.Conversation{}, false, apperrors.ErrInvalidPair
	}

	pairKey := chat.PairKey(a, b)
	var result chat.Conversation
	var created bool

	for attempt := 0; attempt < conflictRetries; attempt++ {
		created = false
		err := r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairRecordKey(pairKey))
			if err == nil {
				return item.Value(func(val []byte) error {
					result, err = decodeConversation(val)
					return err
				})
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			conv := chat.NewConversation(a, b, at)
			data, err := json.Marshal(fromConversation(conv))
			if err != nil {
				return err
			}
			if err := txn.Set(pairRecordKey(pairKey), data); err != nil {
				return err
			}
			if err := txn.Set(idIndexKey(conv.ID), []byte(pairKey)); err != nil {
				return err
			}
			for _, p := range conv.Participants {
				if err := txn.Set(userIndexKey(p, conv.ID), nil); err != nil {
					return err
				}
			}
			result = conv
			created = true
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			// Lost the creation race: the winner's record is now
			// committed, the next round returns it.
			r.log.Debug("findOrCreate conflict, retrying", "pair", pairKey)
			continue
		}
		if err != nil {
			return chat.Conversation{}, false, mapStoreErr(err)
		}
		return result, created, nil
	}
	return chat.Conversation{}, false, fmt.Errorf("%w: too many conflicts for pair %s",
		apperrors.ErrStoreUnavailable, pairKey)
}

func (r *ConversationRepository) GetByID(id uuid.UUID) (chat.Conversation, error) {
	var conv chat.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		pairKey, err := readPairKey(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(pairRecordKey(pairKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			conv, err = decodeConversation(val)
			return err
		})
	})
	if err != nil {
		return chat.Conversation{}, mapStoreErr(err)
	}
	return conv, nil
}

// ListFor returns every conversation containing userID, in no particular
// order. Sorting by activity is a presentation concern.
func (r *ConversationRepository) ListFor(userID string) ([]chat.Conversation, error) {
	prefix := []byte("conv:user:" + userID + ":")
	var conversations []chat.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rawID := it.Item().Key()[len(prefix):]
			id, err := uuid.ParseBytes(rawID)
			if err != nil {
				return err
			}
			pairKey, err := readPairKey(txn, id)
			if err != nil {
				return err
			}
			item, err := txn.Get(pairRecordKey(pairKey))
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				conv, err := decodeConversation(val)
				if err != nil {
					return err
				}
				conversations = append(conversations, conv)
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
	return conversations, nil
}

// Touch bumps UpdatedAt after an appended message. Retries on conflict
// with concurrent appenders of the same conversation.
func (r *ConversationRepository) Touch(id uuid.UUID, at time.Time) error {
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err := r.db.Update(func(txn *badger.Txn) error {
			pairKey, err := readPairKey(txn, id)
			if err != nil {
				return err
			}
			item, err := txn.Get(pairRecordKey(pairKey))
			if err != nil {
				return err
			}
			var conv chat.Conversation
			if err := item.Value(func(val []byte) error {
				conv, err = decodeConversation(val)
				return err
			}); err != nil {
				return err
			}
			if at.After(conv.UpdatedAt) {
				conv.UpdatedAt = at
			}
			data, err := json.Marshal(fromConversation(conv))
			if err != nil {
				return err
			}
			return txn.Set(pairRecordKey(pairKey), data)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return mapStoreErr(err)
	}
	return fmt.Errorf("%w: too many conflicts touching %s", apperrors.ErrStoreUnavailable, id)
}

func readPairKey(txn *badger.Txn, id uuid.UUID) (string, error) {
	item, err := txn.Get(idIndexKey(id))
	if err != nil {
		return "", err
	}
	var pairKey string
	err = item.Value(func(val []byte) error {
		pairKey = string(val)
		return nil
	})
	return pairKey, err
}

func fromConversation(conv chat.Conversation) diskConversation {
	return diskConversation{
		ID:           conv.ID.String(),
		Participants: conv.Participants,
		CreatedAt:    conv.CreatedAt.UnixNano(),
		UpdatedAt:    conv.UpdatedAt.UnixNano(),
	}
}

func decodeConversation(val []byte) (chat.Conversation, error) {
	var disk diskConversation
	if err := json.Unmarshal(val, &disk); err != nil {
		return chat.Conversation{}, err
	}
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return chat.Conversation{}, err
	}
	return chat.Conversation{
		ID:           id,
		Participants: disk.Participants,
		CreatedAt:    time.Unix(0, disk.CreatedAt).UTC(),
		UpdatedAt:    time.Unix(0, disk.UpdatedAt).UTC(),
	}, nil
}
