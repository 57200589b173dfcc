//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_identity_directory.go -package=mocks
// Package identity is the local stand-in for the site's user directory.
// The messaging subsystem only ever reads display data from it; account
// creation and credentials live elsewhere in the site.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"

	"support-chat/contract"
	"support-chat/domain/chat"
	apperrors "support-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

type Directory struct {
	db *badger.DB
}

func NewDirectory(db *badger.DB) contract.IIdentityDirectory {
	return &Directory{db: db}
}

type diskIdentity struct {
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func identityKey(userID string) []byte {
	return []byte("user:" + userID)
}

// Lookup resolves a user id to its display data, ErrNotFound on miss.
func (d *Directory) Lookup(userID string) (chat.Identity, error) {
	var disk diskIdentity
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &disk)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return chat.Identity{}, apperrors.ErrNotFound
		}
		return chat.Identity{}, fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return chat.Identity{
		DisplayName: disk.DisplayName,
		Role:        chat.Role(disk.Role),
		AvatarURL:   disk.AvatarURL,
	}, nil
}

// Put stores or replaces a directory entry. Used for seeding; the real
// directory is fed by the account system.
func (d *Directory) Put(userID string, identity chat.Identity) error {
	data, err := json.Marshal(diskIdentity{
		DisplayName: identity.DisplayName,
		Role:        string(identity.Role),
		AvatarURL:   identity.AvatarURL,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(identityKey(userID), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
	return nil
}
