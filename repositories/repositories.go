// Package repositories persists conversations and messages in BadgerDB.
//
// Writes go through serializable transactions: two racing writers on the
// same keys make one of them fail with badger.ErrConflict, which the
// repositories retry. This is what linearizes appends per conversation and
// guarantees one conversation per pair without a global lock.
package repositories

import (
	"errors"
	"fmt"

	apperrors "support-chat/errors"

	"github.com/dgraph-io/badger/v4"
)

// conflictRetries bounds the optimistic retry loop. Conflicts only happen
// between writers of the same conversation, so a handful is plenty.
const conflictRetries = 16

// mapStoreErr folds backend failures into the store taxonomy. Key misses
// become ErrNotFound, everything else ErrStoreUnavailable with the cause
// attached.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrNotFound
	}
	return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
}
