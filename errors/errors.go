package errors

import "fmt"

var (
	ErrInvalidPair      = fmt.Errorf("a conversation needs two distinct participants")
	ErrNotParticipant   = fmt.Errorf("sender is not a participant of the conversation")
	ErrEmptyContent     = fmt.Errorf("message content is empty")
	ErrNotFound         = fmt.Errorf("record not found")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrEmptyWords       = fmt.Errorf("no censored words have been found")
)
