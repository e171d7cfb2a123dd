package chat

import "errors"

// Validation failures are detected before anything is persisted; a failed
// send never leaves a row behind.
var (
	ErrEmptyContent    = errors.New("content must not be empty")
	ErrInvalidReceiver = errors.New("receiver_id is required")
	ErrSelfMessage     = errors.New("cannot message yourself")
	ErrSelfContact     = errors.New("cannot add yourself as a contact")
)
