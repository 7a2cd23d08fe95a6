package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrNotParticipant       = errors.New("user is not a participant of this conversation")
)

// ValidationError rejects a send before it reaches the store. The reason is
// safe to surface verbatim to the user.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validation sentinels, one per user-facing rejection.
var (
	ErrEmptyContent        = &ValidationError{Reason: "message is empty"}
	ErrContentTooLong      = &ValidationError{Reason: fmt.Sprintf("message exceeds %d characters", MaxContentLength)}
	ErrRepeatedContent     = &ValidationError{Reason: "message looks like spam"}
	ErrSelfMessage         = &ValidationError{Reason: "you cannot send a message to yourself"}
	ErrRecipientNotFound   = &ValidationError{Reason: "recipient does not exist"}
	ErrConversationCeiling = &ValidationError{Reason: fmt.Sprintf("you have reached the limit of %d conversations", MaxConversationsPerUser)}
)

// ErrRateLimited rejects a send when the advisory per-user window is
// exhausted. Recoverable; the caller should wait and retry.
var ErrRateLimited = errors.New("you are sending messages too quickly, please wait a moment")

// IsValidation reports whether err is a pre-network rejection (validation or
// rate limit) as opposed to a store failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrRateLimited)
}

// StoreError wraps a failed remote operation. Always recoverable: the
// triggering operation is abandoned and local state is left untouched.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err is a transient remote-store failure.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
