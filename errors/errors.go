// Package errors holds the sentinel errors shared by every layer.
// Callers wrap them with fmt.Errorf("...: %w") and match them with errors.Is.
package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrSlowConsumer      = fmt.Errorf("session buffer full")
)

// Conversation error kinds. Every failing operation returns exactly one of them.
var (
	ErrPermissionDenied   = fmt.Errorf("permission denied")
	ErrInvalidParticipant = fmt.Errorf("invalid participant")
	ErrAlreadyRemoved     = fmt.Errorf("participant already removed")
	ErrInvalidSequence    = fmt.Errorf("invalid sequence")
	ErrRangeTooLarge      = fmt.Errorf("range too large")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrTextTooLong        = fmt.Errorf("text too long")
	ErrInternal           = fmt.Errorf("internal error")
)

var (
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrEmptyMessage         = fmt.Errorf("message has neither text nor payload")
	ErrSequenceConflict     = fmt.Errorf("sequence conflict")
	ErrUnknownUser          = fmt.Errorf("unknown user")
	ErrUserAlreadyExists    = fmt.Errorf("user already exists")
	ErrInvalidPayload       = fmt.Errorf("invalid payload")
	ErrInvalidRequest       = fmt.Errorf("invalid request")
	ErrUnauthenticated      = fmt.Errorf("unauthenticated")
)
