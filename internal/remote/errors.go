package remote

import (
	"errors"
	"fmt"
)

// Common errors returned by the remote store client
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("remote store unavailable")
)

// ValidationError is a 4xx rejection carrying the server's user-facing
// message (malformed coupon, bad quantity). Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ConflictError is a business conflict such as stock exhausted during add.
// Surfaced verbatim, never retried.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Message)
}

// IsTransient reports whether the error is worth retrying with backoff:
// transport failures and 5xx responses. Auth, validation and conflict
// rejections are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) {
		return false
	}
	var ve *ValidationError
	var ce *ConflictError
	if errors.As(err, &ve) || errors.As(err, &ce) {
		return false
	}
	return true
}
