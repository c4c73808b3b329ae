// Package apperror defines the error taxonomy shared by every layer.
//
// Stores return these errors; handlers translate them to HTTP status codes.
// Callers test for a category with errors.Is against the sentinels below and
// extract the human-readable message with errors.As(*AppError).
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrUnauthenticated means a mutating call ran without an active session.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSelfFollow is returned when a user tries to follow or unfollow themselves.
	ErrSelfFollow = errors.New("cannot follow yourself")
	// ErrSelfChat is returned when a user tries to open a conversation with themselves.
	ErrSelfChat = errors.New("cannot start a conversation with yourself")
	// ErrUnknownRecipient means no profile exists for the requested email.
	ErrUnknownRecipient = errors.New("unknown recipient")
	// ErrAuth wraps every credential or identity-provider failure.
	ErrAuth = errors.New("authentication error")
	// ErrTransient marks network or backend failures that may succeed on a later attempt.
	ErrTransient = errors.New("transient backend error")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated returns an AppError for calls that need a session.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "an active session is required",
	}
}

func SelfFollow() *AppError {
	return &AppError{
		Err:     ErrSelfFollow,
		Message: "you cannot follow or unfollow yourself",
	}
}

func SelfChat() *AppError {
	return &AppError{
		Err:     ErrSelfChat,
		Message: "you cannot start a conversation with yourself",
	}
}

func UnknownRecipient(email string) *AppError {
	return &AppError{
		Err:     ErrUnknownRecipient,
		Message: fmt.Sprintf("no user found with email %s", email),
	}
}

// Transient wraps err as a TransientBackendError while keeping the original
// error reachable through errors.Is / errors.As.
func Transient(op string, err error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrTransient, err),
		Message: fmt.Sprintf("%s: backend temporarily unavailable", op),
	}
}

// IsTransient reports whether err looks like a network or deadline failure.
// It is used by backend adapters to decide whether to wrap with Transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
