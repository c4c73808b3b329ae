package apperror

import "fmt"

// AuthReason classifies a failed sign-up or sign-in.
type AuthReason string

const (
	ReasonInvalidEmail     AuthReason = "invalid-email"
	ReasonWeakPassword     AuthReason = "weak-password"
	ReasonEmailInUse       AuthReason = "email-already-in-use"
	ReasonWrongCredentials AuthReason = "wrong-credentials"
	ReasonUnknown          AuthReason = "unknown"
)

// AuthError is returned by the identity provider. It matches ErrAuth with
// errors.Is, and the reason can be read back with errors.As.
type AuthError struct {
	Reason  AuthReason
	Message string
	Err     error // underlying cause, if any
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("auth/%s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("auth/%s", e.Reason)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError builds an AuthError with the given reason and message.
func NewAuthError(reason AuthReason, message string) *AuthError {
	return &AuthError{Reason: reason, Message: message}
}

// AuthUnknown wraps an unexpected provider failure.
func AuthUnknown(err error) *AuthError {
	return &AuthError{Reason: ReasonUnknown, Message: "identity provider failure", Err: err}
}
