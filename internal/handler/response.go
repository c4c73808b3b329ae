// Package handler is the HTTP and websocket surface.
//
// HANDLER RESPONSIBILITIES:
// A handler decodes the request, calls one service method and encodes the
// result. It never touches the database. The one check it adds on its own
// is ownership (post author, conversation participant), which the stores do
// not enforce.
package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError, so every error the
// API returns has the same shape:
//
//	{"error": "not_found", "message": "posts not found with id abc123"}
//
// The "error" field is machine-readable. For credential failures it carries
// the provider reason ("wrong-credentials", "email-already-in-use", ...), so
// a sign-in form can react to it without parsing the message.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/socialhub/internal/apperror"
)

// maxJSONBody caps request bodies decoded by decodeJSON.
const maxJSONBody = 64 << 10

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status go out before the body. Once Encode writes, any header
// change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and error type.
//
// errors.Is walks the whole chain, so a store error wrapped by a service
// with fmt.Errorf("...: %w", err) still maps to the right status:
//
//	service returns: fmt.Errorf("service/post: getting p1: %w", apperror.NotFound(...))
//	which wraps:     AppError{Err: ErrNotFound}
//	errors.Is walks: outer error → AppError → ErrNotFound ✓
func errorStatus(err error) (int, string) {
	var authErr *apperror.AuthError
	if errors.As(err, &authErr) {
		switch authErr.Reason {
		case apperror.ReasonWrongCredentials:
			return http.StatusUnauthorized, string(authErr.Reason)
		case apperror.ReasonUnknown:
			return http.StatusInternalServerError, string(authErr.Reason)
		default:
			return http.StatusBadRequest, string(authErr.Reason)
		}
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrUnknownRecipient):
		return http.StatusNotFound, "unknown_recipient"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrSelfFollow):
		return http.StatusUnprocessableEntity, "self_follow"
	case errors.Is(err, apperror.ErrSelfChat):
		return http.StatusUnprocessableEntity, "self_chat"
	case errors.Is(err, apperror.ErrTransient):
		return http.StatusServiceUnavailable, "transient"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps err to a status code and sends it.
//
// Only messages of typed errors reach the client. Anything else becomes a
// generic 500: raw error text can contain SQL or file paths.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)

	message := "An internal error occurred"
	var authErr *apperror.AuthError
	var appErr *apperror.AppError
	switch {
	case errors.As(err, &authErr) && authErr.Reason != apperror.ReasonUnknown:
		message = authErr.Message
	case errors.As(err, &appErr):
		message = appErr.Message
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", slog.String("error", err.Error()))
	}

	writeJSON(w, status, ErrorResponse{Error: errorType, Message: message})
}

// decodeJSON reads a single JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is empty")
		}
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	return nil
}
