package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/socialhub/internal/apperror"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", apperror.ValidationFailed("content", "required"), http.StatusBadRequest, "validation_error"},
		{"unauthenticated", apperror.Unauthenticated(), http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", apperror.Forbidden("no"), http.StatusForbidden, "forbidden"},
		{"not found", apperror.NotFound("posts", "p1"), http.StatusNotFound, "not_found"},
		{"wrapped not found", fmt.Errorf("service: %w", apperror.NotFound("posts", "p1")), http.StatusNotFound, "not_found"},
		{"conflict", apperror.Conflict("accounts", "a@x.com"), http.StatusConflict, "conflict"},
		{"self follow", apperror.SelfFollow(), http.StatusUnprocessableEntity, "self_follow"},
		{"self chat", apperror.SelfChat(), http.StatusUnprocessableEntity, "self_chat"},
		{"unknown recipient", apperror.UnknownRecipient("z@x.com"), http.StatusNotFound, "unknown_recipient"},
		{"transient", apperror.Transient("query", errors.New("timeout")), http.StatusServiceUnavailable, "transient"},
		{"wrong credentials", apperror.NewAuthError(apperror.ReasonWrongCredentials, "bad"), http.StatusUnauthorized, "wrong-credentials"},
		{"email in use", apperror.NewAuthError(apperror.ReasonEmailInUse, "taken"), http.StatusBadRequest, "email-already-in-use"},
		{"weak password", apperror.NewAuthError(apperror.ReasonWeakPassword, "short"), http.StatusBadRequest, "weak-password"},
		{"auth unknown", apperror.AuthUnknown(errors.New("disk")), http.StatusInternalServerError, "unknown"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, typ := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantType, typ)
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"typed message passes through", apperror.Forbidden("only the author can delete this post"), "only the author can delete this post"},
		{"raw error is hidden", errors.New("sql: no such table documents"), "An internal error occurred"},
		{"auth unknown is hidden", apperror.AuthUnknown(errors.New("bcrypt exploded")), "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, tt.err)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.wantMsg, resp.Message)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Content string `json:"content"`
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"content":"hi"}`, false},
		{"empty body", ``, true},
		{"malformed", `{"content":`, true},
		{"unknown field", `{"content":"hi","extra":1}`, true},
		{"too large", `{"content":"` + strings.Repeat("x", maxJSONBody) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			var dst body
			err := decodeJSON(httptest.NewRecorder(), r, &dst)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "hi", dst.Content)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}
