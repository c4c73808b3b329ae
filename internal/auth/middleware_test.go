package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubAuthenticator map[string]Identity

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (Identity, string, error) {
	id, ok := s[token]
	if !ok {
		return Identity{}, "", errors.New("bad token")
	}
	return id, "sess-" + token, nil
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			w.Write([]byte("anonymous"))
			return
		}
		sid, _ := SessionIDFromContext(r.Context())
		w.Write([]byte(id.UID + "/" + sid))
	})
}

func TestRequireAuth(t *testing.T) {
	authn := stubAuthenticator{"good": {UID: "u1", Email: "a@x.com"}}
	h := RequireAuth(authn)(echoIdentity())

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantBody   string
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized, ""},
		{"bad cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "bad"})
		}, http.StatusUnauthorized, ""},
		{"good cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "good"})
		}, http.StatusOK, "u1/sess-good"},
		{"bearer header", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer good")
		}, http.StatusOK, "u1/sess-good"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), "unauthenticated")
			}
		})
	}
}

func TestOptionalAuth_LetsAnonymousThrough(t *testing.T) {
	h := OptionalAuth(stubAuthenticator{})(echoIdentity())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}
