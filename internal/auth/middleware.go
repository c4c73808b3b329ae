package auth

import (
	"context"
	"net/http"
	"strings"
)

// TokenCookie is the HttpOnly cookie holding the session token.
const TokenCookie = "token"

// Authenticator resolves a session token to its identity and session id.
// *Provider implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, string, error)
}

// RequireAuth rejects requests without a live session with 401 and puts the
// Identity of authenticated requests into the context.
//
// The token is read from the "token" cookie first, then from an
// "Authorization: Bearer" header for non-browser clients.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, ok := authenticate(r, authn)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthenticated","message":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth attaches the identity when a valid token is present but lets
// anonymous requests through.
func OptionalAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, _ = authenticate(r, authn)
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, authn Authenticator) (*http.Request, bool) {
	token := tokenFromRequest(r)
	if token == "" {
		return r, false
	}
	id, sid, err := authn.Authenticate(r.Context(), token)
	if err != nil {
		return r, false
	}
	ctx := WithIdentity(r.Context(), id)
	ctx = withSessionID(ctx, sid)
	return r.WithContext(ctx), true
}

func tokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
