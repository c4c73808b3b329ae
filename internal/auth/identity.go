package auth

import "context"

// Identity is the signed-in user as seen by the stores.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// contextKey is unexported so no other package can read or shadow these values.
type contextKey string

const (
	identityKey  contextKey = "identity"
	sessionIDKey contextKey = "sessionID"
)

// WithIdentity returns a context carrying id as the active session's user.
// Stores read it back with IdentityFromContext.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the active identity, or false for anonymous calls.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UID != ""
}

func withSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sid)
}

// SessionIDFromContext returns the session the request was authenticated with.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDKey).(string)
	return sid, ok && sid != ""
}
