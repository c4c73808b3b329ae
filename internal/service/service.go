// Package service contains the stores the rest of the application talks to.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses, checks ownership
//	Service (Business layer) → validates, maintains denormalized fields, orchestrates
//	Repository (Data layer)  → reads/writes documents
//
// Services depend on repository.DocumentStore (an interface), never on the
// SQLite package, so the tests can run them against an in-memory database or
// against a fake that fails on purpose.
//
// WHO IS "THE CURRENT USER"?
// Mutating calls read the signed-in user from the context (auth.WithIdentity).
// The HTTP middleware puts it there; tests put it there by hand. A context
// without an identity means apperror.ErrUnauthenticated.
//
// MULTI-DOCUMENT WRITES:
// The document store only guarantees atomicity for a single document. Follow,
// unfollow and send-message touch two documents one after the other. When the
// second write fails, the first one stays applied and the error is returned
// as is. Nothing is retried or rolled back.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/auth"
	"github.com/sakif/socialhub/internal/repository"
)

// Collection names.
const (
	UsersCollection         = "users"
	PostsCollection         = "posts"
	ConversationsCollection = "conversations"
)

// currentUser returns the identity of the active session.
func currentUser(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return auth.Identity{}, apperror.Unauthenticated()
	}
	return id, nil
}

// requireText trims s and checks it is non-empty and at most max characters.
func requireText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(s) > max {
		return "", apperror.ValidationFailed(field, fmt.Sprintf("%s must be %d characters or fewer", field, max))
	}
	return s, nil
}

// isNotFound reports whether err means the document does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

// snapshotTo decodes snap into a new T and hands the document id to setID.
func snapshotTo[T any](snap repository.Snapshot, setID func(*T, string)) (T, error) {
	var v T
	if err := snap.DataTo(&v); err != nil {
		return v, fmt.Errorf("service: decoding %s/%s: %w", snap.Collection, snap.ID, err)
	}
	if setID != nil {
		setID(&v, snap.ID)
	}
	return v, nil
}
