// Package repository declares the storage contracts the services depend on.
//
// Services receive these interfaces, never a concrete backend, so a test can
// hand them an in-memory SQLite database or a fake that injects failures.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sakif/socialhub/internal/model"
)

// Snapshot is one document as read from a DocumentStore.
type Snapshot struct {
	Collection string
	ID         string
	Data       json.RawMessage
}

// DataTo decodes the document body into dst.
func (s Snapshot) DataTo(dst any) error {
	return json.Unmarshal(s.Data, dst)
}

// DocumentStore is a schemaless JSON document database.
//
// Documents live in collections addressed by path strings such as "posts" or
// "conversations/<id>/messages". Each write is atomic for the single document
// it touches. There are no multi-document transactions.
type DocumentStore interface {
	// Get returns apperror.ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, collection, id string, doc any) error
	// Add stores doc under a freshly generated id and returns it.
	Add(ctx context.Context, collection string, doc any) (string, error)
	// Update applies mutations to an existing document in one atomic step.
	Update(ctx context.Context, collection, id string, mutations ...Mutation) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	// Watch emits the query result now and again after every write to the
	// collection, until ctx is cancelled.
	Watch(ctx context.Context, q Query) (<-chan []Snapshot, error)
}

// AccountRepository stores identity-backend accounts.
type AccountRepository interface {
	// CreateAccount returns apperror.ErrConflict when the email is taken.
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetAccountByGitHubID(ctx context.Context, githubID int64) (*model.Account, error)
	LinkGitHub(ctx context.Context, uid string, githubID int64) error
}

// SessionRepository stores open sessions so that every instance sharing the
// database accepts the same tokens.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	// GetSession returns apperror.ErrNotFound for unknown or deleted sessions.
	// Expired rows are returned as is; the caller compares ExpiresAt.
	GetSession(ctx context.Context, id string) (*model.Session, error)
	// DeleteSession reports whether a row was removed.
	DeleteSession(ctx context.Context, id string) (bool, error)
	// DeleteExpiredSessions removes sessions that expired at or before t.
	DeleteExpiredSessions(ctx context.Context, t time.Time) (int64, error)
}
