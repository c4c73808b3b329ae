package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/socialhub/internal/auth"
	"github.com/sakif/socialhub/internal/blob"
	"github.com/sakif/socialhub/internal/changefeed"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
	"github.com/sakif/socialhub/internal/repository/sqlite"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires every store against one in-memory database and a blob
// directory under t.TempDir().
type testEnv struct {
	docs     repository.DocumentStore
	blobs    *blob.LocalStore
	profiles *ProfileService
	follows  *FollowService
	posts    *PostService
	messages *MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:", changefeed.NewHub(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newTestEnvWith(t, db)
}

func newTestEnvWith(t *testing.T, docs repository.DocumentStore) *testEnv {
	t.Helper()
	store, err := blob.NewLocalStore(t.TempDir(), "http://localhost/blobs")
	require.NoError(t, err)
	return newTestEnvWithBlobs(t, docs, store, store)
}

func newTestEnvWithBlobs(t *testing.T, docs repository.DocumentStore, store blob.Store, local *blob.LocalStore) *testEnv {
	t.Helper()
	logger := discardLogger()
	return &testEnv{
		docs:     docs,
		blobs:    local,
		profiles: NewProfileService(docs, logger),
		follows:  NewFollowService(docs, logger),
		posts:    NewPostService(docs, blob.NewUploader(store, logger), logger),
		messages: NewMessageService(docs, logger),
	}
}

// as returns a context signed in as uid.
func as(uid, email string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UID: uid, Email: email})
}

// signIn creates the profile for uid the way the sign-in handler does.
func (e *testEnv) signIn(t *testing.T, uid, email string) context.Context {
	t.Helper()
	ctx := as(uid, email)
	_, err := e.profiles.GetOrCreateCurrentProfile(ctx)
	require.NoError(t, err)
	return ctx
}

func (e *testEnv) profile(t *testing.T, uid string) *model.Profile {
	t.Helper()
	p, err := e.profiles.GetProfile(context.Background(), uid)
	require.NoError(t, err)
	require.NotNil(t, p, "profile %s missing", uid)
	return p
}

// next reads one emission or fails after a timeout.
func next[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream emission")
		return nil
	}
}

// waitFor reads emissions until one satisfies cond.
func waitFor[T any](t *testing.T, ch <-chan []T, cond func([]T) bool) []T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			require.True(t, ok, "stream closed unexpectedly")
			if cond(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching emission")
			return nil
		}
	}
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

var errInjected = errors.New("injected failure")

// flakyDocs wraps a real store and fails selected updates.
type flakyDocs struct {
	repository.DocumentStore

	mu          sync.Mutex
	failUpdate  map[string]bool // "collection/id"
	failAddColl map[string]bool
}

func newFlakyDocs(inner repository.DocumentStore) *flakyDocs {
	return &flakyDocs{
		DocumentStore: inner,
		failUpdate:    map[string]bool{},
		failAddColl:   map[string]bool{},
	}
}

func (f *flakyDocs) Update(ctx context.Context, collection, id string, muts ...repository.Mutation) error {
	f.mu.Lock()
	fail := f.failUpdate[collection+"/"+id]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.DocumentStore.Update(ctx, collection, id, muts...)
}

func (f *flakyDocs) Add(ctx context.Context, collection string, doc any) (string, error) {
	f.mu.Lock()
	fail := f.failAddColl[collection]
	f.mu.Unlock()
	if fail {
		return "", errInjected
	}
	return f.DocumentStore.Add(ctx, collection, doc)
}

// brokenBlobs fails the operations it is told to.
type brokenBlobs struct {
	blob.Store
	failPut    bool
	failDelete bool
}

func (b *brokenBlobs) Put(ctx context.Context, key string, body io.ReadSeeker, size int64, ct string) error {
	if b.failPut {
		return errInjected
	}
	return b.Store.Put(ctx, key, body, size, ct)
}

func (b *brokenBlobs) Delete(ctx context.Context, key string) error {
	if b.failDelete {
		return errInjected
	}
	return b.Store.Delete(ctx, key)
}
