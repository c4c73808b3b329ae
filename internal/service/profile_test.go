package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestGetProfile_AbsentIsNotAnError(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.profiles.GetProfile(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestGetOrCreateCurrentProfile_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := as("u1", "a@x.com")

	first, err := env.profiles.GetOrCreateCurrentProfile(ctx)
	require.NoError(t, err)
	second, err := env.profiles.GetOrCreateCurrentProfile(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.UID, second.UID)
	assert.Equal(t, first.CreatedAt.Micros(), second.CreatedAt.Micros())

	snaps, err := env.docs.Query(context.Background(), repository.Query{Collection: UsersCollection})
	require.NoError(t, err)
	assert.Len(t, snaps, 1, "second call must not create another document")

	assert.Equal(t, "a@x.com", second.Email)
	assert.Empty(t, second.Following)
	assert.Empty(t, second.Followers)
	assert.Zero(t, second.FollowingCount)
}

func TestGetOrCreateCurrentProfile_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.profiles.GetOrCreateCurrentProfile(context.Background())

	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestUpdateCurrentProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.signIn(t, "u1", "a@x.com")

	p, err := env.profiles.UpdateCurrentProfile(ctx, model.ProfileUpdate{
		DisplayName: strPtr("  Alice  "),
		Bio:         strPtr("hello there"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, "hello there", p.Bio)

	// fields not mentioned stay as they are
	p, err = env.profiles.UpdateCurrentProfile(ctx, model.ProfileUpdate{Bio: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Empty(t, p.Bio)
}

func TestUpdateCurrentProfile_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.signIn(t, "u1", "a@x.com")

	tests := []struct {
		name string
		upd  model.ProfileUpdate
	}{
		{"display name too long", model.ProfileUpdate{DisplayName: strPtr(strings.Repeat("n", MaxDisplayNameLength+1))}},
		{"bio too long", model.ProfileUpdate{Bio: strPtr(strings.Repeat("b", MaxBioLength+1))}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.profiles.UpdateCurrentProfile(ctx, tc.upd)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
}

func TestUpdateCurrentProfile_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.profiles.UpdateCurrentProfile(context.Background(), model.ProfileUpdate{Bio: strPtr("x")})

	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "u1", "alice@x.com")
	env.signIn(t, "u2", "bob@x.com")
	carol := env.signIn(t, "u3", "carol@y.com")
	_, err := env.profiles.UpdateCurrentProfile(carol, model.ProfileUpdate{DisplayName: strPtr("Carol Bobbins")})
	require.NoError(t, err)

	got, err := env.profiles.Search(alice, "BOB")
	require.NoError(t, err)

	uids := []string{}
	for _, p := range got {
		uids = append(uids, p.UID)
	}
	assert.ElementsMatch(t, []string{"u2", "u3"}, uids)

	// the caller never finds themselves
	got, err = env.profiles.Search(alice, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = env.profiles.Search(alice, "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggestions_ExcludeSelfAndFollowed(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signIn(t, "u1", "alice@x.com")
	env.signIn(t, "u2", "bob@x.com")
	env.signIn(t, "u3", "carol@x.com")
	require.NoError(t, env.follows.Follow(alice, "u1", "u2"))

	got, err := env.profiles.Suggestions(alice)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "u3", got[0].UID)
}

func TestSuggestions_Limit(t *testing.T) {
	env := newTestEnv(t)
	me := env.signIn(t, "me", "me@x.com")
	for i := 0; i < suggestionLimit+5; i++ {
		uid := "u" + strings.Repeat("z", i+1)
		env.signIn(t, uid, uid+"@x.com")
	}

	got, err := env.profiles.Suggestions(me)
	require.NoError(t, err)
	assert.Len(t, got, suggestionLimit)
}

func TestFindByEmail_CaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "u2", "bob@x.com")

	p, err := env.profiles.FindByEmail(context.Background(), " Bob@X.com ")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "u2", p.UID)

	p, err = env.profiles.FindByEmail(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, p)
}
