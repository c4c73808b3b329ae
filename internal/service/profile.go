package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
)

// Profile limits.
const (
	MaxDisplayNameLength = 50
	MaxBioLength         = 160

	searchScanLimit = 50
	suggestionLimit = 10
)

// ProfileService reads and maintains user profiles. Profiles live in the
// "users" collection under their uid.
type ProfileService struct {
	docs   repository.DocumentStore
	logger *slog.Logger
}

// NewProfileService creates a ProfileService.
func NewProfileService(docs repository.DocumentStore, logger *slog.Logger) *ProfileService {
	return &ProfileService{docs: docs, logger: logger}
}

// GetProfile returns the profile for uid, or nil when there is none.
// A missing profile is not an error.
func (s *ProfileService) GetProfile(ctx context.Context, uid string) (*model.Profile, error) {
	snap, err := s.docs.Get(ctx, UsersCollection, uid)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/profile: getting %s: %w", uid, err)
	}
	p, err := decodeProfile(*snap)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateCurrentProfile returns the signed-in user's profile, creating a
// minimal one on first use. Two concurrent first calls both write the same
// minimal document; the later write wins.
func (s *ProfileService) GetOrCreateCurrentProfile(ctx context.Context) (*model.Profile, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.GetProfile(ctx, me.UID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	p := &model.Profile{
		UID:       me.UID,
		Email:     me.Email,
		CreatedAt: model.Now(),
		Following: []string{},
		Followers: []string{},
	}
	if err := s.docs.Set(ctx, UsersCollection, me.UID, p); err != nil {
		return nil, fmt.Errorf("service/profile: creating %s: %w", me.UID, err)
	}

	s.logger.Info("profile created", slog.String("uid", me.UID))
	return p, nil
}

// UpdateCurrentProfile merges the non-nil fields of upd into the signed-in
// user's profile. The email is refreshed from the session on every update.
func (s *ProfileService) UpdateCurrentProfile(ctx context.Context, upd model.ProfileUpdate) (*model.Profile, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}

	muts := []repository.Mutation{repository.SetField("email", me.Email)}
	if upd.DisplayName != nil {
		v, err := optionalText("displayName", *upd.DisplayName, MaxDisplayNameLength)
		if err != nil {
			return nil, err
		}
		muts = append(muts, repository.SetField("displayName", v))
	}
	if upd.Bio != nil {
		v, err := optionalText("bio", *upd.Bio, MaxBioLength)
		if err != nil {
			return nil, err
		}
		muts = append(muts, repository.SetField("bio", v))
	}
	if upd.PhotoURL != nil {
		muts = append(muts, repository.SetField("photoURL", strings.TrimSpace(*upd.PhotoURL)))
	}

	// The document may not exist yet if the user never went through sign-in
	// on this backend (e.g. a token minted before a database reset).
	if _, err := s.GetOrCreateCurrentProfile(ctx); err != nil {
		return nil, err
	}
	if err := s.docs.Update(ctx, UsersCollection, me.UID, muts...); err != nil {
		return nil, fmt.Errorf("service/profile: updating %s: %w", me.UID, err)
	}
	return s.GetProfile(ctx, me.UID)
}

// Search returns profiles whose email or display name contains query,
// ignoring case. Only the first 50 profiles are scanned. The caller is left
// out of the results.
func (s *ProfileService) Search(ctx context.Context, query string) ([]model.Profile, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []model.Profile{}, nil
	}

	profiles, err := s.scan(ctx, searchScanLimit)
	if err != nil {
		return nil, err
	}
	self, _ := currentUser(ctx)

	matches := []model.Profile{}
	for _, p := range profiles {
		if p.UID == self.UID {
			continue
		}
		if strings.Contains(strings.ToLower(p.Email), needle) ||
			strings.Contains(strings.ToLower(p.DisplayName), needle) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// Suggestions returns up to 10 profiles the signed-in user does not follow yet.
func (s *ProfileService) Suggestions(ctx context.Context) ([]model.Profile, error) {
	me, err := s.GetOrCreateCurrentProfile(ctx)
	if err != nil {
		return nil, err
	}

	profiles, err := s.scan(ctx, 0)
	if err != nil {
		return nil, err
	}

	out := []model.Profile{}
	for _, p := range profiles {
		if p.UID == me.UID || me.IsFollowing(p.UID) {
			continue
		}
		out = append(out, p)
		if len(out) == suggestionLimit {
			break
		}
	}
	return out, nil
}

// FindByEmail returns the profile registered with email (exact match after
// lower-casing), or nil.
func (s *ProfileService) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return findProfileByEmail(ctx, s.docs, email)
}

func (s *ProfileService) scan(ctx context.Context, limit int) ([]model.Profile, error) {
	snaps, err := s.docs.Query(ctx, repository.Query{Collection: UsersCollection, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("service/profile: listing profiles: %w", err)
	}
	return decodeAll(snaps, decodeProfile, s.logger), nil
}

func findProfileByEmail(ctx context.Context, docs repository.DocumentStore, email string) (*model.Profile, error) {
	snaps, err := docs.Query(ctx, repository.Query{
		Collection: UsersCollection,
		Filters:    []repository.Filter{repository.Where("email", repository.OpEqual, strings.ToLower(strings.TrimSpace(email)))},
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("service: looking up %s: %w", email, err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	p, err := decodeProfile(snaps[0])
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeProfile(snap repository.Snapshot) (model.Profile, error) {
	return snapshotTo(snap, func(p *model.Profile, id string) {
		if p.UID == "" {
			p.UID = id
		}
	})
}

// optionalText trims s and enforces max; unlike requireText, empty is allowed
// and clears the field.
func optionalText(field, s string, max int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	return requireText(field, s, max)
}
