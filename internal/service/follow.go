package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
)

// FollowService maintains the follow graph stored on the profiles.
//
// Each profile keeps both sides of its edges plus their counts:
//
//	following, followingCount   who this user follows
//	followers, followersCount   who follows this user
//
// A follow is two single-document updates, self first, then target. Each
// update changes a set and its count together, so within one document the
// count always matches the set. Across the two documents it can drift if the
// second update fails.
type FollowService struct {
	docs   repository.DocumentStore
	logger *slog.Logger
}

// NewFollowService creates a FollowService.
func NewFollowService(docs repository.DocumentStore, logger *slog.Logger) *FollowService {
	return &FollowService{docs: docs, logger: logger}
}

// Follow makes selfUID follow targetUID. Following someone already followed
// changes nothing.
func (s *FollowService) Follow(ctx context.Context, selfUID, targetUID string) error {
	return s.setEdge(ctx, selfUID, targetUID, true)
}

// Unfollow removes the edge. Unfollowing someone not followed changes nothing.
func (s *FollowService) Unfollow(ctx context.Context, selfUID, targetUID string) error {
	return s.setEdge(ctx, selfUID, targetUID, false)
}

func (s *FollowService) setEdge(ctx context.Context, selfUID, targetUID string, follow bool) error {
	if selfUID == targetUID {
		return apperror.SelfFollow()
	}

	self, err := s.profile(ctx, selfUID)
	if err != nil {
		return err
	}
	if _, err := s.profile(ctx, targetUID); err != nil {
		return err
	}

	// Counts move only when the set changes.
	if self.IsFollowing(targetUID) == follow {
		return nil
	}

	var delta int64 = 1
	setOp := repository.ArrayUnion
	verb := "follow"
	if !follow {
		delta = -1
		setOp = repository.ArrayRemove
		verb = "unfollow"
	}

	if err := s.docs.Update(ctx, UsersCollection, selfUID,
		setOp("following", targetUID),
		repository.Increment("followingCount", delta),
	); err != nil {
		return fmt.Errorf("service/follow: %s: updating %s: %w", verb, selfUID, err)
	}

	if err := s.docs.Update(ctx, UsersCollection, targetUID,
		setOp("followers", selfUID),
		repository.Increment("followersCount", delta),
	); err != nil {
		s.logger.Error("follow graph left half-updated",
			slog.String("op", verb),
			slog.String("self", selfUID),
			slog.String("target", targetUID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("service/follow: %s: updating %s: %w", verb, targetUID, err)
	}

	s.logger.Info(verb, slog.String("self", selfUID), slog.String("target", targetUID))
	return nil
}

// IsFollowing reports whether selfUID follows targetUID. A missing profile
// follows nobody.
func (s *FollowService) IsFollowing(ctx context.Context, selfUID, targetUID string) (bool, error) {
	p, err := s.maybeProfile(ctx, selfUID)
	if err != nil || p == nil {
		return false, err
	}
	return p.IsFollowing(targetUID), nil
}

// FollowersCount returns the cached follower count of uid, 0 if it has no profile.
func (s *FollowService) FollowersCount(ctx context.Context, uid string) (int, error) {
	p, err := s.maybeProfile(ctx, uid)
	if err != nil || p == nil {
		return 0, err
	}
	return p.FollowersCount, nil
}

// FollowingCount returns the cached following count of uid, 0 if it has no profile.
func (s *FollowService) FollowingCount(ctx context.Context, uid string) (int, error) {
	p, err := s.maybeProfile(ctx, uid)
	if err != nil || p == nil {
		return 0, err
	}
	return p.FollowingCount, nil
}

func (s *FollowService) profile(ctx context.Context, uid string) (*model.Profile, error) {
	snap, err := s.docs.Get(ctx, UsersCollection, uid)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("profile", uid)
		}
		return nil, fmt.Errorf("service/follow: reading %s: %w", uid, err)
	}
	p, err := decodeProfile(*snap)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *FollowService) maybeProfile(ctx context.Context, uid string) (*model.Profile, error) {
	p, err := s.profile(ctx, uid)
	if isNotFound(err) {
		return nil, nil
	}
	return p, err
}
