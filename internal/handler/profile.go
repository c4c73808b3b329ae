package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/auth"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/service"
)

// ProfileHandler serves profiles, search and the follow graph.
type ProfileHandler struct {
	profiles *service.ProfileService
	follows  *service.FollowService
	posts    *service.PostService
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(
	profiles *service.ProfileService,
	follows *service.FollowService,
	posts *service.PostService,
	logger *slog.Logger,
) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, follows: follows, posts: posts, logger: logger}
}

// UserResponse is a profile as seen by the signed-in user.
type UserResponse struct {
	*model.Profile
	IsFollowing bool `json:"isFollowing"`
}

// FollowStatus describes the edge between the caller and another user.
type FollowStatus struct {
	Following      bool `json:"following"`
	FollowersCount int  `json:"followersCount"`
	FollowingCount int  `json:"followingCount"`
}

// HandleMe returns the caller's profile, creating it if needed.
//
// HTTP: GET /api/me
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetOrCreateCurrentProfile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdateMe merges the given fields into the caller's profile.
//
// HTTP: PATCH /api/me
// REQUEST BODY: {"displayName": "Alice", "bio": "..."}  (all optional)
func (h *ProfileHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var upd model.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.profiles.UpdateCurrentProfile(r.Context(), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleSearch finds users by email or display name.
//
// HTTP: GET /api/users?q=bob
func (h *ProfileHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	found, err := h.profiles.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// HandleSuggestions lists users the caller might want to follow.
//
// HTTP: GET /api/users/suggestions
func (h *ProfileHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	found, err := h.profiles.Suggestions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// HandleGetUser returns one profile.
//
// HTTP: GET /api/users/{uid}
func (h *ProfileHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	p, err := h.profiles.GetProfile(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeError(w, apperror.NotFound("profile", uid))
		return
	}

	resp := UserResponse{Profile: p}
	if me, ok := auth.IdentityFromContext(r.Context()); ok {
		resp.IsFollowing, err = h.follows.IsFollowing(r.Context(), me.UID, uid)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleUserPosts lists one user's posts, newest first.
//
// HTTP: GET /api/users/{uid}/posts
func (h *ProfileHandler) HandleUserPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListPosts(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleFollowStatus reports whether the caller follows {uid} and the
// counts shown next to the follow button.
//
// HTTP: GET /api/users/{uid}/follow
func (h *ProfileHandler) HandleFollowStatus(w http.ResponseWriter, r *http.Request) {
	h.writeFollowStatus(w, r, chi.URLParam(r, "uid"))
}

// HandleFollow makes the caller follow {uid}.
//
// HTTP: POST /api/users/{uid}/follow
func (h *ProfileHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, h.follows.Follow)
}

// HandleUnfollow makes the caller stop following {uid}.
//
// HTTP: DELETE /api/users/{uid}/follow
func (h *ProfileHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	h.changeFollow(w, r, h.follows.Unfollow)
}

func (h *ProfileHandler) changeFollow(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, selfUID, targetUID string) error) {
	me, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return
	}
	target := chi.URLParam(r, "uid")
	if err := op(r.Context(), me.UID, target); err != nil {
		writeError(w, err)
		return
	}
	h.writeFollowStatus(w, r, target)
}

func (h *ProfileHandler) writeFollowStatus(w http.ResponseWriter, r *http.Request, target string) {
	var (
		st  FollowStatus
		err error
	)
	if me, ok := auth.IdentityFromContext(r.Context()); ok {
		if st.Following, err = h.follows.IsFollowing(r.Context(), me.UID, target); err != nil {
			writeError(w, err)
			return
		}
	}
	if st.FollowersCount, err = h.follows.FollowersCount(r.Context(), target); err != nil {
		writeError(w, err)
		return
	}
	if st.FollowingCount, err = h.follows.FollowingCount(r.Context(), target); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
