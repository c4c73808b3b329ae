package handler

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/socialhub/internal/apperror"
	"github.com/sakif/socialhub/internal/auth"
	"github.com/sakif/socialhub/internal/blob"
	"github.com/sakif/socialhub/internal/service"
)

// MaxImageBytes caps an uploaded post image.
const MaxImageBytes = 10 << 20

// PostHandler serves the post feed.
type PostHandler struct {
	posts  *service.PostService
	logger *slog.Logger
}

// NewPostHandler creates a PostHandler.
func NewPostHandler(posts *service.PostService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

// HandleList returns the feed once, newest first. ?author= narrows it to
// one user. Live updates are on /ws/posts.
//
// HTTP: GET /api/posts
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListPosts(r.Context(), r.URL.Query().Get("author"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleCreate publishes a post.
//
// HTTP: POST /api/posts
// REQUEST BODY: {"content": "hello"}
// or multipart/form-data with a "content" field and an optional "image" file.
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, err)
			return
		}
		h.create(w, r, body.Content, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+maxJSONBody)
	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, apperror.ValidationFailed("image", "image is too large"))
			return
		}
		writeError(w, apperror.ValidationFailed("body", "invalid multipart body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		h.create(w, r, r.FormValue("content"), nil)
		return
	case err != nil:
		writeError(w, apperror.ValidationFailed("image", "unreadable image"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, apperror.ValidationFailed("image", "only image uploads are accepted"))
		return
	}

	h.create(w, r, r.FormValue("content"), &blob.File{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
}

func (h *PostHandler) create(w http.ResponseWriter, r *http.Request, content string, image *blob.File) {
	post, err := h.posts.CreatePost(r.Context(), content, image)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// HandleDelete removes a post. Only its author may do so.
//
// HTTP: DELETE /api/posts/{id}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	me, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return
	}
	id := chi.URLParam(r, "id")

	post, err := h.posts.GetPost(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if post.AuthorID != me.UID {
		h.logger.Warn("delete of someone else's post refused",
			slog.String("post", id),
			slog.String("uid", me.UID),
		)
		writeError(w, apperror.Forbidden("only the author can delete this post"))
		return
	}

	if err := h.posts.DeletePost(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// likeSnapshot is the like state the client is looking at.
type likeSnapshot struct {
	Likes   *int     `json:"likes"`
	LikedBy []string `json:"likedBy"`
}

// HandleToggleLike likes or unlikes a post.
//
// HTTP: POST /api/posts/{id}/like
// REQUEST BODY (optional): {"likes": 3, "likedBy": ["u1","u2","u3"]}
//
// A client with a live feed sends the like state it rendered; the toggle is
// computed from that. Without a body the current stored state is used.
// A snapshot that could not have come from the feed is rejected with 400.
func (h *PostHandler) HandleToggleLike(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return
	}

	id := chi.URLParam(r, "id")
	post, err := h.posts.GetPost(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.ContentLength != 0 {
		var snap likeSnapshot
		if err := decodeJSON(w, r, &snap); err != nil {
			writeError(w, err)
			return
		}
		likedBy, err := checkLikeSnapshot(snap, post.LikedBy, caller.UID)
		if err != nil {
			writeError(w, err)
			return
		}
		post.LikedBy = likedBy
		post.Likes = len(likedBy)
	}

	if err := h.posts.ToggleLike(r.Context(), *post); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.posts.GetPost(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleAddComment appends a comment.
//
// HTTP: POST /api/posts/{id}/comments
// REQUEST BODY: {"content": "nice"}
func (h *PostHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.posts.AddComment(r.Context(), chi.URLParam(r, "id"), body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// checkLikeSnapshot accepts a client snapshot only if it is internally
// consistent and agrees with the stored likers on everyone but the caller.
// The caller's own entry may lag; that is what decides like or unlike.
// It returns the likers to toggle against.
func checkLikeSnapshot(snap likeSnapshot, stored []string, caller string) ([]string, error) {
	if snap.LikedBy == nil {
		if snap.Likes != nil && *snap.Likes != len(stored) {
			return nil, apperror.ValidationFailed("likes", "does not match likedBy")
		}
		return stored, nil
	}
	if snap.Likes != nil && *snap.Likes != len(snap.LikedBy) {
		return nil, apperror.ValidationFailed("likes", "does not match likedBy")
	}

	seen := make(map[string]bool, len(snap.LikedBy))
	for _, uid := range snap.LikedBy {
		if seen[uid] {
			return nil, apperror.ValidationFailed("likedBy", "contains duplicates")
		}
		seen[uid] = true
	}
	others := 0
	for _, uid := range stored {
		if uid == caller {
			continue
		}
		if !seen[uid] {
			return nil, apperror.ValidationFailed("likedBy", "is out of date, reload the post")
		}
		others++
	}
	want := others
	if seen[caller] {
		want++
	}
	if len(snap.LikedBy) != want {
		return nil, apperror.ValidationFailed("likedBy", "lists a user who has not liked this post")
	}
	return snap.LikedBy, nil
}
