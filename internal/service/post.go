package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/socialhub/internal/blob"
	"github.com/sakif/socialhub/internal/model"
	"github.com/sakif/socialhub/internal/repository"
)

// Content limits.
const (
	MaxPostLength    = 2000
	MaxCommentLength = 500
)

// PostService is the post feed store.
type PostService struct {
	docs     repository.DocumentStore
	uploader *blob.Uploader
	logger   *slog.Logger
}

// NewPostService creates a PostService. Images are stored through uploader.
func NewPostService(docs repository.DocumentStore, uploader *blob.Uploader, logger *slog.Logger) *PostService {
	return &PostService{docs: docs, uploader: uploader, logger: logger}
}

func feedQuery(authorID string) repository.Query {
	q := repository.Query{
		Collection: PostsCollection,
		OrderBy:    "createdAt",
		Descending: true,
	}
	if authorID != "" {
		q.Filters = []repository.Filter{repository.Where("authorId", repository.OpEqual, authorID)}
	}
	return q
}

// StreamPosts emits the whole feed, newest first, now and after every change
// to it. An empty authorID means every author. The stream ends with ctx.
func (s *PostService) StreamPosts(ctx context.Context, authorID string) (<-chan []model.Post, error) {
	in, err := s.docs.Watch(ctx, feedQuery(authorID))
	if err != nil {
		return nil, fmt.Errorf("service/post: watching feed: %w", err)
	}
	return mapStream(ctx, in, decodePost, nil, s.logger), nil
}

// ListPosts returns the feed once, newest first.
func (s *PostService) ListPosts(ctx context.Context, authorID string) ([]model.Post, error) {
	snaps, err := s.docs.Query(ctx, feedQuery(authorID))
	if err != nil {
		return nil, fmt.Errorf("service/post: listing posts: %w", err)
	}
	return decodeAll(snaps, decodePost, s.logger), nil
}

// GetPost returns one post or apperror.ErrNotFound.
func (s *PostService) GetPost(ctx context.Context, id string) (*model.Post, error) {
	snap, err := s.docs.Get(ctx, PostsCollection, id)
	if err != nil {
		return nil, fmt.Errorf("service/post: getting %s: %w", id, err)
	}
	p, err := decodePost(*snap)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePost publishes a post by the signed-in user. When image is non-nil it
// is uploaded first; if the upload fails no post is created.
func (s *PostService) CreatePost(ctx context.Context, content string, image *blob.File) (*model.Post, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	content, err = requireText("content", content, MaxPostLength)
	if err != nil {
		return nil, err
	}

	post := model.Post{
		Content:     content,
		AuthorID:    me.UID,
		AuthorEmail: me.Email,
		CreatedAt:   model.Now(),
		Likes:       0,
		LikedBy:     []string{},
		Comments:    []model.Comment{},
	}

	if image != nil {
		obj, err := s.uploader.Upload(ctx, *image, "posts/"+me.UID)
		if err != nil {
			return nil, fmt.Errorf("service/post: uploading image: %w", err)
		}
		post.ImageURL = obj.URL
		post.ImagePath = obj.Path
	}

	id, err := s.docs.Add(ctx, PostsCollection, post)
	if err != nil {
		return nil, fmt.Errorf("service/post: creating post: %w", err)
	}
	post.ID = id

	s.logger.Info("post created",
		slog.String("id", id),
		slog.String("author", me.UID),
		slog.Bool("image", image != nil),
	)
	return &post, nil
}

// DeletePost removes the post and then its image, if any. A failure to delete
// the image is logged and otherwise ignored. Whether the caller may delete the
// post is for the caller to decide.
func (s *PostService) DeletePost(ctx context.Context, id string) error {
	post, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, PostsCollection, id); err != nil {
		return fmt.Errorf("service/post: deleting %s: %w", id, err)
	}

	if post.ImagePath != "" {
		if err := s.uploader.Delete(ctx, post.ImagePath); err != nil {
			s.logger.Warn("post image left behind",
				slog.String("post", id),
				slog.String("path", post.ImagePath),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("post deleted", slog.String("id", id))
	return nil
}

// ToggleLike likes or unlikes post for the signed-in user.
//
// The decision and the new values come from the post as the caller last saw
// it, not from a fresh read. Two viewers toggling at the same time on stale
// copies can therefore overwrite each other's change.
func (s *PostService) ToggleLike(ctx context.Context, post model.Post) error {
	me, err := currentUser(ctx)
	if err != nil {
		return err
	}

	likes := post.Likes
	likedBy := make([]string, 0, len(post.LikedBy)+1)
	if post.LikedByUser(me.UID) {
		likes--
		for _, uid := range post.LikedBy {
			if uid != me.UID {
				likedBy = append(likedBy, uid)
			}
		}
	} else {
		likes++
		likedBy = append(append(likedBy, post.LikedBy...), me.UID)
	}

	if err := s.docs.Update(ctx, PostsCollection, post.ID,
		repository.SetField("likes", likes),
		repository.SetField("likedBy", likedBy),
	); err != nil {
		return fmt.Errorf("service/post: toggling like on %s: %w", post.ID, err)
	}
	return nil
}

// AddComment appends a comment by the signed-in user. The comment list is
// read, extended and written back whole, so a concurrent comment can be lost.
func (s *PostService) AddComment(ctx context.Context, postID, content string) (*model.Comment, error) {
	me, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	content, err = requireText("content", content, MaxCommentLength)
	if err != nil {
		return nil, err
	}

	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	c := model.Comment{
		Content:     content,
		AuthorID:    me.UID,
		AuthorEmail: me.Email,
		CreatedAt:   model.Now(),
	}
	comments := append(post.Comments, c)

	if err := s.docs.Update(ctx, PostsCollection, postID, repository.SetField("comments", comments)); err != nil {
		return nil, fmt.Errorf("service/post: commenting on %s: %w", postID, err)
	}
	return &c, nil
}

func decodePost(snap repository.Snapshot) (model.Post, error) {
	return snapshotTo(snap, func(p *model.Post, id string) {
		p.ID = id
		if p.LikedBy == nil {
			p.LikedBy = []string{}
		}
		if p.Comments == nil {
			p.Comments = []model.Comment{}
		}
	})
}
