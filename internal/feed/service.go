// Package feed implements the member feed: posts, polls, images, likes and comments.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"saunafreunde/internal/models"
)

// ImageBucket is the blob bucket for post images.
const ImageBucket = "post-images"

// ImageExtensions are the accepted image file types.
var ImageExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true}

// PostStore persists posts and comments.
type PostStore interface {
	CreatePost(ctx context.Context, po *models.Post) error
	GetPost(ctx context.Context, id int64) (*models.Post, error)
	ListPosts(ctx context.Context, limit int) ([]models.Post, error)
	ToggleLike(ctx context.Context, postID int64, userID string) (*models.Post, bool, error)
	Vote(ctx context.Context, postID int64, userID, option string) (*models.Post, error)
	AddComment(ctx context.Context, c *models.Comment) (*models.Comment, error)
	DeletePost(ctx context.Context, id int64) error
}

// Blobs stores uploaded images.
type Blobs interface {
	Put(ctx context.Context, bucket, key string, r io.Reader) (string, error)
}

// Access checks ownership and moderation rights.
type Access interface {
	CanModify(ctx context.Context, userID, ownerID, perm string) error
}

// PostInput describes a new post. Image and ImageExt are set for image posts only.
type PostInput struct {
	Type        models.PostType
	Content     string
	PollOptions []string
	EmbedURL    string
	Image       io.Reader
	ImageExt    string
}

// Service implements feed operations.
type Service struct {
	posts   PostStore
	blobs   Blobs
	access  Access
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates the feed service.
func NewService(posts PostStore, blobs Blobs, access Access, timeout time.Duration, logger *zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		posts:   posts,
		blobs:   blobs,
		access:  access,
		timeout: timeout,
		logger:  logger.With().Str("component", "feed").Logger(),
		now:     time.Now,
	}
}

// List returns the newest posts.
func (s *Service) List(ctx context.Context, limit int) ([]models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.posts.ListPosts(ctx, limit)
}

// Create validates and stores a post. Image posts are uploaded first.
func (s *Service) Create(ctx context.Context, userID string, in PostInput) (*models.Post, error) {
	if userID == "" {
		return nil, models.Invalid("user_id", "required")
	}
	post := &models.Post{
		UserID:    userID,
		Type:      in.Type,
		Content:   strings.TrimSpace(in.Content),
		CreatedAt: s.now(),
	}

	switch in.Type {
	case models.PostText:
		if post.Content == "" {
			return nil, models.Invalid("content", "required")
		}
	case models.PostPoll:
		if post.Content == "" {
			return nil, models.Invalid("content", "poll question required")
		}
		options, err := pollOptions(in.PollOptions)
		if err != nil {
			return nil, err
		}
		post.PollOptions = options
		post.Votes = make(map[string][]string, len(options))
	case models.PostEmbed:
		u, err := url.Parse(strings.TrimSpace(in.EmbedURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, models.Invalid("embed_url", "must be an http(s) URL")
		}
		post.EmbedURL = u.String()
	case models.PostImage:
		if in.Image == nil {
			return nil, models.Invalid("image", "required")
		}
		ext := strings.ToLower(strings.TrimPrefix(in.ImageExt, "."))
		if !ImageExtensions[ext] {
			return nil, models.Invalid("image", fmt.Sprintf("unsupported file type '%s'", in.ImageExt))
		}
		key := fmt.Sprintf("%s/%d.%s", userID, post.CreatedAt.UnixMilli(), ext)
		imageURL, err := s.blobs.Put(ctx, ImageBucket, key, in.Image)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		post.ImageURL = imageURL
	default:
		return nil, models.Invalid("type", fmt.Sprintf("unknown post type '%s'", in.Type))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("post_id", post.ID).Str("type", string(post.Type)).Str("user_id", userID).Msg("Post created")
	return s.posts.GetPost(ctx, post.ID)
}

func pollOptions(raw []string) ([]string, error) {
	seen := make(map[string]bool, len(raw))
	options := make([]string, 0, len(raw))
	for _, o := range raw {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		options = append(options, o)
	}
	if len(options) < 2 {
		return nil, models.Invalid("poll_options", "at least two distinct options required")
	}
	return options, nil
}

// ToggleLike likes or unlikes a post and reports whether it is now liked.
func (s *Service) ToggleLike(ctx context.Context, userID string, postID int64) (*models.Post, bool, error) {
	if userID == "" {
		return nil, false, models.Invalid("user_id", "required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.posts.ToggleLike(ctx, postID, userID)
}

// Vote records the user's poll choice. Voting again moves the vote.
func (s *Service) Vote(ctx context.Context, userID string, postID int64, option string) (*models.Post, error) {
	if userID == "" {
		return nil, models.Invalid("user_id", "required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	post, err := s.posts.Vote(ctx, postID, userID, option)
	switch {
	case errors.Is(err, models.ErrNotAPoll):
		return nil, models.Invalid("post_id", err.Error())
	case errors.Is(err, models.ErrUnknownOption):
		return nil, models.Invalid("option", err.Error())
	}
	return post, err
}

// Comment adds a comment to a post.
func (s *Service) Comment(ctx context.Context, userID string, postID int64, content string) (*models.Comment, error) {
	content = strings.TrimSpace(content)
	if userID == "" {
		return nil, models.Invalid("user_id", "required")
	}
	if content == "" {
		return nil, models.Invalid("content", "required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.posts.AddComment(ctx, &models.Comment{
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: s.now(),
	})
}

// Delete removes a post. Authors delete their own posts, moderators any post.
func (s *Service) Delete(ctx context.Context, userID string, postID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if err := s.access.CanModify(ctx, userID, post.UserID, models.PermissionManageFeed); err != nil {
		return err
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return err
	}
	s.logger.Info().Int64("post_id", postID).Str("by", userID).Msg("Post deleted")
	return nil
}
