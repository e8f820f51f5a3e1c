package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kedevs/blogapi/internal/auth"
	"github.com/kedevs/blogapi/internal/logger"
	"github.com/kedevs/blogapi/internal/store"
	"github.com/kedevs/blogapi/types"
)

const maxTitleLength = 200

// PostRepository defines persistence operations for posts.
type PostRepository interface {
	List(ctx context.Context) ([]types.Post, error)
	Get(ctx context.Context, id int) (types.Post, error)
	Create(ctx context.Context, post types.Post) (types.Post, error)
	Update(ctx context.Context, post types.Post) (types.Post, error)
	Delete(ctx context.Context, id int) error
}

// EventPublisher receives post events after the write has committed.
type EventPublisher interface {
	PublishPostEvent(ctx context.Context, event types.PostEvent) error
}

// PostService encapsulates post use-cases and applies the authorization
// policy to each of them.
type PostService struct {
	repo   PostRepository
	events EventPublisher
}

// NewPostService constructs a PostService. events may be nil to disable
// publishing.
func NewPostService(repo PostRepository, events EventPublisher) *PostService {
	return &PostService{repo: repo, events: events}
}

// PostInput is the allow-listed post payload. The author always comes from
// the principal.
type PostInput struct {
	Title   string
	Content string
}

// PostPatch changes only the fields that are set.
type PostPatch struct {
	Title   *string
	Content *string
}

func (s *PostService) List(ctx context.Context, p auth.Principal) ([]types.Post, error) {
	if err := auth.Authorize(auth.ActionList, p, nil); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

func (s *PostService) Get(ctx context.Context, p auth.Principal, id int) (types.Post, error) {
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Post{}, err
	}
	if err := auth.Authorize(auth.ActionRead, p, &post); err != nil {
		return types.Post{}, err
	}
	return post, nil
}

func (s *PostService) Create(ctx context.Context, p auth.Principal, in PostInput) (types.Post, error) {
	if err := auth.Authorize(auth.ActionCreate, p, nil); err != nil {
		return types.Post{}, err
	}

	title, content, err := validatePost(in.Title, in.Content)
	if err != nil {
		return types.Post{}, err
	}

	post, err := s.repo.Create(ctx, types.Post{
		Title:    title,
		Content:  content,
		AuthorID: p.ID,
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidReference) {
			return types.Post{}, auth.ErrUnauthenticated
		}
		return types.Post{}, err
	}

	s.publish(ctx, types.PostCreated, p, post)
	return post, nil
}

// Update applies patch to the post. Unset fields keep their current value.
func (s *PostService) Update(ctx context.Context, p auth.Principal, id int, patch PostPatch) (types.Post, error) {
	post, err := s.authorizeExisting(ctx, auth.ActionUpdate, p, id)
	if err != nil {
		return types.Post{}, err
	}

	title, content := post.Title, post.Content
	if patch.Title != nil {
		title = *patch.Title
	}
	if patch.Content != nil {
		content = *patch.Content
	}
	post.Title, post.Content, err = validatePost(title, content)
	if err != nil {
		return types.Post{}, err
	}

	updated, err := s.repo.Update(ctx, post)
	if err != nil {
		return types.Post{}, err
	}

	s.publish(ctx, types.PostUpdated, p, updated)
	return updated, nil
}

func (s *PostService) Delete(ctx context.Context, p auth.Principal, id int) error {
	post, err := s.authorizeExisting(ctx, auth.ActionDelete, p, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, types.PostDeleted, p, post)
	return nil
}

// authorizeExisting rejects anonymous callers, then resolves the post so the
// policy only ever sees posts that exist.
func (s *PostService) authorizeExisting(ctx context.Context, action auth.Action, p auth.Principal, id int) (types.Post, error) {
	if !p.IsAuthenticated() {
		return types.Post{}, auth.ErrUnauthenticated
	}
	post, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Post{}, err
	}
	if err := auth.Authorize(action, p, &post); err != nil {
		return types.Post{}, err
	}
	return post, nil
}

func (s *PostService) publish(ctx context.Context, eventType types.PostEventType, p auth.Principal, post types.Post) {
	if s.events == nil {
		return
	}
	event := types.PostEvent{
		Type:       eventType,
		PostID:     post.ID,
		AuthorID:   post.AuthorID,
		ActorID:    p.ID,
		Title:      post.Title,
		OccurredAt: time.Now().UTC(),
	}
	// The write has committed; a lost event must not fail the request.
	if err := s.events.PublishPostEvent(ctx, event); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "publish post event failed",
			slog.String("type", string(eventType)),
			slog.Int("post_id", post.ID),
			slog.Any("error", err),
		)
	}
}

func validatePost(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return "", "", validationError("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", "", validationError("title must be at most %d characters", maxTitleLength)
	}
	if content == "" {
		return "", "", validationError("content is required")
	}
	return title, content, nil
}
