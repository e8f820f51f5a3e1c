package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kedevs/blogapi/types"
)

// ExportStore is the object storage used for post snapshots.
type ExportStore interface {
	EnsureBucket(ctx context.Context) error
	PutJSON(ctx context.Context, key string, v any) error
	Bucket() string
}

// PostSnapshot is the document written by ExportPosts.
type PostSnapshot struct {
	ExportedAt time.Time    `json:"exported_at"`
	Count      int          `json:"count"`
	Posts      []types.Post `json:"posts"`
}

// ExportResult locates a written snapshot.
type ExportResult struct {
	Bucket string
	Key    string
	Count  int
}

// ExportService writes JSON snapshots of all posts to object storage.
type ExportService struct {
	posts PostRepository
	store ExportStore
	now   func() time.Time
}

func NewExportService(posts PostRepository, store ExportStore) *ExportService {
	return &ExportService{posts: posts, store: store, now: time.Now}
}

func (s *ExportService) ExportPosts(ctx context.Context) (ExportResult, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("list posts: %w", err)
	}

	if err := s.store.EnsureBucket(ctx); err != nil {
		return ExportResult{}, fmt.Errorf("ensure bucket: %w", err)
	}

	exportedAt := s.now().UTC()
	key := fmt.Sprintf("exports/posts-%s.json", exportedAt.Format("20060102T150405Z"))
	snapshot := PostSnapshot{
		ExportedAt: exportedAt,
		Count:      len(posts),
		Posts:      posts,
	}
	if err := s.store.PutJSON(ctx, key, snapshot); err != nil {
		return ExportResult{}, fmt.Errorf("upload snapshot: %w", err)
	}

	return ExportResult{Bucket: s.store.Bucket(), Key: key, Count: len(posts)}, nil
}
