// Package posts owns post documents and their denormalized counters.
package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/docstore"
)

var (
	ErrNotFound   = errors.New("post not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// ValidationError carries the user-facing reason for ErrValidation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// ForbiddenError carries the user-facing reason for ErrForbidden.
type ForbiddenError struct {
	Msg string
}

func (e *ForbiddenError) Error() string { return e.Msg }
func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// Actor is the identity performing a mutation.
type Actor struct {
	ID    string
	Admin bool
}

func (a Actor) mayEdit(authorID string) bool {
	return a.Admin || (a.ID != "" && a.ID == authorID)
}

type CreateInput struct {
	Title      string
	Content    string
	Excerpt    string
	Tags       []string
	Category   string
	CoverImage string
	Status     Status
	Author     string
}

// Sort orders post listings.
type Sort string

const (
	SortNewest  Sort = "newest"
	SortOldest  Sort = "oldest"
	SortPopular Sort = "popular"
)

type ListFilter struct {
	Category string
	Tag      string
	Author   string
	Search   string
	Sort     Sort
}

type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalPosts  int  `json:"totalPosts"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

// CommentPurger removes every comment of a post before the post goes.
type CommentPurger interface {
	PurgePost(ctx context.Context, postID string) (int, error)
}

type Registry struct {
	store  docstore.Store
	log    *zap.Logger
	purger CommentPurger
}

func NewRegistry(store docstore.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, log: log}
}

// SetPurger wires the comment side of post deletion. The comment manager is
// built on top of the registry, so it is attached after construction.
func (r *Registry) SetPurger(p CommentPurger) {
	r.purger = p
}

func (r *Registry) Create(ctx context.Context, in CreateInput) (Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Post{}, &ValidationError{Msg: "Title is required"}
	}
	if utf8.RuneCountInString(title) > maxTitle {
		return Post{}, &ValidationError{Msg: "Title cannot exceed 200 characters"}
	}
	if strings.TrimSpace(in.Content) == "" {
		return Post{}, &ValidationError{Msg: "Content is required"}
	}
	if utf8.RuneCountInString(in.Excerpt) > maxExcerpt {
		return Post{}, &ValidationError{Msg: "Excerpt cannot exceed 300 characters"}
	}
	if in.Author == "" {
		return Post{}, &ValidationError{Msg: "Author is required"}
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Category)) > maxCategory {
		return Post{}, &ValidationError{Msg: "Category cannot exceed 50 characters"}
	}
	status := in.Status
	if status == "" {
		status = StatusDraft
	}
	if !status.Valid() {
		return Post{}, &ValidationError{Msg: fmt.Sprintf("invalid status %q", in.Status)}
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = DefaultCategory
	}
	excerpt := strings.TrimSpace(in.Excerpt)
	if excerpt == "" {
		excerpt = Excerpt(in.Content)
	}

	p := Post{
		ID:          uuid.NewString(),
		Title:       title,
		Content:     in.Content,
		Excerpt:     excerpt,
		Author:      in.Author,
		Tags:        NormalizeTags(in.Tags),
		Category:    category,
		CoverImage:  in.CoverImage,
		Status:      status,
		Likes:       []Like{},
		ReadingTime: ReadingTime(in.Content),
		CreatedAt:   time.Now().UTC(),
	}
	slug, err := r.uniqueSlug(ctx, Slugify(title), p.ID)
	if err != nil {
		return Post{}, err
	}
	p.Slug = slug

	if err := r.store.Insert(ctx, Collection, p.ID, p); err != nil {
		return Post{}, fmt.Errorf("posts: insert %s: %w", p.ID, err)
	}
	return r.Get(ctx, p.ID, false)
}

func (r *Registry) uniqueSlug(ctx context.Context, slug, id string) (string, error) {
	if slug == "" {
		return id, nil
	}
	n, err := r.store.Count(ctx, Collection, docstore.Where("slug", slug))
	if err != nil {
		return "", fmt.Errorf("posts: slug lookup: %w", err)
	}
	if n > 0 {
		slug = slug + "-" + id[:8]
	}
	return slug, nil
}

// Get loads a post. countView records a page view first.
func (r *Registry) Get(ctx context.Context, id string, countView bool) (Post, error) {
	var p Post
	err := r.store.Get(ctx, Collection, id, &p)
	if errors.Is(err, docstore.ErrNotFound) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("posts: get %s: %w", id, err)
	}
	if countView {
		if err := r.store.Increment(ctx, Collection, id, "views", 1); err != nil {
			// the read still succeeds
			r.log.Warn("view count increment failed", zap.String("post_id", id), zap.Error(err))
		} else {
			p.Views++
		}
	}
	p.fill()
	return p, nil
}

// List returns published posts matching f.
func (r *Registry) List(ctx context.Context, f ListFilter, page, limit int) ([]Post, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	q := docstore.Where("status", string(StatusPublished))
	if f.Category != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "category", Op: docstore.Eq, Value: f.Category})
	}
	if f.Tag != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "tags", Op: docstore.Has, Value: strings.ToLower(f.Tag)})
	}
	if f.Author != "" {
		q.Filters = append(q.Filters, docstore.Filter{Field: "author", Op: docstore.Eq, Value: f.Author})
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		for _, field := range []string{"title", "content", "tags", "category"} {
			q.Any = append(q.Any, docstore.Filter{Field: field, Op: docstore.Like, Value: s})
		}
	}
	switch f.Sort {
	case SortOldest:
	case SortPopular:
		q.Sort = docstore.Sort{Field: "views", Desc: true}
	default:
		q.Sort = docstore.Sort{Desc: true}
	}

	total, err := r.store.Count(ctx, Collection, q)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("posts: count: %w", err)
	}
	q.Limit = limit
	q.Offset = (page - 1) * limit
	out := []Post{}
	if err := r.store.Find(ctx, Collection, q, &out); err != nil {
		return nil, Pagination{}, fmt.Errorf("posts: list: %w", err)
	}
	for i := range out {
		out[i].fill()
	}
	return out, Pagination{
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalPosts:  total,
		HasNext:     page*limit < total,
		HasPrev:     page > 1,
	}, nil
}

func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	var p struct {
		ID string `json:"id"`
	}
	err := r.store.Get(ctx, Collection, id, &p)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("posts: exists %s: %w", id, err)
	}
	return true, nil
}

// AdjustCommentsCount adds delta to the post's commentsCount.
func (r *Registry) AdjustCommentsCount(ctx context.Context, id string, delta int) error {
	err := r.store.Increment(ctx, Collection, id, "commentsCount", int64(delta))
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// SetCommentsCount overwrites the counter. Only reconciliation uses it.
func (r *Registry) SetCommentsCount(ctx context.Context, id string, n int) error {
	err := r.store.Set(ctx, Collection, id, map[string]any{"commentsCount": n})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *Registry) Summary(ctx context.Context, id string) (Summary, error) {
	p, err := r.Get(ctx, id, false)
	if err != nil {
		return Summary{}, err
	}
	return p.Summary(), nil
}
