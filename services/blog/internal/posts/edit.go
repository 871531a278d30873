package posts

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/docstore"
)

// UpdateInput holds the fields to change. Nil fields are left alone.
type UpdateInput struct {
	Title      *string
	Content    *string
	Excerpt    *string
	Tags       *[]string
	Category   *string
	CoverImage *string
	Status     *Status
}

// Update changes the given fields of a post. Only the author or an admin may
// edit. The slug is kept so existing links stay valid.
func (r *Registry) Update(ctx context.Context, id string, in UpdateInput, actor Actor) (Post, error) {
	p, err := r.Get(ctx, id, false)
	if err != nil {
		return Post{}, err
	}
	if !actor.mayEdit(p.Author) {
		return Post{}, &ForbiddenError{Msg: "Not authorized to update this post"}
	}

	fields := map[string]any{}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if n := utf8.RuneCountInString(title); n == 0 || n > maxTitle {
			return Post{}, &ValidationError{Msg: "Title must be between 1 and 200 characters"}
		}
		fields["title"] = title
	}
	content := p.Content
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return Post{}, &ValidationError{Msg: "Content cannot be empty"}
		}
		content = *in.Content
		fields["content"] = content
		fields["readingTime"] = ReadingTime(content)
	}
	if in.Excerpt != nil {
		excerpt := strings.TrimSpace(*in.Excerpt)
		if utf8.RuneCountInString(excerpt) > maxExcerpt {
			return Post{}, &ValidationError{Msg: "Excerpt cannot exceed 300 characters"}
		}
		if excerpt == "" {
			excerpt = Excerpt(content)
		}
		fields["excerpt"] = excerpt
	}
	if in.Tags != nil {
		fields["tags"] = NormalizeTags(*in.Tags)
	}
	if in.Category != nil {
		category := strings.TrimSpace(*in.Category)
		if utf8.RuneCountInString(category) > maxCategory {
			return Post{}, &ValidationError{Msg: "Category cannot exceed 50 characters"}
		}
		if category == "" {
			category = DefaultCategory
		}
		fields["category"] = category
	}
	if in.CoverImage != nil {
		fields["coverImage"] = strings.TrimSpace(*in.CoverImage)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return Post{}, &ValidationError{Msg: fmt.Sprintf("invalid status %q", *in.Status)}
		}
		fields["status"] = string(*in.Status)
	}
	fields["updatedAt"] = time.Now().UTC()

	err = r.store.Set(ctx, Collection, id, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("posts: update %s: %w", id, err)
	}
	return r.Get(ctx, id, false)
}

// Delete removes a post and its comments. Comments go first, so a failure
// leaves a post whose counter still matches and the delete can be retried.
// A second sweep after the post is gone catches comments created meanwhile.
func (r *Registry) Delete(ctx context.Context, id string, actor Actor) error {
	p, err := r.Get(ctx, id, false)
	if err != nil {
		return err
	}
	if !actor.mayEdit(p.Author) {
		return &ForbiddenError{Msg: "Not authorized to delete this post"}
	}

	log := r.log.With(zap.String("post_id", id))
	if r.purger != nil {
		n, err := r.purger.PurgePost(ctx, id)
		if err != nil {
			return fmt.Errorf("posts: delete comments of %s: %w", id, err)
		}
		log.Info("post comments removed", zap.Int("removed", n))
	}

	_, err = r.store.Delete(ctx, Collection, id)
	if err != nil && !errors.Is(err, docstore.ErrUnconfirmed) {
		return fmt.Errorf("posts: delete %s: %w", id, err)
	}

	if r.purger != nil {
		if n, err := r.purger.PurgePost(context.WithoutCancel(ctx), id); err != nil {
			log.Warn("late comment sweep failed", zap.Error(err))
		} else if n > 0 {
			log.Info("late comments removed", zap.Int("removed", n))
		}
	}
	return nil
}

// ListByAuthor returns an author's published posts, newest first.
func (r *Registry) ListByAuthor(ctx context.Context, authorID string, page, limit int) ([]Post, Pagination, error) {
	if strings.TrimSpace(authorID) == "" {
		return nil, Pagination{}, &ValidationError{Msg: "User is required"}
	}
	return r.List(ctx, ListFilter{Author: authorID, Sort: SortNewest}, page, limit)
}

// ToggleLike adds the user's like, or removes it if present.
func (r *Registry) ToggleLike(ctx context.Context, id, userID string) (LikeResult, error) {
	if userID == "" {
		return LikeResult{}, &ValidationError{Msg: "User is required"}
	}
	p, err := r.Get(ctx, id, false)
	if err != nil {
		return LikeResult{}, err
	}

	var mine []Like
	for _, l := range p.Likes {
		if l.User == userID {
			mine = append(mine, l)
		}
	}
	liked := len(mine) == 0
	if liked {
		err = r.store.Push(ctx, Collection, id, "likes", Like{User: userID, CreatedAt: time.Now().UTC()})
	} else {
		for _, l := range mine {
			if err = r.store.Pull(ctx, Collection, id, "likes", l); err != nil {
				break
			}
		}
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return LikeResult{}, ErrNotFound
	}
	if err != nil {
		return LikeResult{}, fmt.Errorf("posts: like %s: %w", id, err)
	}

	p, err = r.Get(ctx, id, false)
	if err != nil {
		return LikeResult{}, err
	}
	return LikeResult{Likes: p.Likes, LikeCount: p.LikeCount, Liked: liked}, nil
}

// facets is the part of a post that Categories and Tags read.
type facets struct {
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

func (r *Registry) published(ctx context.Context) ([]facets, error) {
	var out []facets
	if err := r.store.Find(ctx, Collection, docstore.Where("status", string(StatusPublished)), &out); err != nil {
		return nil, fmt.Errorf("posts: facets: %w", err)
	}
	return out, nil
}

// Categories lists the distinct categories of published posts, sorted.
func (r *Registry) Categories(ctx context.Context) ([]string, error) {
	all, err := r.published(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, f := range all {
		if f.Category != "" {
			out = append(out, f.Category)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Tags lists the distinct tags of published posts, sorted.
func (r *Registry) Tags(ctx context.Context) ([]string, error) {
	all, err := r.published(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, f := range all {
		out = append(out, f.Tags...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
