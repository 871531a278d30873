package comments

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/docstore"
	"github.com/example/blog-platform/services/blog/internal/posts"
)

// ListThread returns a page of the post's top-level comments, oldest first,
// each with its direct replies expanded. Deeper replies stay as ids.
func (m *Manager) ListThread(ctx context.Context, postID string, page Page) (ThreadPage, error) {
	const op = "list_thread"
	page = page.normalize()

	key, cacheable := m.threadKey(ctx, postID, page)
	if cacheable {
		var cached ThreadPage
		hit, err := m.cache.Get(ctx, key, &cached)
		if err != nil {
			m.log.Warn("thread cache read failed", zap.String("post_id", postID), zap.Error(err))
		}
		if hit {
			return cached, nil
		}
	}

	q := docstore.Where("post", postID, "parentComment", nil)
	total, err := m.store.Count(ctx, Collection, q)
	if err != nil {
		return ThreadPage{}, internal(op, postID, err)
	}
	q.Limit = page.Size
	q.Offset = page.offset()
	var top []Comment
	if err := m.store.Find(ctx, Collection, q, &top); err != nil {
		return ThreadPage{}, internal(op, postID, err)
	}

	replies := make(map[string][]Comment, len(top))
	authors := make([]string, 0, len(top))
	for _, c := range top {
		authors = append(authors, c.Author)
		for _, rid := range c.Replies {
			r, err := m.get(ctx, rid)
			if errors.Is(err, docstore.ErrNotFound) {
				// dangling link; reconciliation repairs it
				continue
			}
			if err != nil {
				return ThreadPage{}, internal(op, rid, err)
			}
			replies[c.ID] = append(replies[c.ID], r)
			authors = append(authors, r.Author)
		}
	}
	profiles := m.profiles(ctx, authors)

	out := ThreadPage{
		Comments:   make([]ThreadNode, 0, len(top)),
		Pagination: newPagination(page, total),
	}
	for _, c := range top {
		n := ThreadNode{View: newView(c, profiles[c.Author]), Replies: []View{}}
		for _, r := range replies[c.ID] {
			n.Replies = append(n.Replies, newView(r, profiles[r.Author]))
		}
		out.Comments = append(out.Comments, n)
	}

	if cacheable {
		if err := m.cache.Set(ctx, key, out); err != nil {
			m.log.Warn("thread cache write failed", zap.String("post_id", postID), zap.Error(err))
		}
	}
	return out, nil
}

func (m *Manager) threadKey(ctx context.Context, postID string, page Page) (string, bool) {
	if m.cache == nil {
		return "", false
	}
	v, err := m.cache.Version(ctx, postID)
	if err != nil {
		m.log.Warn("thread cache version failed", zap.String("post_id", postID), zap.Error(err))
		return "", false
	}
	return fmt.Sprintf("thread:%s:v%d:%d:%d", postID, v, page.Number, page.Size), true
}

// ListByUser returns a user's comments across posts, newest first, each with
// a summary of the post it belongs to.
func (m *Manager) ListByUser(ctx context.Context, userID string, page Page) (UserPage, error) {
	const op = "list_by_user"
	page = page.normalize()

	q := docstore.Where("author", userID)
	total, err := m.store.Count(ctx, Collection, q)
	if err != nil {
		return UserPage{}, internal(op, userID, err)
	}
	q.Sort = docstore.Sort{Desc: true}
	q.Limit = page.Size
	q.Offset = page.offset()
	var list []Comment
	if err := m.store.Find(ctx, Collection, q, &list); err != nil {
		return UserPage{}, internal(op, userID, err)
	}

	summaries := make(map[string]*posts.Summary)
	for _, c := range list {
		if _, ok := summaries[c.Post]; ok {
			continue
		}
		s, err := m.posts.Summary(ctx, c.Post)
		switch {
		case errors.Is(err, posts.ErrNotFound):
			summaries[c.Post] = nil
		case err != nil:
			return UserPage{}, internal(op, c.Post, err)
		default:
			summaries[c.Post] = &s
		}
	}
	profiles := m.profiles(ctx, []string{userID})

	out := UserPage{
		Comments:   make([]View, 0, len(list)),
		Pagination: newPagination(page, total),
	}
	for _, c := range list {
		v := newView(c, profiles[c.Author])
		v.PostInfo = summaries[c.Post]
		out.Comments = append(out.Comments, v)
	}
	return out, nil
}
