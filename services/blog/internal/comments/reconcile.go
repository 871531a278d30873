package comments

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/docstore"
	"github.com/example/blog-platform/services/blog/internal/posts"
)

// PostCounters reads and overwrites the post comment counter.
type PostCounters interface {
	Get(ctx context.Context, id string, countView bool) (posts.Post, error)
	SetCommentsCount(ctx context.Context, id string, n int) error
}

// Report describes what a reconciliation pass changed for one post.
type Report struct {
	Post           string `json:"post"`
	CountBefore    int    `json:"countBefore"`
	CountAfter     int    `json:"countAfter"`
	RepliesFixed   int    `json:"repliesFixed"`
	OrphansRemoved int    `json:"orphansRemoved"`
}

func (r Report) Changed() bool {
	return r.CountBefore != r.CountAfter || r.RepliesFixed > 0 || r.OrphansRemoved > 0
}

// Reconciler repairs the denormalized fields of a post's comments from the
// parent field, which is the source of truth: orphaned subtrees are removed,
// every replies list is rebuilt in creation order, and the post counter is
// recounted. It is meant for quiet periods; writes racing with it may need
// another pass.
type Reconciler struct {
	m     *Manager
	posts PostCounters
}

func NewReconciler(m *Manager, counters PostCounters) *Reconciler {
	return &Reconciler{m: m, posts: counters}
}

func (r *Reconciler) Reconcile(ctx context.Context, postID string) (Report, error) {
	rep := Report{Post: postID}

	p, err := r.posts.Get(ctx, postID, false)
	if err != nil {
		return rep, fmt.Errorf("reconcile %s: %w", postID, err)
	}
	rep.CountBefore = p.CommentsCount

	all, err := r.comments(ctx, postID)
	if err != nil {
		return rep, err
	}

	live := make(map[string]bool, len(all))
	for _, c := range all {
		live[c.ID] = true
	}
	for _, c := range all {
		if c.Parent == nil || live[*c.Parent] {
			continue
		}
		// the parent lives on another post
		if _, err := r.m.get(ctx, *c.Parent); !errors.Is(err, docstore.ErrNotFound) {
			if err != nil {
				return rep, fmt.Errorf("reconcile %s: parent of %s: %w", postID, c.ID, err)
			}
			continue
		}
		nodes, err := r.m.collect(ctx, c)
		if err != nil {
			return rep, fmt.Errorf("reconcile %s: %w", postID, err)
		}
		n, err := r.m.cascade(ctx, "reconcile", c.ID, nodes)
		rep.OrphansRemoved += n
		if err != nil {
			return rep, fmt.Errorf("reconcile %s: orphan %s: %w", postID, c.ID, err)
		}
	}
	if rep.OrphansRemoved > 0 {
		if all, err = r.comments(ctx, postID); err != nil {
			return rep, err
		}
	}

	children := make(map[string][]string, len(all))
	for _, c := range all {
		if c.Parent != nil {
			children[*c.Parent] = append(children[*c.Parent], c.ID)
		}
	}
	for _, c := range all {
		want := children[c.ID]
		if want == nil {
			want = []string{}
		}
		if slices.Equal(c.Replies, want) {
			continue
		}
		err := r.m.store.Set(ctx, Collection, c.ID, map[string]any{"replies": want})
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("reconcile %s: replies of %s: %w", postID, c.ID, err)
		}
		rep.RepliesFixed++
	}

	rep.CountAfter = len(all)
	// orphan removal already moved the stored counter
	if rep.CountAfter != rep.CountBefore || rep.OrphansRemoved > 0 {
		if err := r.posts.SetCommentsCount(ctx, postID, rep.CountAfter); err != nil {
			return rep, fmt.Errorf("reconcile %s: counter: %w", postID, err)
		}
	}

	if rep.Changed() {
		r.m.invalidate(ctx, postID)
		r.m.log.Info("post reconciled",
			zap.String("post_id", postID),
			zap.Int("count_before", rep.CountBefore),
			zap.Int("count_after", rep.CountAfter),
			zap.Int("replies_fixed", rep.RepliesFixed),
			zap.Int("orphans_removed", rep.OrphansRemoved),
		)
	}
	return rep, nil
}

// ReconcileAll runs Reconcile for every post.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Report, error) {
	var ids []struct {
		ID string `json:"id"`
	}
	if err := r.m.store.Find(ctx, posts.Collection, docstore.Query{}, &ids); err != nil {
		return nil, fmt.Errorf("reconcile: list posts: %w", err)
	}
	out := make([]Report, 0, len(ids))
	for _, p := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rep, err := r.Reconcile(ctx, p.ID)
		if err != nil {
			return out, err
		}
		out = append(out, rep)
	}
	return out, nil
}

func (r *Reconciler) comments(ctx context.Context, postID string) ([]Comment, error) {
	var all []Comment
	if err := r.m.store.Find(ctx, Collection, docstore.Where("post", postID), &all); err != nil {
		return nil, fmt.Errorf("reconcile %s: list comments: %w", postID, err)
	}
	return all, nil
}
