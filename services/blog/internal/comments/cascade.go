package comments

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/docstore"
	"github.com/example/blog-platform/services/blog/internal/events"
	"github.com/example/blog-platform/services/blog/internal/posts"
)

// node is the part of a comment the cascade needs once the walk is done.
type node struct {
	ID     string
	Post   string
	Parent *string
}

func nodeOf(c Comment) node {
	return node{ID: c.ID, Post: c.Post, Parent: c.Parent}
}

// Delete removes a comment and its whole reply subtree.
//
// The subtree is walked with an explicit stack and then removed children
// first. Each node is removed before its links are undone, and the links are
// only undone when the remove actually deleted something, so running the
// cascade again over the same ids is a no-op for finished nodes. A cancelled
// or failed walk leaves a connected tree still rooted at the target; the
// unfinished ids are logged and published for the reconciliation worker.
//
// Delete succeeds once the target itself is gone, even if follow-up work was
// queued. The target is removed last, so an interrupted Delete returns an
// error while the target still exists. The queued worklist ends with the
// target, and the reconciliation worker finishes the delete later. An error
// from Delete therefore means "not done yet", not "nothing will be deleted".
func (m *Manager) Delete(ctx context.Context, id string, actor Actor) error {
	const op = "delete"

	t, err := m.load(ctx, op, id)
	if err != nil {
		return err
	}
	if !m.authz(actor, t.Author) {
		return forbidden(op, id, "Not authorized to delete this comment")
	}

	nodes, err := m.collect(ctx, t)
	if err != nil {
		return internal(op, id, err)
	}

	removed, err := m.cascade(ctx, op, t.ID, nodes)
	m.invalidate(context.WithoutCancel(ctx), t.Post)
	if removed > 0 {
		m.publish(context.WithoutCancel(ctx), events.SubjectCommentDeleted, events.Event{
			EventType: "comment.deleted",
			CommentID: t.ID,
			PostID:    t.Post,
			ActorID:   actor.ID,
			Removed:   removed,
		})
	}
	if err != nil {
		return internal(op, id, err)
	}
	return nil
}

// ResumeDelete finishes cascades queued by an interrupted Delete. ids are in
// children-first order; each still-present id is re-walked so replies created
// since the interruption go too. No authorization is applied.
func (m *Manager) ResumeDelete(ctx context.Context, ids []string) (int, error) {
	const op = "resume_delete"

	total := 0
	for _, id := range ids {
		c, err := m.get(ctx, id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return total, internal(op, id, err)
		}
		nodes, err := m.collect(ctx, c)
		if err != nil {
			return total, internal(op, id, err)
		}
		removed, err := m.cascade(ctx, op, id, nodes)
		total += removed
		m.invalidate(context.WithoutCancel(ctx), c.Post)
		if err != nil {
			return total, internal(op, id, err)
		}
	}
	return total, nil
}

// PurgePost deletes every comment of a post. Each top-level thread goes
// through the regular cascade, so the post stays consistent if the purge
// stops halfway. Comments whose parent chain is already broken are removed
// one by one afterwards. It returns how many records it deleted.
func (m *Manager) PurgePost(ctx context.Context, postID string) (int, error) {
	const op = "purge_post"
	defer m.invalidate(context.WithoutCancel(ctx), postID)

	var roots []Comment
	if err := m.store.Find(ctx, Collection, docstore.Where("post", postID, "parentComment", nil), &roots); err != nil {
		return 0, internal(op, postID, err)
	}
	total := 0
	for _, root := range roots {
		nodes, err := m.collect(ctx, root)
		if err != nil {
			return total, internal(op, root.ID, err)
		}
		removed, err := m.cascade(ctx, op, root.ID, nodes)
		total += removed
		if err != nil {
			return total, internal(op, root.ID, err)
		}
	}

	var rest []Comment
	if err := m.store.Find(ctx, Collection, docstore.Where("post", postID), &rest); err != nil {
		return total, internal(op, postID, err)
	}
	for _, c := range rest {
		if err := ctx.Err(); err != nil {
			return total, internal(op, postID, err)
		}
		gone, _, err := m.removeNode(ctx, nodeOf(c))
		if err != nil {
			return total, internal(op, c.ID, err)
		}
		if gone {
			total++
		}
	}
	return total, nil
}

// collect walks the subtree under root and returns it in pre-order (root
// first). Children are found through their parent field, which never changes,
// so a reply whose link into the parent has not landed yet is still found.
func (m *Manager) collect(ctx context.Context, root Comment) ([]node, error) {
	var out []node
	seen := map[string]bool{root.ID: true}
	stack := []node{nodeOf(root)}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)

		var children []Comment
		if err := m.store.Find(ctx, Collection, docstore.Where("parentComment", n.ID), &children); err != nil {
			return nil, fmt.Errorf("children of %s: %w", n.ID, err)
		}
		// push in reverse so the oldest reply is visited first
		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			stack = append(stack, nodeOf(c))
		}
	}
	return out, nil
}

// cascade removes nodes in reverse pre-order, so every reply goes before the
// comment it answers, and returns how many records it deleted. It stops at
// the first cancellation or store failure and queues what is left.
func (m *Manager) cascade(ctx context.Context, op, rootID string, nodes []node) (int, error) {
	removed := 0
	recount := false
	for i := len(nodes) - 1; i >= 0; i-- {
		err := ctx.Err()
		if err == nil {
			var gone, linksOK bool
			gone, linksOK, err = m.removeNode(ctx, nodes[i])
			if gone {
				removed++
			}
			if !linksOK {
				recount = true
			}
		}
		if err != nil {
			pending := make([]string, 0, i+1)
			for j := i; j >= 0; j-- {
				pending = append(pending, nodes[j].ID)
			}
			m.log.Warn("cascade delete interrupted",
				zap.String("op", op),
				zap.String("comment_id", rootID),
				zap.String("post_id", nodes[0].Post),
				zap.Strings("pending", pending),
				zap.Int("removed", removed),
				zap.Error(err),
			)
			m.queueReconcile(ctx, rootID, nodes[0].Post, pending, recount)
			return removed, err
		}
	}
	if recount {
		m.queueReconcile(ctx, rootID, nodes[0].Post, nil, true)
	}
	return removed, nil
}

func (m *Manager) queueReconcile(ctx context.Context, commentID, postID string, pending []string, recount bool) {
	m.publish(context.WithoutCancel(ctx), events.SubjectReconcile, events.Event{
		EventType: "comment.reconcile",
		CommentID: commentID,
		PostID:    postID,
		Pending:   pending,
		Recount:   recount,
	})
}

// removeNode deletes one record and then undoes its links. The writes for a
// node run on a detached context so cancellation never splits a node.
// linksOK is false when the record went but a link update failed, or when
// the store could not confirm who removed it; the post then needs a recount.
func (m *Manager) removeNode(ctx context.Context, n node) (gone, linksOK bool, err error) {
	wctx, cancel := m.detached(ctx)
	defer cancel()

	log := m.log.With(zap.String("comment_id", n.ID), zap.String("post_id", n.Post))

	gone, err = m.store.Delete(wctx, Collection, n.ID)
	// unconfirmed: an earlier attempt most likely removed it. Undo the links
	// as usual and recount, in case someone else removed it first.
	unconfirmed := errors.Is(err, docstore.ErrUnconfirmed)
	if err != nil && !unconfirmed {
		return false, true, err
	}
	if !gone && !unconfirmed {
		return false, true, nil
	}
	if unconfirmed {
		log.Warn("delete outcome unconfirmed, queueing recount")
	}

	linksOK = !unconfirmed
	if n.Parent != nil {
		err := m.store.Pull(wctx, Collection, *n.Parent, "replies", n.ID)
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			log.Error("unlink from parent failed", zap.String("parent_id", *n.Parent), zap.Error(err))
			linksOK = false
		}
	}
	if err := m.posts.AdjustCommentsCount(wctx, n.Post, -1); err != nil && !errors.Is(err, posts.ErrNotFound) {
		log.Error("post counter decrement failed", zap.Error(err))
		linksOK = false
	}
	return true, linksOK, nil
}
