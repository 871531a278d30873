package comments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/blog-platform/services/blog/internal/docstore"
	"github.com/example/blog-platform/services/blog/internal/events"
	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/users"
)

// PostRegistry is the slice of the post service the comment core needs.
type PostRegistry interface {
	Exists(ctx context.Context, id string) (bool, error)
	AdjustCommentsCount(ctx context.Context, id string, delta int) error
	Summary(ctx context.Context, id string) (posts.Summary, error)
}

// Directory resolves author profiles for display.
type Directory interface {
	Lookup(ctx context.Context, ids []string) (map[string]users.Profile, error)
}

// Actor is the identity performing a mutation. It is shared with the post
// registry so one request identity serves both.
type Actor = posts.Actor

// Authorizer decides whether actor may modify content written by authorID.
type Authorizer func(actor Actor, authorID string) bool

// AuthorOrAdmin allows the author and administrators.
func AuthorOrAdmin(actor Actor, authorID string) bool {
	return actor.Admin || (actor.ID != "" && actor.ID == authorID)
}

// Cache stores rendered thread pages. Entries are keyed under a per-post
// version; Bump makes every older entry unreachable.
type Cache interface {
	Version(ctx context.Context, postID string) (int64, error)
	Bump(ctx context.Context, postID string) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

type Options struct {
	Store      docstore.Store
	Posts      PostRegistry
	Users      Directory
	Authorizer Authorizer
	Events     events.Publisher
	Cache      Cache
	Logger     *zap.Logger
	// StoreTimeout bounds writes that must finish after the caller is gone.
	StoreTimeout time.Duration
}

// Manager is the comment graph manager. It is safe for concurrent use; all
// shared state lives in the store.
type Manager struct {
	store   docstore.Store
	posts   PostRegistry
	users   Directory
	authz   Authorizer
	events  events.Publisher
	cache   Cache
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		store:   opts.Store,
		posts:   opts.Posts,
		users:   opts.Users,
		authz:   opts.Authorizer,
		events:  opts.Events,
		cache:   opts.Cache,
		log:     opts.Logger,
		timeout: opts.StoreTimeout,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	if m.authz == nil {
		m.authz = AuthorOrAdmin
	}
	if m.events == nil {
		m.events = events.Nop{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.timeout <= 0 {
		m.timeout = 5 * time.Second
	}
	return m
}

// Create adds a top-level comment or a reply. The three writes (insert, link
// into the parent, bump the post counter) are undone in reverse order if a
// later one fails.
func (m *Manager) Create(ctx context.Context, in CreateInput) (View, error) {
	const op = "create"

	content, ok := cleanContent(in.Content)
	if !ok {
		return View{}, invalid(op, "", contentMsg)
	}
	if in.AuthorID == "" {
		return View{}, invalid(op, "", "Author is required")
	}
	if !validID(in.PostID) {
		return View{}, invalid(op, in.PostID, "Valid post ID is required")
	}
	if in.ParentID != "" && !validID(in.ParentID) {
		return View{}, invalid(op, in.ParentID, "Valid parent comment ID is required")
	}

	exists, err := m.posts.Exists(ctx, in.PostID)
	if err != nil {
		return View{}, internal(op, in.PostID, err)
	}
	if !exists {
		return View{}, notFound(op, in.PostID, "Post not found")
	}

	var parent *string
	if in.ParentID != "" {
		p, err := m.get(ctx, in.ParentID)
		if errors.Is(err, docstore.ErrNotFound) {
			return View{}, notFound(op, in.ParentID, "Parent comment not found")
		}
		if err != nil {
			return View{}, internal(op, in.ParentID, err)
		}
		if p.Post != in.PostID {
			return View{}, invalid(op, in.ParentID, "parent comment belongs to a different post")
		}
		parent = &p.ID
	}

	c := Comment{
		ID:        m.newID(),
		Content:   content,
		Author:    in.AuthorID,
		Post:      in.PostID,
		Parent:    parent,
		Replies:   []string{},
		Likes:     []Like{},
		CreatedAt: m.now(),
	}
	log := m.log.With(zap.String("op", op), zap.String("comment_id", c.ID), zap.String("post_id", c.Post))

	if err := m.store.Insert(ctx, Collection, c.ID, c); err != nil {
		return View{}, internal(op, c.ID, err)
	}

	if parent != nil {
		if err := m.store.Push(ctx, Collection, *parent, "replies", c.ID); err != nil {
			log.Warn("link into parent failed, rolling back", zap.String("parent_id", *parent), zap.Error(err))
			m.undoCreate(ctx, log, c, false)
			if errors.Is(err, docstore.ErrNotFound) {
				return View{}, notFound(op, *parent, "Parent comment not found")
			}
			return View{}, internal(op, c.ID, err)
		}
	}

	if err := m.posts.AdjustCommentsCount(ctx, c.Post, 1); err != nil {
		log.Warn("post counter increment failed, rolling back", zap.Error(err))
		m.undoCreate(ctx, log, c, parent != nil)
		if errors.Is(err, posts.ErrNotFound) {
			return View{}, notFound(op, c.Post, "Post not found")
		}
		return View{}, internal(op, c.ID, err)
	}

	m.invalidate(ctx, c.Post)
	ev := events.Event{EventType: "comment.created", CommentID: c.ID, PostID: c.Post, ActorID: c.Author}
	if parent != nil {
		ev.ParentID = *parent
	}
	m.publish(ctx, events.SubjectCommentCreated, ev)

	stored, err := m.get(ctx, c.ID)
	if err != nil {
		// the comment exists; answer with what we wrote
		log.Warn("re-read after create failed", zap.Error(err))
		stored = c
	}
	return m.view(ctx, stored), nil
}

// undoCreate reverses a partially applied Create. It runs on a detached
// context so a cancelled request still rolls back. If rollback fails the post
// is queued for a recount, which adopts or drops the leftover record.
func (m *Manager) undoCreate(ctx context.Context, log *zap.Logger, c Comment, linked bool) {
	wctx, cancel := m.detached(ctx)
	defer cancel()

	ok := true
	if linked {
		if err := m.store.Pull(wctx, Collection, *c.Parent, "replies", c.ID); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			log.Error("rollback: unlink from parent failed", zap.String("parent_id", *c.Parent), zap.Error(err))
			ok = false
		}
	}
	if _, err := m.store.Delete(wctx, Collection, c.ID); err != nil && !errors.Is(err, docstore.ErrUnconfirmed) {
		log.Error("rollback: delete inserted comment failed", zap.Error(err))
		ok = false
	}
	if !ok {
		m.queueReconcile(wctx, c.ID, c.Post, nil, true)
	}
}

// Update replaces the content of a comment and marks it edited.
func (m *Manager) Update(ctx context.Context, id, content string, actor Actor) (View, error) {
	const op = "update"

	content, ok := cleanContent(content)
	if !ok {
		return View{}, invalid(op, id, contentMsg)
	}
	c, err := m.load(ctx, op, id)
	if err != nil {
		return View{}, err
	}
	if !m.authz(actor, c.Author) {
		return View{}, forbidden(op, id, "Not authorized to update this comment")
	}

	now := m.now()
	err = m.store.Set(ctx, Collection, id, map[string]any{
		"content":  content,
		"isEdited": true,
		"editedAt": now,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return View{}, notFound(op, id, "Comment not found")
	}
	if err != nil {
		return View{}, internal(op, id, err)
	}

	m.invalidate(ctx, c.Post)
	m.publish(ctx, events.SubjectCommentUpdated, events.Event{
		EventType: "comment.updated", CommentID: id, PostID: c.Post, ActorID: actor.ID,
	})

	c, err = m.load(ctx, op, id)
	if err != nil {
		return View{}, err
	}
	return m.view(ctx, c), nil
}

// ToggleLike adds the user's like, or removes it if present. Concurrent
// toggles by the same user resolve last-write-wins.
func (m *Manager) ToggleLike(ctx context.Context, id, userID string) (LikeResult, error) {
	const op = "like"

	if userID == "" {
		return LikeResult{}, invalid(op, id, "User is required")
	}
	c, err := m.load(ctx, op, id)
	if err != nil {
		return LikeResult{}, err
	}

	var mine []Like
	for _, l := range c.Likes {
		if l.User == userID {
			mine = append(mine, l)
		}
	}

	liked := len(mine) == 0
	if liked {
		err = m.store.Push(ctx, Collection, id, "likes", Like{User: userID, CreatedAt: m.now()})
	} else {
		// pull every entry of this user so an earlier race cannot leave a duplicate
		for _, l := range mine {
			if err = m.store.Pull(ctx, Collection, id, "likes", l); err != nil {
				break
			}
		}
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return LikeResult{}, notFound(op, id, "Comment not found")
	}
	if err != nil {
		return LikeResult{}, internal(op, id, err)
	}

	m.invalidate(ctx, c.Post)
	m.publish(ctx, events.SubjectCommentLiked, events.Event{
		EventType: "comment.liked", CommentID: id, PostID: c.Post, ActorID: userID, Liked: liked,
	})

	c, err = m.load(ctx, op, id)
	if err != nil {
		return LikeResult{}, err
	}
	likes := c.Likes
	if likes == nil {
		likes = []Like{}
	}
	return LikeResult{Likes: likes, LikeCount: len(likes), Liked: liked}, nil
}

func (m *Manager) get(ctx context.Context, id string) (Comment, error) {
	var c Comment
	err := m.store.Get(ctx, Collection, id, &c)
	return c, err
}

// load is get with the store error mapped for op.
func (m *Manager) load(ctx context.Context, op, id string) (Comment, error) {
	c, err := m.get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Comment{}, notFound(op, id, "Comment not found")
	}
	if err != nil {
		return Comment{}, internal(op, id, err)
	}
	return c, nil
}

func (m *Manager) view(ctx context.Context, c Comment) View {
	profiles := m.profiles(ctx, []string{c.Author})
	return newView(c, profiles[c.Author])
}

// profiles resolves authors for display. A directory failure degrades to
// id-only profiles rather than failing the read.
func (m *Manager) profiles(ctx context.Context, ids []string) map[string]users.Profile {
	if m.users == nil || len(ids) == 0 {
		return map[string]users.Profile{}
	}
	out, err := m.users.Lookup(ctx, ids)
	if err != nil {
		m.log.Warn("author lookup failed", zap.Int("authors", len(ids)), zap.Error(err))
		return map[string]users.Profile{}
	}
	return out
}

func (m *Manager) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
}

func (m *Manager) publish(ctx context.Context, subject string, ev events.Event) {
	if err := m.events.Publish(ctx, subject, ev); err != nil {
		m.log.Warn("event publish failed",
			zap.String("subject", subject),
			zap.String("comment_id", ev.CommentID),
			zap.Strings("pending", ev.Pending),
			zap.Error(err),
		)
	}
}

func (m *Manager) invalidate(ctx context.Context, postID string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Bump(ctx, postID); err != nil {
		m.log.Warn("thread cache invalidation failed", zap.String("post_id", postID), zap.Error(err))
	}
}
