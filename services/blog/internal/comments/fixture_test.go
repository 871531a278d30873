package comments

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/blog-platform/services/blog/internal/cache"
	"github.com/example/blog-platform/services/blog/internal/docstore"
	"github.com/example/blog-platform/services/blog/internal/events"
	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/users"
)

var admin = Actor{ID: "root", Admin: true}

// faultyStore lets a test fail or observe individual store calls.
type faultyStore struct {
	docstore.Store
	mu   sync.Mutex
	hook func(method, coll, id string) error
}

func (s *faultyStore) setHook(h func(method, coll, id string) error) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

func (s *faultyStore) check(method, coll, id string) error {
	s.mu.Lock()
	h := s.hook
	s.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(method, coll, id)
}

func (s *faultyStore) Insert(ctx context.Context, coll, id string, doc any) error {
	if err := s.check("insert", coll, id); err != nil {
		return err
	}
	return s.Store.Insert(ctx, coll, id, doc)
}

func (s *faultyStore) Set(ctx context.Context, coll, id string, fields map[string]any) error {
	if err := s.check("set", coll, id); err != nil {
		return err
	}
	return s.Store.Set(ctx, coll, id, fields)
}

func (s *faultyStore) Delete(ctx context.Context, coll, id string) (bool, error) {
	if err := s.check("delete", coll, id); err != nil {
		return false, err
	}
	return s.Store.Delete(ctx, coll, id)
}

func (s *faultyStore) Increment(ctx context.Context, coll, id, field string, delta int64) error {
	if err := s.check("increment", coll, id); err != nil {
		return err
	}
	return s.Store.Increment(ctx, coll, id, field, delta)
}

func (s *faultyStore) Push(ctx context.Context, coll, id, field string, value any) error {
	if err := s.check("push", coll, id); err != nil {
		return err
	}
	return s.Store.Push(ctx, coll, id, field, value)
}

func (s *faultyStore) Pull(ctx context.Context, coll, id, field string, value any) error {
	if err := s.check("pull", coll, id); err != nil {
		return err
	}
	return s.Store.Pull(ctx, coll, id, field, value)
}

type fixture struct {
	store  *faultyStore
	posts  *posts.Registry
	users  *users.Directory
	events *events.Recorder
	cache  *cache.Memory
	m      *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &faultyStore{Store: docstore.NewMemoryStore()}
	f := &fixture{
		store:  store,
		posts:  posts.NewRegistry(store, nil),
		users:  users.NewDirectory(store),
		events: &events.Recorder{},
		cache:  cache.NewMemory(0),
	}
	f.m = NewManager(Options{
		Store:  store,
		Posts:  f.posts,
		Users:  f.users,
		Events: f.events,
		Cache:  f.cache,
	})
	return f
}

func (f *fixture) post(t *testing.T) string {
	t.Helper()
	p, err := f.posts.Create(context.Background(), posts.CreateInput{
		Title:   "A post",
		Content: "Some content",
		Author:  "writer",
		Status:  posts.StatusPublished,
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) comment(t *testing.T, postID, parentID, author string) View {
	t.Helper()
	v, err := f.m.Create(context.Background(), CreateInput{
		Content:  "comment by " + author,
		PostID:   postID,
		ParentID: parentID,
		AuthorID: author,
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) stored(t *testing.T, id string) (Comment, bool) {
	t.Helper()
	c, err := f.m.get(context.Background(), id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Comment{}, false
	}
	require.NoError(t, err)
	return c, true
}

func (f *fixture) count(t *testing.T, postID string) int {
	t.Helper()
	p, err := f.posts.Get(context.Background(), postID, false)
	require.NoError(t, err)
	return p.CommentsCount
}

func (f *fixture) all(t *testing.T, postID string) []Comment {
	t.Helper()
	var out []Comment
	require.NoError(t, f.store.Find(context.Background(), Collection, docstore.Where("post", postID), &out))
	return out
}

// requireConsistent checks the replies/parent mirror and the post counter.
func (f *fixture) requireConsistent(t *testing.T, postID string) {
	t.Helper()
	all := f.all(t, postID)
	byID := make(map[string]Comment, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	for _, c := range all {
		if c.Parent != nil {
			p, ok := byID[*c.Parent]
			require.Truef(t, ok, "comment %s has dangling parent %s", c.ID, *c.Parent)
			require.Containsf(t, p.Replies, c.ID, "parent %s does not list reply %s", p.ID, c.ID)
		}
		seen := map[string]bool{}
		for _, r := range c.Replies {
			require.Falsef(t, seen[r], "comment %s lists reply %s twice", c.ID, r)
			seen[r] = true
			child, ok := byID[r]
			require.Truef(t, ok, "comment %s lists missing reply %s", c.ID, r)
			require.NotNil(t, child.Parent)
			require.Equal(t, c.ID, *child.Parent)
		}
	}
	require.Equal(t, len(all), f.count(t, postID), "commentsCount must equal live comments")
}

func ids(views []View) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.ID
	}
	return out
}

func threadIDs(nodes []ThreadNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func sorted(s []string) []string {
	c := slices.Clone(s)
	slices.Sort(c)
	return c
}
