package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Owner     string    `json:"owner"`
	Parent    *string   `json:"parent"`
	Tags      []string  `json:"tags"`
	Count     int       `json:"count"`
	Views     int       `json:"views"`
	Items     []string  `json:"items"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// runContract exercises the Store contract against any backend.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("insert get duplicate", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, "docs", "a", testDoc{Title: "first", Tags: []string{"x"}}))
		assert.ErrorIs(t, s.Insert(ctx, "docs", "a", testDoc{}), ErrDuplicate)

		var got testDoc
		require.NoError(t, s.Get(ctx, "docs", "a", &got))
		assert.Equal(t, "a", got.ID)
		assert.Equal(t, "first", got.Title)
		assert.False(t, got.CreatedAt.IsZero())
		assert.False(t, got.UpdatedAt.IsZero())

		assert.ErrorIs(t, s.Get(ctx, "docs", "missing", &got), ErrNotFound)
		assert.ErrorIs(t, s.Get(ctx, "other", "a", &got), ErrNotFound)
	})

	t.Run("set keeps other fields", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, "docs", "a", testDoc{Title: "t", Owner: "u1"}))
		require.NoError(t, s.Set(ctx, "docs", "a", map[string]any{"title": "t2"}))

		var got testDoc
		require.NoError(t, s.Get(ctx, "docs", "a", &got))
		assert.Equal(t, "t2", got.Title)
		assert.Equal(t, "u1", got.Owner)
		assert.ErrorIs(t, s.Set(ctx, "docs", "nope", map[string]any{"title": "x"}), ErrNotFound)
	})

	t.Run("increment push pull", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, "docs", "a", map[string]any{"title": "t"}))

		require.NoError(t, s.Increment(ctx, "docs", "a", "count", 2))
		require.NoError(t, s.Increment(ctx, "docs", "a", "count", -1))
		require.NoError(t, s.Push(ctx, "docs", "a", "items", "c1"))
		require.NoError(t, s.Push(ctx, "docs", "a", "items", "c2"))
		require.NoError(t, s.Push(ctx, "docs", "a", "items", "c3"))
		require.NoError(t, s.Pull(ctx, "docs", "a", "items", "c2"))
		require.NoError(t, s.Pull(ctx, "docs", "a", "items", "absent"))

		var got testDoc
		require.NoError(t, s.Get(ctx, "docs", "a", &got))
		assert.Equal(t, 1, got.Count)
		assert.Equal(t, []string{"c1", "c3"}, got.Items)

		assert.ErrorIs(t, s.Increment(ctx, "docs", "nope", "count", 1), ErrNotFound)
		assert.ErrorIs(t, s.Push(ctx, "docs", "nope", "items", "x"), ErrNotFound)
		assert.ErrorIs(t, s.Pull(ctx, "docs", "nope", "items", "x"), ErrNotFound)
	})

	t.Run("pull structured value", func(t *testing.T) {
		s := newStore(t)
		type like struct {
			User string    `json:"user"`
			At   time.Time `json:"createdAt"`
		}
		at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.Insert(ctx, "docs", "a", map[string]any{}))
		require.NoError(t, s.Push(ctx, "docs", "a", "likes", like{User: "u1", At: at}))
		require.NoError(t, s.Push(ctx, "docs", "a", "likes", like{User: "u2", At: at}))
		require.NoError(t, s.Pull(ctx, "docs", "a", "likes", like{User: "u1", At: at}))

		var got struct {
			Likes []like `json:"likes"`
		}
		require.NoError(t, s.Get(ctx, "docs", "a", &got))
		require.Len(t, got.Likes, 1)
		assert.Equal(t, "u2", got.Likes[0].User)
	})

	t.Run("delete reports existence", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, "docs", "a", testDoc{}))
		ok, err := s.Delete(ctx, "docs", "a")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Delete(ctx, "docs", "a")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("find filters order paging", func(t *testing.T) {
		s := newStore(t)
		p := "a"
		require.NoError(t, s.Insert(ctx, "docs", "a", testDoc{Title: "Go Tips", Owner: "u1", Views: 5, Tags: []string{"go"}}))
		require.NoError(t, s.Insert(ctx, "docs", "b", testDoc{Title: "Rust", Owner: "u2", Parent: &p, Views: 9}))
		require.NoError(t, s.Insert(ctx, "docs", "c", testDoc{Title: "More go", Owner: "u1", Views: 1, Tags: []string{"go", "web"}}))

		var all []testDoc
		require.NoError(t, s.Find(ctx, "docs", Query{}, &all))
		assert.Equal(t, []string{"a", "b", "c"}, ids(all))

		var newest []testDoc
		require.NoError(t, s.Find(ctx, "docs", Query{Sort: Sort{Desc: true}}, &newest))
		assert.Equal(t, []string{"c", "b", "a"}, ids(newest))

		var byOwner []testDoc
		require.NoError(t, s.Find(ctx, "docs", Where("owner", "u1"), &byOwner))
		assert.Equal(t, []string{"a", "c"}, ids(byOwner))

		var roots []testDoc
		require.NoError(t, s.Find(ctx, "docs", Where("parent", nil), &roots))
		assert.Equal(t, []string{"a", "c"}, ids(roots))

		var tagged []testDoc
		require.NoError(t, s.Find(ctx, "docs", Query{Filters: []Filter{{Field: "tags", Op: Has, Value: "web"}}}, &tagged))
		assert.Equal(t, []string{"c"}, ids(tagged))

		var search []testDoc
		q := Query{Any: []Filter{{Field: "title", Op: Like, Value: "GO"}}}
		require.NoError(t, s.Find(ctx, "docs", q, &search))
		assert.Equal(t, []string{"a", "c"}, ids(search))

		var popular []testDoc
		require.NoError(t, s.Find(ctx, "docs", Query{Sort: Sort{Field: "views", Desc: true}}, &popular))
		assert.Equal(t, []string{"b", "a", "c"}, ids(popular))

		var page []testDoc
		require.NoError(t, s.Find(ctx, "docs", Query{Limit: 1, Offset: 1}, &page))
		assert.Equal(t, []string{"b"}, ids(page))

		var empty []testDoc
		require.NoError(t, s.Find(ctx, "docs", Query{Offset: 10}, &empty))
		assert.Empty(t, empty)

		n, err := s.Count(ctx, "docs", Query{Limit: 1, Filters: Where("owner", "u1").Filters})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}

func ids(docs []testDoc) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrUnavailable))
	assert.True(t, IsTransient(errors.Join(errors.New("dial"), ErrUnavailable)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(ErrNotFound))
	assert.False(t, IsTransient(ErrDuplicate))
	assert.False(t, IsTransient(nil))
}
