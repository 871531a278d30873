package comments

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/blog-platform/services/blog/internal/users"
)

func TestListThread_TopLevelOldestFirstWithOneLevelOfReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Put(ctx, users.Profile{ID: "u2", Username: "bob"}))
	p := f.post(t)
	a := f.comment(t, p, "", "u1")
	b := f.comment(t, p, a.ID, "u2")
	c := f.comment(t, p, b.ID, "u3")
	d := f.comment(t, p, "", "u4")
	e := f.comment(t, p, a.ID, "u5")

	page, err := f.m.ListThread(ctx, p, Page{})
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, d.ID}, threadIDs(page.Comments))
	first := page.Comments[0]
	assert.Equal(t, []string{b.ID, e.ID}, ids(first.Replies))
	assert.Equal(t, "bob", first.Replies[0].Author.Username)
	// replies of replies stay as ids
	assert.Equal(t, []string{c.ID}, first.Replies[0].Replies)
	assert.Equal(t, 2, first.ReplyCount)
	assert.Empty(t, page.Comments[1].Replies)

	assert.Equal(t, Pagination{
		CurrentPage: 1, PageSize: DefaultPageSize, TotalPages: 1, TotalComments: 2,
	}, page.Pagination)
}

func TestListThread_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t)
	var top []string
	for i := 0; i < 5; i++ {
		top = append(top, f.comment(t, p, "", "u1").ID)
	}

	page, err := f.m.ListThread(ctx, p, Page{Number: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, top[2:4], threadIDs(page.Comments))
	assert.Equal(t, Pagination{CurrentPage: 2, PageSize: 2, TotalPages: 3, TotalComments: 5, HasNext: true, HasPrev: true}, page.Pagination)

	page, err = f.m.ListThread(ctx, p, Page{Number: 3, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, top[4:], threadIDs(page.Comments))
	assert.False(t, page.Pagination.HasNext)

	page, err = f.m.ListThread(ctx, p, Page{Number: 9, Size: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Comments)

	page, err = f.m.ListThread(ctx, p, Page{Number: -1, Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.CurrentPage)
	assert.Equal(t, MaxPageSize, page.Pagination.PageSize)
}

func TestListThread_UnknownPostIsEmpty(t *testing.T) {
	f := newFixture(t)
	page, err := f.m.ListThread(context.Background(), "missing", Page{})
	require.NoError(t, err)
	assert.Empty(t, page.Comments)
	assert.Equal(t, 0, page.Pagination.TotalComments)
}

func TestListThread_CacheIsInvalidatedByWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t)
	a := f.comment(t, p, "", "u1")

	first, err := f.m.ListThread(ctx, p, Page{})
	require.NoError(t, err)
	require.Len(t, first.Comments, 1)

	// a write behind the manager's back is not seen while the entry lives
	require.NoError(t, f.store.Set(ctx, Collection, a.ID, map[string]any{"content": "sneaky"}))
	cached, err := f.m.ListThread(ctx, p, Page{})
	require.NoError(t, err)
	assert.Equal(t, first.Comments[0].Content, cached.Comments[0].Content)

	// any write through the manager retires the cached pages
	f.comment(t, p, "", "u2")
	fresh, err := f.m.ListThread(ctx, p, Page{})
	require.NoError(t, err)
	require.Len(t, fresh.Comments, 2)
	assert.Equal(t, "sneaky", fresh.Comments[0].Content)

	_, err = f.m.ToggleLike(ctx, a.ID, "u3")
	require.NoError(t, err)
	fresh, err = f.m.ListThread(ctx, p, Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Comments[0].LikeCount)

	require.NoError(t, f.m.Delete(ctx, a.ID, admin))
	fresh, err = f.m.ListThread(ctx, p, Page{})
	require.NoError(t, err)
	assert.Len(t, fresh.Comments, 1)
}

func TestListThread_SkipsDanglingReplyIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.post(t)
	a := f.comment(t, p, "", "u1")
	require.NoError(t, f.store.Push(ctx, Collection, a.ID, "replies", "gone"))

	page, err := f.m.ListThread(ctx, p, Page{})
	require.NoError(t, err)
	assert.Empty(t, page.Comments[0].Replies)
}

func TestThreadNode_JSONExpandsReplies(t *testing.T) {
	n := ThreadNode{
		View:    View{ID: "a", Replies: []string{"b"}},
		Replies: []View{{ID: "b", Replies: []string{}}},
	}
	b, err := json.Marshal(n)
	require.NoError(t, err)

	var got struct {
		ID      string `json:"id"`
		Replies []struct {
			ID string `json:"id"`
		} `json:"replies"`
	}
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "a", got.ID)
	require.Len(t, got.Replies, 1)
	assert.Equal(t, "b", got.Replies[0].ID)
}

func TestListByUser_NewestFirstWithPostSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1, p2 := f.post(t), f.post(t)
	x := f.comment(t, p1, "", "u1")
	f.comment(t, p1, "", "u2")
	y := f.comment(t, p2, "", "u1")
	z := f.comment(t, p1, x.ID, "u1")

	page, err := f.m.ListByUser(ctx, "u1", Page{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{z.ID, y.ID}, ids(page.Comments))
	require.NotNil(t, page.Comments[0].PostInfo)
	assert.Equal(t, p1, page.Comments[0].PostInfo.ID)
	assert.Equal(t, "a-post", page.Comments[0].PostInfo.Slug)
	assert.Equal(t, p2, page.Comments[1].PostInfo.ID)
	assert.Equal(t, Pagination{CurrentPage: 1, PageSize: 2, TotalPages: 2, TotalComments: 3, HasNext: true}, page.Pagination)

	page, err = f.m.ListByUser(ctx, "u1", Page{Number: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{x.ID}, ids(page.Comments))

	page, err = f.m.ListByUser(ctx, "nobody", Page{})
	require.NoError(t, err)
	assert.Empty(t, page.Comments)
}
