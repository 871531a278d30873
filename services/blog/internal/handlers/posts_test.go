package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/posts"
)

func (e *env) postBy(t *testing.T, author, title, category string, tags []string, status posts.Status) posts.Post {
	t.Helper()
	p, err := e.posts.Create(context.Background(), posts.CreateInput{
		Title: title, Content: "body", Author: author, Category: category, Tags: tags, Status: status,
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	return p
}

func TestUpdatePost(t *testing.T) {
	e := newEnv(t)
	p := e.postBy(t, "writer", "Old title", "", nil, posts.StatusDraft)

	req := setupReq(http.MethodPut, "/api/posts/"+p.ID,
		`{"title":" New title ","content":"fresh words","tags":"Go, news","status":"Published"}`,
		map[string]string{"post_id": p.ID}, "writer")
	rr := httptest.NewRecorder()
	UpdatePost(e.posts, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decode[posts.Post](t, rr)
	if body.Message != "Post updated successfully" {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if body.Data.Title != "New title" || body.Data.Content != "fresh words" || body.Data.Status != posts.StatusPublished {
		t.Fatalf("fields not updated: %+v", body.Data)
	}
	if len(body.Data.Tags) != 2 || body.Data.Tags[0] != "go" {
		t.Fatalf("unexpected tags %v", body.Data.Tags)
	}
	if body.Data.Slug != p.Slug {
		t.Fatalf("slug changed from %q to %q", p.Slug, body.Data.Slug)
	}
	if body.Data.UpdatedAt.IsZero() {
		t.Fatal("expected updatedAt to be set")
	}
	if body.Data.Category != p.Category || body.Data.Excerpt != p.Excerpt {
		t.Fatal("fields absent from the request must be kept")
	}
}

func TestUpdatePost_Errors(t *testing.T) {
	e := newEnv(t)
	p := e.postBy(t, "writer", "Title", "", nil, posts.StatusPublished)

	cases := []struct {
		name   string
		id     string
		user   string
		body   string
		status int
		msg    string
	}{
		{"stranger", p.ID, "bob", `{"title":"x"}`, http.StatusForbidden, "Not authorized to update this post"},
		{"empty title", p.ID, "writer", `{"title":"   "}`, http.StatusBadRequest, "Title must be between 1 and 200 characters"},
		{"empty content", p.ID, "writer", `{"content":""}`, http.StatusBadRequest, "Content cannot be empty"},
		{"bad status", p.ID, "writer", `{"status":"hidden"}`, http.StatusBadRequest, `invalid status "hidden"`},
		{"missing", "6f1c1d7e-0000-4000-8000-000000000000", "writer", `{"title":"x"}`, http.StatusNotFound, "Post not found"},
		{"bad json", p.ID, "writer", `{`, http.StatusBadRequest, "invalid JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := setupReq(http.MethodPut, "/api/posts/"+tc.id, tc.body, map[string]string{"post_id": tc.id}, tc.user)
			rr := httptest.NewRecorder()
			UpdatePost(e.posts, nil).ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if got := decodeError(t, rr).Message; got != tc.msg {
				t.Fatalf("expected message %q, got %q", tc.msg, got)
			}
		})
	}
}

func TestDeletePost_RemovesItsComments(t *testing.T) {
	e := newEnv(t)
	p := e.postBy(t, "writer", "Doomed", "", nil, posts.StatusPublished)
	other := e.postBy(t, "writer", "Survivor", "", nil, posts.StatusPublished)
	a := e.comment(t, p.ID, "", "alice")
	e.comment(t, p.ID, a.ID, "bob")
	e.comment(t, other.ID, "", "alice")

	req := setupReq(http.MethodDelete, "/api/posts/"+p.ID, "", map[string]string{"post_id": p.ID}, "bob")
	rr := httptest.NewRecorder()
	DeletePost(e.posts, nil).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("stranger: expected 403, got %d", rr.Code)
	}

	req = setupReq(http.MethodDelete, "/api/posts/"+p.ID, "", map[string]string{"post_id": p.ID}, "writer")
	rr = httptest.NewRecorder()
	DeletePost(e.posts, nil).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("author: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decode[any](t, rr); body.Message != "Post deleted successfully" {
		t.Fatalf("unexpected message %q", body.Message)
	}

	if _, err := e.posts.Get(context.Background(), p.ID, false); err != posts.ErrNotFound {
		t.Fatalf("expected post to be gone, got %v", err)
	}
	for _, user := range []string{"alice", "bob"} {
		page, err := e.m.ListByUser(context.Background(), user, comments.Page{})
		if err != nil {
			t.Fatalf("list %s: %v", user, err)
		}
		for _, c := range page.Comments {
			if c.Post == p.ID {
				t.Fatalf("comment %s of the deleted post survived", c.ID)
			}
		}
	}
	kept, _ := e.posts.Get(context.Background(), other.ID, false)
	if kept.CommentsCount != 1 {
		t.Fatalf("other post counter changed: %d", kept.CommentsCount)
	}
}

func TestDeletePost_AdminMayDelete(t *testing.T) {
	e := newEnv(t)
	p := e.postBy(t, "writer", "Spam", "", nil, posts.StatusPublished)

	req := setupReq(http.MethodDelete, "/api/posts/"+p.ID, "", map[string]string{"post_id": p.ID}, "mod")
	req = req.WithContext(auth.WithRole(req.Context(), auth.RoleAdmin))
	rr := httptest.NewRecorder()
	DeletePost(e.posts, nil).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestGetUserPosts(t *testing.T) {
	e := newEnv(t)
	e.postBy(t, "writer", "One", "", nil, posts.StatusPublished)
	e.postBy(t, "writer", "Two", "", nil, posts.StatusPublished)
	e.postBy(t, "writer", "Draft", "", nil, posts.StatusDraft)
	e.postBy(t, "someone", "Else", "", nil, posts.StatusPublished)

	req := setupReq(http.MethodGet, "/api/posts/user/writer?limit=1", "", map[string]string{"user_id": "writer"}, "")
	rr := httptest.NewRecorder()
	GetUserPosts(e.posts, nil).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Data       []posts.Post     `json:"data"`
		Pagination posts.Pagination `json:"pagination"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Title != "Two" {
		t.Fatalf("expected newest post first, got %+v", body.Data)
	}
	if body.Pagination.TotalPosts != 2 || !body.Pagination.HasNext {
		t.Fatalf("unexpected pagination %+v", body.Pagination)
	}
}

func TestLikePost_Toggles(t *testing.T) {
	e := newEnv(t)
	p := e.postBy(t, "writer", "Likeable", "", nil, posts.StatusPublished)

	like := func(user string) posts.LikeResult {
		req := setupReq(http.MethodPost, "/api/posts/"+p.ID+"/like", "", map[string]string{"post_id": p.ID}, user)
		rr := httptest.NewRecorder()
		LikePost(e.posts, nil).ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		return decode[posts.LikeResult](t, rr).Data
	}

	if res := like("alice"); !res.Liked || res.LikeCount != 1 || res.Likes[0].User != "alice" {
		t.Fatalf("unexpected first toggle %+v", res)
	}
	if res := like("bob"); res.LikeCount != 2 {
		t.Fatalf("expected 2 likes, got %+v", res)
	}
	if res := like("alice"); res.Liked || res.LikeCount != 1 {
		t.Fatalf("expected alice's like removed, got %+v", res)
	}

	req := setupReq(http.MethodPost, "/api/posts/x/like", "", map[string]string{"post_id": "x"}, "")
	rr := httptest.NewRecorder()
	LikePost(e.posts, nil).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCategoriesAndTags(t *testing.T) {
	e := newEnv(t)
	e.postBy(t, "writer", "A", "Tech", []string{"go", "db"}, posts.StatusPublished)
	e.postBy(t, "writer", "B", "Life", []string{"go"}, posts.StatusPublished)
	e.postBy(t, "writer", "C", "Secret", []string{"hidden"}, posts.StatusDraft)

	rr := httptest.NewRecorder()
	GetCategories(e.posts, nil).ServeHTTP(rr, setupReq(http.MethodGet, "/api/posts/categories", "", nil, ""))
	if got := decode[[]string](t, rr).Data; len(got) != 2 || got[0] != "Life" || got[1] != "Tech" {
		t.Fatalf("unexpected categories %v", got)
	}

	rr = httptest.NewRecorder()
	GetTags(e.posts, nil).ServeHTTP(rr, setupReq(http.MethodGet, "/api/posts/tags", "", nil, ""))
	if got := decode[[]string](t, rr).Data; len(got) != 2 || got[0] != "db" || got[1] != "go" {
		t.Fatalf("unexpected tags %v", got)
	}
}
