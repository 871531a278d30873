package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/httpserver"
	"github.com/example/blog-platform/services/blog/internal/posts"
)

type PostService interface {
	Create(ctx context.Context, in posts.CreateInput) (posts.Post, error)
	Get(ctx context.Context, id string, countView bool) (posts.Post, error)
	List(ctx context.Context, f posts.ListFilter, page, limit int) ([]posts.Post, posts.Pagination, error)
	ListByAuthor(ctx context.Context, authorID string, page, limit int) ([]posts.Post, posts.Pagination, error)
	Update(ctx context.Context, id string, in posts.UpdateInput, actor posts.Actor) (posts.Post, error)
	Delete(ctx context.Context, id string, actor posts.Actor) error
	ToggleLike(ctx context.Context, id, userID string) (posts.LikeResult, error)
	Categories(ctx context.Context) ([]string, error)
	Tags(ctx context.Context) ([]string, error)
}

// tagList accepts either a comma separated string or a JSON array.
type tagList []string

func (t *tagList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = nil
		for _, tag := range strings.Split(s, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				*t = append(*t, tag)
			}
		}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	*t = arr
	return nil
}

type createPostRequest struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Excerpt    string  `json:"excerpt"`
	Tags       tagList `json:"tags"`
	Category   string  `json:"category"`
	CoverImage string  `json:"coverImage"`
	Status     string  `json:"status"`
}

// ListPosts handles GET /api/posts
func ListPosts(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))

		list, pagination, err := ps.List(r.Context(), posts.ListFilter{
			Category: strings.TrimSpace(q.Get("category")),
			Tag:      strings.TrimSpace(q.Get("tag")),
			Author:   strings.TrimSpace(q.Get("author")),
			Search:   strings.TrimSpace(q.Get("search")),
			Sort:     posts.Sort(strings.ToLower(strings.TrimSpace(q.Get("sort")))),
		}, page, limit)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.Page(w, list, pagination)
	}
}

// GetPost handles GET /api/posts/{post_id}. Every read counts as a view.
func GetPost(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := ps.Get(r.Context(), strings.TrimSpace(chi.URLParam(r, "post_id")), true)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "", p)
	}
}

// CreatePost handles POST /api/posts
func CreatePost(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}

		var req createPostRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		p, err := ps.Create(r.Context(), posts.CreateInput{
			Title:      req.Title,
			Content:    req.Content,
			Excerpt:    req.Excerpt,
			Tags:       req.Tags,
			Category:   req.Category,
			CoverImage: req.CoverImage,
			Status:     posts.Status(strings.ToLower(strings.TrimSpace(req.Status))),
			Author:     userID,
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusCreated, "Post created successfully", p)
	}
}

type updatePostRequest struct {
	Title      *string  `json:"title"`
	Content    *string  `json:"content"`
	Excerpt    *string  `json:"excerpt"`
	Tags       *tagList `json:"tags"`
	Category   *string  `json:"category"`
	CoverImage *string  `json:"coverImage"`
	Status     *string  `json:"status"`
}

func (req updatePostRequest) input() posts.UpdateInput {
	in := posts.UpdateInput{
		Title:      req.Title,
		Content:    req.Content,
		Excerpt:    req.Excerpt,
		Category:   req.Category,
		CoverImage: req.CoverImage,
	}
	if req.Tags != nil {
		tags := []string(*req.Tags)
		in.Tags = &tags
	}
	if req.Status != nil {
		st := posts.Status(strings.ToLower(strings.TrimSpace(*req.Status)))
		in.Status = &st
	}
	return in
}

// UpdatePost handles PUT /api/posts/{post_id}
func UpdatePost(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}

		var req updatePostRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		p, err := ps.Update(r.Context(), strings.TrimSpace(chi.URLParam(r, "post_id")), req.input(), actorFrom(r, userID))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "Post updated successfully", p)
	}
}

// DeletePost handles DELETE /api/posts/{post_id}. The post's comments go with it.
func DeletePost(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		if err := ps.Delete(r.Context(), strings.TrimSpace(chi.URLParam(r, "post_id")), actorFrom(r, userID)); err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "Post deleted successfully", nil)
	}
}

// GetUserPosts handles GET /api/posts/user/{user_id}
func GetUserPosts(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))

		list, pagination, err := ps.ListByAuthor(r.Context(), strings.TrimSpace(chi.URLParam(r, "user_id")), page, limit)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.Page(w, list, pagination)
	}
}

// LikePost handles POST /api/posts/{post_id}/like
func LikePost(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}
		res, err := ps.ToggleLike(r.Context(), strings.TrimSpace(chi.URLParam(r, "post_id")), userID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "", res)
	}
}

// GetCategories handles GET /api/posts/categories
func GetCategories(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := ps.Categories(r.Context())
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "", list)
	}
}

// GetTags handles GET /api/posts/tags
func GetTags(ps PostService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := ps.Tags(r.Context())
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "", list)
	}
}
