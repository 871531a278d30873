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
	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/httpserver"
	"github.com/example/blog-platform/services/blog/internal/comments"
)

// CommentService is the part of comments.Manager the HTTP layer uses.
type CommentService interface {
	Create(ctx context.Context, in comments.CreateInput) (comments.View, error)
	Update(ctx context.Context, id, content string, actor comments.Actor) (comments.View, error)
	Delete(ctx context.Context, id string, actor comments.Actor) error
	ToggleLike(ctx context.Context, id, userID string) (comments.LikeResult, error)
	ListThread(ctx context.Context, postID string, page comments.Page) (comments.ThreadPage, error)
	ListByUser(ctx context.Context, userID string, page comments.Page) (comments.UserPage, error)
}

type createCommentRequest struct {
	Content         string `json:"content"`
	PostID          string `json:"postId"`
	ParentCommentID string `json:"parentCommentId,omitempty"`
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

const maxBody = 1 << 20

func actorFrom(r *http.Request, userID string) comments.Actor {
	return comments.Actor{ID: userID, Admin: auth.IsAdminContext(r.Context())}
}

// pageFrom reads ?page and ?limit. Bad values fall back to the defaults.
func pageFrom(r *http.Request) comments.Page {
	q := r.URL.Query()
	n, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("limit"))
	return comments.Page{Number: n, Size: size}
}

// CreateComment handles POST /api/comments
func CreateComment(cs CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}

		var req createCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		v, err := cs.Create(r.Context(), comments.CreateInput{
			Content:  req.Content,
			PostID:   strings.TrimSpace(req.PostID),
			ParentID: strings.TrimSpace(req.ParentCommentID),
			AuthorID: userID,
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusCreated, "Comment created successfully", v)
	}
}

// GetPostComments handles GET /api/comments/post/{post_id}
func GetPostComments(cs CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postID := strings.TrimSpace(chi.URLParam(r, "post_id"))
		if postID == "" {
			api.BadRequest(w, "MISSING_ID", "post_id is required", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		page, err := cs.ListThread(r.Context(), postID, pageFrom(r))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.Page(w, page.Comments, page.Pagination)
	}
}

// GetUserComments handles GET /api/comments/user/{user_id}
func GetUserComments(cs CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
		if userID == "" {
			api.BadRequest(w, "MISSING_ID", "user_id is required", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		page, err := cs.ListByUser(r.Context(), userID, pageFrom(r))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.Page(w, page.Comments, page.Pagination)
	}
}

// UpdateComment handles PUT /api/comments/{id}
func UpdateComment(cs CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}

		var req updateCommentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", httpserver.RequestIDFromContext(r.Context()), nil)
			return
		}

		v, err := cs.Update(r.Context(), chi.URLParam(r, "id"), req.Content, actorFrom(r, userID))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "Comment updated successfully", v)
	}
}

// DeleteComment handles DELETE /api/comments/{id}
func DeleteComment(cs CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}

		if err := cs.Delete(r.Context(), chi.URLParam(r, "id"), actorFrom(r, userID)); err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "Comment deleted successfully", nil)
	}
}

// LikeComment handles POST /api/comments/{id}/like
func LikeComment(cs CommentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUserID(w, r)
		if !ok {
			return
		}

		res, err := cs.ToggleLike(r.Context(), chi.URLParam(r, "id"), userID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		api.OK(w, http.StatusOK, "", res)
	}
}
