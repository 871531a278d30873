package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/api"
	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/httpserver"
	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/posts"
)

// writeError maps service errors onto the platform error envelope. Internal
// causes are logged and never shown to the client.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())

	var (
		verr *posts.ValidationError
		ferr *posts.ForbiddenError
	)
	switch {
	case errors.Is(err, comments.ErrValidation):
		api.BadRequest(w, "VALIDATION_FAILED", comments.Message(err), rid, nil)
	case errors.Is(err, comments.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", comments.Message(err), rid)
	case errors.Is(err, comments.ErrForbidden):
		api.Forbidden(w, "FORBIDDEN", comments.Message(err), rid)
	case errors.As(err, &verr):
		api.BadRequest(w, "VALIDATION_FAILED", verr.Msg, rid, nil)
	case errors.As(err, &ferr):
		api.Forbidden(w, "FORBIDDEN", ferr.Msg, rid)
	case errors.Is(err, posts.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "Post not found", rid)
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", rid),
			zap.Error(err),
		)
		api.Internal(w, rid)
	}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if userID == "" {
		api.Unauthorized(w, "UNAUTHORIZED", "authentication required", httpserver.RequestIDFromContext(r.Context()))
		return "", false
	}
	return userID, true
}
