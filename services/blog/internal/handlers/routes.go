package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Deps struct {
	Comments CommentService
	Posts    PostService
	Log      *zap.Logger
	// RequireUser authenticates write routes.
	RequireUser func(http.Handler) http.Handler
	// Limit throttles write routes; nil disables it.
	Limit func(http.Handler) http.Handler
}

// Register mounts the /api routes. Reads are public, writes need a user.
func Register(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/posts", ListPosts(d.Posts, log))
		r.Get("/posts/categories", GetCategories(d.Posts, log))
		r.Get("/posts/tags", GetTags(d.Posts, log))
		r.Get("/posts/user/{user_id}", GetUserPosts(d.Posts, log))
		r.Get("/posts/{post_id}", GetPost(d.Posts, log))
		r.Get("/comments/post/{post_id}", GetPostComments(d.Comments, log))
		r.Get("/comments/user/{user_id}", GetUserComments(d.Comments, log))

		r.Group(func(r chi.Router) {
			if d.Limit != nil {
				r.Use(d.Limit)
			}
			r.Use(d.RequireUser)
			r.Post("/posts", CreatePost(d.Posts, log))
			r.Put("/posts/{post_id}", UpdatePost(d.Posts, log))
			r.Delete("/posts/{post_id}", DeletePost(d.Posts, log))
			r.Post("/posts/{post_id}/like", LikePost(d.Posts, log))
			r.Post("/comments", CreateComment(d.Comments, log))
			r.Put("/comments/{id}", UpdateComment(d.Comments, log))
			r.Delete("/comments/{id}", DeleteComment(d.Comments, log))
			r.Post("/comments/{id}/like", LikeComment(d.Comments, log))
		})
	})
}
