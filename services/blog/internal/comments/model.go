// Package comments manages threaded comments on posts: reply linkage in both
// directions, the post comment counter, like toggles, and cascading deletion
// of whole subtrees. The store has no multi-document transactions, so every
// multi-step mutation here is written as an ordered sequence of single-document
// atomic writes with compensation or resumable retry.
package comments

import (
	"time"

	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/users"
)

const Collection = "comments"

type Like struct {
	User      string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// Comment is the stored document. Replies holds the ids of direct children
// and mirrors the Parent field of those children.
type Comment struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	Author    string     `json:"author"`
	Post      string     `json:"post"`
	Parent    *string    `json:"parentComment"`
	Replies   []string   `json:"replies"`
	Likes     []Like     `json:"likes"`
	IsEdited  bool       `json:"isEdited"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// View is a comment prepared for display.
type View struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Author     users.Profile  `json:"author"`
	Post       string         `json:"post"`
	PostInfo   *posts.Summary `json:"postInfo,omitempty"`
	Parent     *string        `json:"parentComment"`
	Replies    []string       `json:"replies"`
	Likes      []Like         `json:"likes"`
	LikeCount  int            `json:"likeCount"`
	ReplyCount int            `json:"replyCount"`
	IsEdited   bool           `json:"isEdited"`
	EditedAt   *time.Time     `json:"editedAt,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// ThreadNode is a top-level comment with its direct replies expanded. The
// Replies field shadows the id list of the embedded View.
type ThreadNode struct {
	View
	Replies []View `json:"replies"`
}

func newView(c Comment, author users.Profile) View {
	replies := c.Replies
	if replies == nil {
		replies = []string{}
	}
	likes := c.Likes
	if likes == nil {
		likes = []Like{}
	}
	if author.ID == "" {
		author.ID = c.Author
	}
	return View{
		ID:         c.ID,
		Content:    c.Content,
		Author:     author,
		Post:       c.Post,
		Parent:     c.Parent,
		Replies:    replies,
		Likes:      likes,
		LikeCount:  len(likes),
		ReplyCount: len(replies),
		IsEdited:   c.IsEdited,
		EditedAt:   c.EditedAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

type CreateInput struct {
	Content  string
	PostID   string
	ParentID string
	AuthorID string
}

// LikeResult is the like set after a toggle.
type LikeResult struct {
	Likes     []Like `json:"likes"`
	LikeCount int    `json:"likeCount"`
	Liked     bool   `json:"liked"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a 1-based page. Zero values take the defaults.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	p.Size = min(p.Size, MaxPageSize)
	return p
}

func (p Page) offset() int { return (p.Number - 1) * p.Size }

type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	PageSize      int  `json:"pageSize"`
	TotalPages    int  `json:"totalPages"`
	TotalComments int  `json:"totalComments"`
	HasNext       bool `json:"hasNext"`
	HasPrev       bool `json:"hasPrev"`
}

func newPagination(p Page, total int) Pagination {
	return Pagination{
		CurrentPage:   p.Number,
		PageSize:      p.Size,
		TotalPages:    (total + p.Size - 1) / p.Size,
		TotalComments: total,
		HasNext:       p.Number*p.Size < total,
		HasPrev:       p.Number > 1,
	}
}

type ThreadPage struct {
	Comments   []ThreadNode `json:"comments"`
	Pagination Pagination   `json:"pagination"`
}

type UserPage struct {
	Comments   []View     `json:"comments"`
	Pagination Pagination `json:"pagination"`
}
