package posts

import (
	"html"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

const Collection = "posts"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

const (
	DefaultCategory = "General"
	maxTitle        = 200
	maxExcerpt      = 300
	maxCategory     = 50
	excerptLen      = 150
	wordsPerMinute  = 200
)

// Post is a blog post document.
type Post struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Excerpt       string    `json:"excerpt"`
	Slug          string    `json:"slug"`
	Author        string    `json:"author"`
	Tags          []string  `json:"tags"`
	Category      string    `json:"category"`
	CoverImage    string    `json:"coverImage"`
	Status        Status    `json:"status"`
	Views         int       `json:"views"`
	CommentsCount int       `json:"commentsCount"`
	Likes         []Like    `json:"likes"`
	LikeCount     int       `json:"likeCount"`
	ReadingTime   int       `json:"readingTime"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Like is one reader's like. A post holds at most one per user.
type Like struct {
	User      string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// LikeResult is the like state of a post after a toggle.
type LikeResult struct {
	Likes     []Like `json:"likes"`
	LikeCount int    `json:"likeCount"`
	Liked     bool   `json:"liked"`
}

// fill sets the fields derived on read.
func (p *Post) fill() {
	if p.Likes == nil {
		p.Likes = []Like{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	p.LikeCount = len(p.Likes)
}

// Summary is the slice of a post embedded in other listings.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

func (p Post) Summary() Summary {
	return Summary{ID: p.ID, Title: p.Title, Slug: p.Slug}
}

var (
	nonSlugChars = regexp.MustCompile(`[^a-zA-Z0-9 ]`)
	spaces       = regexp.MustCompile(`\s+`)
	dashes       = regexp.MustCompile(`-+`)
	textPolicy   = bluemonday.StrictPolicy()
)

// Slugify turns a title into a URL path segment.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(strings.TrimSpace(s), "-")
	s = dashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// PlainText strips markup from post content. Entities are decoded so the
// result is raw text, not HTML.
func PlainText(content string) string {
	return html.UnescapeString(textPolicy.Sanitize(content))
}

// Excerpt is the first 150 characters of the plain text, with an ellipsis
// when truncated.
func Excerpt(content string) string {
	text := []rune(strings.TrimSpace(PlainText(content)))
	if len(text) <= excerptLen {
		return string(text)
	}
	return string(text[:excerptLen]) + "..."
}

// ReadingTime estimates minutes at 200 words per minute, never less than one.
func ReadingTime(content string) int {
	words := len(strings.Fields(PlainText(content)))
	return max(1, int(math.Ceil(float64(words)/wordsPerMinute)))
}

// NormalizeTags lowercases and trims tags, dropping empties.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
