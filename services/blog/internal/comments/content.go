package comments

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxContentLength = 1000

// cleanContent trims surrounding whitespace and checks the 1..1000 character
// bound. Comments are plain text and stored as written; escaping is left to
// whoever renders them.
func cleanContent(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(s)
	return s, n >= 1 && n <= MaxContentLength
}

const contentMsg = "Comment must be between 1 and 1000 characters"

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
