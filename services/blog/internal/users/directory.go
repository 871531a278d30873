// Package users resolves author profiles for display. Profiles are written by
// the account service; this package only reads them.
package users

import (
	"context"
	"errors"

	"github.com/example/blog-platform/services/blog/internal/docstore"
)

const Collection = "users"

// Profile is the public part of a user record.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type Directory struct {
	store docstore.Store
}

func NewDirectory(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// Lookup resolves each id to a profile. Unknown ids resolve to a profile that
// carries only the id.
func (d *Directory) Lookup(ctx context.Context, ids []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok || id == "" {
			continue
		}
		var p Profile
		err := d.store.Get(ctx, Collection, id, &p)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			p = Profile{ID: id}
		case err != nil:
			return nil, err
		}
		p.ID = id
		out[id] = p
	}
	return out, nil
}

// Put creates or replaces a profile.
func (d *Directory) Put(ctx context.Context, p Profile) error {
	err := d.store.Insert(ctx, Collection, p.ID, p)
	if errors.Is(err, docstore.ErrDuplicate) {
		return d.store.Set(ctx, Collection, p.ID, map[string]any{
			"username": p.Username,
			"avatar":   p.Avatar,
		})
	}
	return err
}
