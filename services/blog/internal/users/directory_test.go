package users

import (
	"context"
	"testing"

	"github.com/example/blog-platform/services/blog/internal/docstore"
)

func TestLookup_ResolvesKnownAndUnknown(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(docstore.NewMemoryStore())
	if err := d.Put(ctx, Profile{ID: "u1", Username: "ada", Avatar: "a.png"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := d.Lookup(ctx, []string{"u1", "u2", "u1", ""})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(got))
	}
	if got["u1"].Username != "ada" || got["u1"].Avatar != "a.png" {
		t.Fatalf("unexpected profile: %+v", got["u1"])
	}
	if got["u2"] != (Profile{ID: "u2"}) {
		t.Fatalf("unknown user should resolve to id only, got %+v", got["u2"])
	}
}

func TestPut_ReplacesExisting(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(docstore.NewMemoryStore())
	_ = d.Put(ctx, Profile{ID: "u1", Username: "old"})
	if err := d.Put(ctx, Profile{ID: "u1", Username: "new"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _ := d.Lookup(ctx, []string{"u1"})
	if got["u1"].Username != "new" {
		t.Fatalf("expected replaced username, got %q", got["u1"].Username)
	}
}
