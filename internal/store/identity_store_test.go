package store

import (
	"context"
	"path/filepath"
	"testing"

	"chatcore/internal/types"
)

func TestFileIdentityStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	s := NewFileIdentityStore(path)
	ctx := context.Background()

	id, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load (missing file): %v", err)
	}
	if id.UserID != "" || id.SessionID != "" {
		t.Fatalf("expected empty identity, got %+v", id)
	}

	want := types.Identity{UserID: "guest_abc123", SessionID: "sess-1"}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestFileIdentityStoreOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	s := NewFileIdentityStore(path)
	ctx := context.Background()

	if err := s.Save(ctx, types.Identity{UserID: "guest_1", SessionID: "a"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, types.Identity{UserID: "guest_1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionID != "" {
		t.Fatalf("session id survived overwrite: %+v", got)
	}
}
