package device

import (
	"context"
	"path/filepath"
	"testing"
)

func TestGetOrCreateIsStable(t *testing.T) {
	ctx := context.Background()
	store := &FileStore{Path: filepath.Join(t.TempDir(), "device_id")}

	p := NewProvider(store)
	first, err := p.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("first GetOrCreate: %v", err)
	}
	if first == "" {
		t.Fatal("empty token")
	}

	second, err := p.GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("second GetOrCreate: %v", err)
	}
	if second != first {
		t.Fatalf("token changed within provider: %q vs %q", second, first)
	}

	// A fresh provider over the same store sees the same token.
	again, err := NewProvider(store).GetOrCreate(ctx)
	if err != nil {
		t.Fatalf("fresh provider GetOrCreate: %v", err)
	}
	if again != first {
		t.Fatalf("token not persisted across providers: %q vs %q", again, first)
	}
}

func TestDistinctStoresGetDistinctTokens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	a, err := NewProvider(&FileStore{Path: filepath.Join(dir, "a")}).GetOrCreate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewProvider(&FileStore{Path: filepath.Join(dir, "b")}).GetOrCreate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("two device stores yielded the same token %q", a)
	}
}

func TestPersistFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	store := &FileStore{Path: filepath.Join(t.TempDir(), "device_id")}

	won, err := store.Persist(ctx, Token("first"))
	if err != nil || won != "first" {
		t.Fatalf("first persist: %q, %v", won, err)
	}
	kept, err := store.Persist(ctx, Token("second"))
	if err != nil {
		t.Fatal(err)
	}
	if kept != "first" {
		t.Fatalf("later persist must keep the existing token, got %q", kept)
	}
}
