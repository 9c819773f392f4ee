package journal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskStoreAppends(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "journals")
	s, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore() error: %v", err)
	}

	first := []Entry{{PageID: "p1", Seq: 1, Kind: KindQueued, Time: fixedTime}}
	second := []Entry{{PageID: "p1", Seq: 1, Kind: KindReplayed, Action: "vg.js1", Time: fixedTime}}
	if err := s.Save(ctx, "p1", first); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Save(ctx, "p1", second); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Load()) = %d, want 2", len(got))
	}
	if got[1].Kind != KindReplayed || got[1].Action != "vg.js1" || !got[1].Time.Equal(fixedTime) {
		t.Errorf("second entry = %+v", got[1])
	}
	if _, err := os.Stat(filepath.Join(dir, "p1.ndjson")); err != nil {
		t.Errorf("journal file missing: %v", err)
	}
}

func TestDiskStoreErrors(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore() error: %v", err)
	}
	if _, err := s.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		if err := s.Save(ctx, id, []Entry{{}}); err == nil {
			t.Errorf("Save(%q) error = nil, want error", id)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Save(cancelled, "p1", []Entry{{}}); !errors.Is(err, context.Canceled) {
		t.Errorf("Save(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestDiskStoreCleanup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewDiskStore(dir)
	s.Save(ctx, "old", []Entry{{Kind: KindQueued}})
	s.Save(ctx, "new", []Entry{{Kind: KindQueued}})

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "old.ndjson"), past, past); err != nil {
		t.Fatalf("Chtimes() error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}
	os.Chtimes(filepath.Join(dir, "notes.txt"), past, past)

	if err := s.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if _, err := s.Load(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old journal survived cleanup: %v", err)
	}
	if _, err := s.Load(ctx, "new"); err != nil {
		t.Errorf("new journal removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}
