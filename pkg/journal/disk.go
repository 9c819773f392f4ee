package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const diskExt = ".ndjson"

// DiskStore appends journals to one file per page under a directory.
type DiskStore struct {
	dir string
	mu  sync.Mutex
}

// NewDiskStore creates a DiskStore, creating dir when needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the journal directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) path(pageID string) (string, error) {
	if pageID == "" || strings.ContainsAny(pageID, `/\`) || pageID == "." || pageID == ".." {
		return "", fmt.Errorf("journal: invalid page id %q", pageID)
	}
	return filepath.Join(s.dir, pageID+diskExt), nil
}

// Save appends entries to the page file.
func (s *DiskStore) Save(ctx context.Context, pageID string, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(pageID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, entries); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads the page file.
func (s *DiskStore) Load(ctx context.Context, pageID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(pageID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Cleanup removes page files not modified within maxAge.
func (s *DiskStore) Cleanup(ctx context.Context, maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, de := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if de.IsDir() || !strings.HasSuffix(de.Name(), diskExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(s.dir, de.Name()))
		}
	}
	return nil
}
