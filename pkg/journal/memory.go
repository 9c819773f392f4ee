package journal

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps journals in memory. It is meant for tests and the
// simulate command.
type MemoryStore struct {
	mu    sync.RWMutex
	pages map[string]*memoryPage
}

type memoryPage struct {
	entries []Entry
	updated time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pages: make(map[string]*memoryPage)}
}

// Save appends entries to the journal of pageID.
func (s *MemoryStore) Save(_ context.Context, pageID string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageID]
	if !ok {
		p = &memoryPage{}
		s.pages[pageID] = p
	}
	p.entries = append(p.entries, entries...)
	p.updated = time.Now()
	return nil
}

// Load returns a copy of the journal of pageID.
func (s *MemoryStore) Load(_ context.Context, pageID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[pageID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Entry(nil), p.entries...), nil
}

// Pages returns the number of stored journals.
func (s *MemoryStore) Pages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Cleanup drops journals not written to within maxAge.
func (s *MemoryStore) Cleanup(_ context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pages {
		if p.updated.Before(cutoff) {
			delete(s.pages, id)
		}
	}
	return nil
}
