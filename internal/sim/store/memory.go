package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory ViewerStore for single-instance runs.
type MemoryStore struct {
	rooms map[string]map[string]struct{}
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory viewer store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]map[string]struct{}),
	}
}

// Add implements ViewerStore.
func (s *MemoryStore) Add(ctx context.Context, roomID, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	viewers, ok := s.rooms[roomID]
	if !ok {
		viewers = make(map[string]struct{})
		s.rooms[roomID] = viewers
	}
	viewers[viewerID] = struct{}{}
	return nil
}

// Remove implements ViewerStore.
func (s *MemoryStore) Remove(ctx context.Context, roomID, viewerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if viewers, ok := s.rooms[roomID]; ok {
		delete(viewers, viewerID)
		if len(viewers) == 0 {
			delete(s.rooms, roomID)
		}
	}
	return nil
}

// Count implements ViewerStore.
func (s *MemoryStore) Count(ctx context.Context, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID]), nil
}

// Close implements ViewerStore.
func (s *MemoryStore) Close() error { return nil }

var _ ViewerStore = (*MemoryStore)(nil)
