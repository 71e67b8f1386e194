// Package store tracks which viewers are watching which rooms for the
// simulator's viewer-count accounting.
package store

import "context"

// ViewerStore counts distinct viewers per room.
// Implementations:
//   - MemoryStore: single-instance simulator (in-memory map)
//   - RedisStore: shared counts across simulator instances
type ViewerStore interface {
	// Add marks a viewer as watching a room.
	Add(ctx context.Context, roomID, viewerID string) error
	// Remove withdraws a viewer from a room.
	Remove(ctx context.Context, roomID, viewerID string) error
	// Count returns the number of distinct viewers watching a room.
	Count(ctx context.Context, roomID string) (int, error)
	// Close releases backend resources.
	Close() error
}
