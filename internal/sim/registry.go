package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrRoomNotFound = errors.New("room not found")

// Room is a simulated livestream room.
type Room struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	HostID   string     `json:"host_id"`
	HostName string     `json:"host_name"`
	IsLive   bool       `json:"is_live"`
	EndedAt  *time.Time `json:"ended_at,omitempty"`
}

// Registry is the in-memory room registry.
type Registry struct {
	rooms map[string]*Room
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Create opens a new live room.
func (r *Registry) Create(title, hostName string) *Room {
	room := &Room{
		ID:       uuid.New().String(),
		Title:    title,
		HostID:   uuid.New().String(),
		HostName: hostName,
		IsLive:   true,
	}

	r.mu.Lock()
	r.rooms[room.ID] = room
	r.mu.Unlock()
	return room
}

// Get returns a snapshot of a room.
func (r *Registry) Get(id string) (Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return *room, nil
}

// Close marks a room as ended. Returns the closed snapshot.
func (r *Registry) Close(id string) (Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	if room.IsLive {
		now := time.Now()
		room.IsLive = false
		room.EndedAt = &now
	}
	return *room, nil
}

// List returns all rooms.
func (r *Registry) List() []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, *room)
	}
	return out
}
