package domain

import "time"

// RoomStatus is a point-in-time snapshot of a room. It is only mutated by
// re-fetching from the room service; a media-layer disconnect never implies
// the room has ended.
type RoomStatus struct {
	RoomID  string
	Title   string
	HostID  string
	IsLive  bool
	EndedAt *time.Time
}

// Credential is an opaque, short-lived join grant. One credential is valid
// for exactly one connection attempt and is never persisted.
type Credential string
