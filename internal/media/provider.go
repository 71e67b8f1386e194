package media

import (
	"context"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
)

// DisconnectReason is the media transport's stated cause for losing the
// connection.
type DisconnectReason string

const (
	ReasonUnknown         DisconnectReason = "unknown"
	ReasonClientInitiated DisconnectReason = "client_initiated"
	ReasonConnectionLost  DisconnectReason = "connection_lost"
	ReasonStateMismatch   DisconnectReason = "state_mismatch"
	ReasonRoomClosed      DisconnectReason = "room_closed"
	ReasonRoomDeleted     DisconnectReason = "room_deleted"
)

// ReasonClass determines how the lifecycle manager reacts to a disconnect.
type ReasonClass int

const (
	// ClassRetryable: transient failure, the transport will re-establish.
	ClassRetryable ReasonClass = iota
	// ClassFatal: the room itself ended; retrying is pointless.
	ClassFatal
	// ClassManual: the viewer disconnected locally.
	ClassManual
)

// ClassifyReason maps a disconnect reason to its class. Room-closed and
// room-deleted mean the host ended the broadcast, not a network blip.
// State mismatch stays retryable pending a product decision.
func ClassifyReason(r DisconnectReason) ReasonClass {
	switch r {
	case ReasonClientInitiated:
		return ClassManual
	case ReasonRoomClosed, ReasonRoomDeleted:
		return ClassFatal
	default:
		return ClassRetryable
	}
}

// TrackKind distinguishes media track types.
type TrackKind string

const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

// TrackSource distinguishes where a video track originates.
type TrackSource string

const (
	SourceCamera TrackSource = "camera"
	SourceScreen TrackSource = "screen"
)

// Track is a published media track.
type Track struct {
	ID            string
	ParticipantID string
	Kind          TrackKind
	Source        TrackSource
}

// Participant is one connected endpoint in the media room.
type Participant struct {
	ID     string
	Name   string
	Local  bool
	Tracks []Track
}

// Event is a media room event. Events never block their source; the
// lifecycle manager consumes them one at a time.
type Event interface {
	mediaEvent()
}

// Connected signals that the transport established (or re-established) the
// room connection.
type Connected struct{}

// Disconnected signals that the transport lost the room connection.
type Disconnected struct {
	Reason DisconnectReason
}

// ParticipantJoined signals a new endpoint in the room.
type ParticipantJoined struct {
	Participant Participant
}

// ParticipantLeft signals an endpoint leaving the room.
type ParticipantLeft struct {
	ID string
}

// TrackPublished signals a participant publishing a track.
type TrackPublished struct {
	Track Track
}

// TrackUnpublished signals a participant withdrawing a track.
type TrackUnpublished struct {
	ParticipantID string
	TrackID       string
}

func (Connected) mediaEvent()         {}
func (Disconnected) mediaEvent()      {}
func (ParticipantJoined) mediaEvent() {}
func (ParticipantLeft) mediaEvent()   {}
func (TrackPublished) mediaEvent()    {}
func (TrackUnpublished) mediaEvent()  {}

// CredentialFunc supplies a fresh join credential for a connection attempt.
// A credential is never reused across attempts.
type CredentialFunc func(ctx context.Context) (domain.Credential, error)

// Room is the media transport connection for one session. Reconnection
// timing belongs to the transport; consumers only observe the resulting
// Connected/Disconnected events.
type Room interface {
	// Connect opens the room connection using a freshly acquired credential.
	Connect(ctx context.Context) error
	// Events streams room events. Closed after Close.
	Events() <-chan Event
	// Close tears the connection down without emitting further events.
	Close() error
}
