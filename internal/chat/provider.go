package chat

import (
	"context"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
)

// Messaging is the bidirectional push channel to the messaging provider.
// Delivery on Messages is at-least-once and unordered relative to history;
// the Layer filters duplicates.
type Messaging interface {
	// JoinRoom announces the viewer's entry to the room channel.
	JoinRoom(roomID string) error
	// LeaveRoom announces the viewer's exit.
	LeaveRoom(roomID string) error
	// StartViewing marks the viewer as countable for the room.
	StartViewing(roomID string) error
	// StopViewing withdraws the viewer from the count.
	StopViewing(roomID string) error
	// SendChat submits a chat message. Fire-and-forget: the message comes
	// back through Messages and must not be locally echoed.
	SendChat(ctx context.Context, roomID, body string) error
	// Messages streams inbound chat messages. Closed when the channel dies.
	Messages() <-chan domain.ChatMessage
	// Close tears the connection down.
	Close() error
}

// HistorySource loads the message history for a room.
type HistorySource interface {
	LoadHistory(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
}

// StatusResolver re-checks whether a room is still live. Satisfied by
// identity.Resolver.
type StatusResolver interface {
	ResolveRoom(ctx context.Context, roomID string) (*domain.RoomStatus, error)
}
