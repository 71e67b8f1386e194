package chat

import (
	"time"

	"github.com/Dacoband/stream-cart-live-session/internal/domain"
)

// WebSocket frame types from client.
const (
	FrameJoinRoom     = "join_room"
	FrameLeaveRoom    = "leave_room"
	FrameChatMessage  = "chat_message"
	FrameStartViewing = "start_viewing"
	FrameStopViewing  = "stop_viewing"
)

// WebSocket frame types to client.
const (
	FrameError = "error"
)

// Frame is the JSON envelope exchanged over the messaging channel. Outbound
// chat frames carry only the body; the server stamps identity and timestamp
// before fanning out, so the sender's own message comes back through the
// push channel like everyone else's.
type Frame struct {
	Type       string `json:"type"`
	RoomID     string `json:"room_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	SenderRole string `json:"sender_role,omitempty"`
	Body       string `json:"body,omitempty"`
	SentAt     int64  `json:"sent_at,omitempty"` // unix milliseconds
	AvatarURL  string `json:"avatar_url,omitempty"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ToChatMessage converts an inbound chat frame to the internal shape.
func (f Frame) ToChatMessage() domain.ChatMessage {
	sentAt := time.Now()
	if f.SentAt > 0 {
		sentAt = time.UnixMilli(f.SentAt)
	}
	return domain.ChatMessage{
		SenderID:   f.SenderID,
		SenderName: f.SenderName,
		Role:       domain.ParseSenderRole(f.SenderRole),
		Body:       f.Body,
		SentAt:     sentAt,
		AvatarURL:  f.AvatarURL,
	}
}
