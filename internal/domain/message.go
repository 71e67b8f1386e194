package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SenderRole identifies who authored a chat message.
type SenderRole string

const (
	RoleViewer    SenderRole = "viewer"
	RoleHost      SenderRole = "host"
	RoleModerator SenderRole = "moderator"
	RoleSystem    SenderRole = "system"
)

// ParseSenderRole maps a wire value to a SenderRole, defaulting to viewer.
func ParseSenderRole(s string) SenderRole {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(RoleHost):
		return RoleHost
	case string(RoleModerator):
		return RoleModerator
	case string(RoleSystem):
		return RoleSystem
	default:
		return RoleViewer
	}
}

// SystemSenderID is the reserved all-zero sender. Messages from it are
// control signals, not displayable chat lines.
var SystemSenderID = uuid.Nil.String()

// ChatMessage is an immutable chat entry as seen by the UI.
type ChatMessage struct {
	SenderID   string
	SenderName string
	Role       SenderRole
	Body       string
	SentAt     time.Time
	AvatarURL  string
}

// IsSentinel reports whether the message is a system control signal.
func (m ChatMessage) IsSentinel() bool {
	return m.SenderID == SystemSenderID
}

// DedupKey identifies one logical chat event regardless of delivery path
// (history replay vs live push).
type DedupKey struct {
	SenderID string
	Body     string
	SentAtMS int64
}

// Key derives the message's dedup key: sender, trimmed body, and the
// timestamp truncated to milliseconds.
func (m ChatMessage) Key() DedupKey {
	return DedupKey{
		SenderID: m.SenderID,
		Body:     strings.TrimSpace(m.Body),
		SentAtMS: m.SentAt.UnixMilli(),
	}
}
