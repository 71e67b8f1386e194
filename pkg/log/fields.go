package log

const (
	// Session
	FieldRoomID   = "room_id"
	FieldViewerID = "viewer_id"
	FieldState    = "state"
	FieldReason   = "reason"
	FieldAttempt  = "attempt"

	// Chat
	FieldSenderID  = "sender_id"
	FieldMessageID = "message_id"

	// Media
	FieldParticipantID = "participant_id"
	FieldTrackID       = "track_id"

	// Component
	FieldComponent = "component"
)
