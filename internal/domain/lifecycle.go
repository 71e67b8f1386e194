package domain

// LifecycleState is the coordinator's connection state.
type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateLoading
	StateConnecting
	StateLive
	StateReconnecting
	StateTerminated
)

// String returns the string representation of LifecycleState.
func (s LifecycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TerminationReason explains why a session reached StateTerminated.
type TerminationReason string

const (
	ReasonNone               TerminationReason = ""
	ReasonLoadError          TerminationReason = "load_error"
	ReasonRoomEnded          TerminationReason = "room_ended"
	ReasonUserLeft           TerminationReason = "user_left"
	ReasonMaxRetriesExceeded TerminationReason = "max_retries_exceeded"
	ReasonSystemSignal       TerminationReason = "system_signal"
)
