package media

// RenderState is what the UI should show for the video area.
type RenderState int

const (
	// RenderWaitingForHost: no remote participant has joined.
	RenderWaitingForHost RenderState = iota
	// RenderWaitingForCamera: the host is connected but publishing nothing.
	RenderWaitingForCamera
	// RenderHostTrack: a remote video track is available to render.
	RenderHostTrack
)

// String returns the string representation of RenderState.
func (s RenderState) String() string {
	switch s {
	case RenderWaitingForHost:
		return "waiting_for_host"
	case RenderWaitingForCamera:
		return "waiting_for_camera"
	case RenderHostTrack:
		return "host_track"
	default:
		return "unknown"
	}
}

// RenderTarget is the selected feed for the video area.
type RenderTarget struct {
	State RenderState
	Track Track // valid only when State == RenderHostTrack
}

// SelectRenderTarget picks the host feed from the current participant set.
// Pure function of its input: the first remote participant with a published
// camera track wins; a remote with no track means the host is connected but
// the camera is not up yet; otherwise nobody is hosting. No hysteresis — a
// track that disappears and reappears re-derives the same answer.
func SelectRenderTarget(participants []Participant) RenderTarget {
	remote := false
	for _, p := range participants {
		if p.Local {
			continue
		}
		remote = true
		for _, t := range p.Tracks {
			if t.Kind != TrackKindVideo {
				continue
			}
			if t.Source != "" && t.Source != SourceCamera {
				continue
			}
			return RenderTarget{State: RenderHostTrack, Track: t}
		}
	}
	if remote {
		return RenderTarget{State: RenderWaitingForCamera}
	}
	return RenderTarget{State: RenderWaitingForHost}
}
