package media

// Roster is the live participant set for one session, folded from room
// events. Join order is preserved so track selection is deterministic.
// Not safe for concurrent use; the lifecycle manager serializes access.
type Roster struct {
	order []string
	byID  map[string]*Participant
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{byID: make(map[string]*Participant)}
}

// Apply folds a room event into the roster. Connection events are ignored.
func (r *Roster) Apply(ev Event) {
	switch e := ev.(type) {
	case ParticipantJoined:
		if _, ok := r.byID[e.Participant.ID]; ok {
			// Re-announce after reconnect: replace in place, keep order.
			p := e.Participant
			r.byID[p.ID] = &p
			return
		}
		p := e.Participant
		r.byID[p.ID] = &p
		r.order = append(r.order, p.ID)

	case ParticipantLeft:
		if _, ok := r.byID[e.ID]; !ok {
			return
		}
		delete(r.byID, e.ID)
		for i, id := range r.order {
			if id == e.ID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}

	case TrackPublished:
		p, ok := r.byID[e.Track.ParticipantID]
		if !ok {
			// Track announcements can outrun the roster event; synthesize
			// the participant so the feed is not lost.
			p = &Participant{ID: e.Track.ParticipantID}
			r.byID[p.ID] = p
			r.order = append(r.order, p.ID)
		}
		for _, t := range p.Tracks {
			if t.ID == e.Track.ID {
				return
			}
		}
		p.Tracks = append(p.Tracks, e.Track)

	case TrackUnpublished:
		p, ok := r.byID[e.ParticipantID]
		if !ok {
			return
		}
		for i, t := range p.Tracks {
			if t.ID == e.TrackID {
				p.Tracks = append(p.Tracks[:i], p.Tracks[i+1:]...)
				break
			}
		}
	}
}

// Participants returns the roster in join order.
func (r *Roster) Participants() []Participant {
	out := make([]Participant, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.byID[id]; ok {
			cp := *p
			cp.Tracks = append([]Track(nil), p.Tracks...)
			out = append(out, cp)
		}
	}
	return out
}

// Count returns the number of connected participants.
func (r *Roster) Count() int {
	return len(r.byID)
}

// Reset drops all participants, e.g. after a terminal disconnect.
func (r *Roster) Reset() {
	r.order = nil
	r.byID = make(map[string]*Participant)
}
