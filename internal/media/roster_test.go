package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterJoinLeave(t *testing.T) {
	r := NewRoster()
	r.Apply(ParticipantJoined{Participant: Participant{ID: "a"}})
	r.Apply(ParticipantJoined{Participant: Participant{ID: "b"}})
	assert.Equal(t, 2, r.Count())

	r.Apply(ParticipantLeft{ID: "a"})
	parts := r.Participants()
	require.Len(t, parts, 1)
	assert.Equal(t, "b", parts[0].ID)
}

func TestRosterPreservesJoinOrder(t *testing.T) {
	r := NewRoster()
	r.Apply(ParticipantJoined{Participant: Participant{ID: "b"}})
	r.Apply(ParticipantJoined{Participant: Participant{ID: "a"}})
	r.Apply(ParticipantJoined{Participant: Participant{ID: "c"}})

	parts := r.Participants()
	require.Len(t, parts, 3)
	assert.Equal(t, "b", parts[0].ID)
	assert.Equal(t, "a", parts[1].ID)
	assert.Equal(t, "c", parts[2].ID)
}

func TestRosterTrackPublishUnpublish(t *testing.T) {
	r := NewRoster()
	r.Apply(ParticipantJoined{Participant: Participant{ID: "host"}})
	r.Apply(TrackPublished{Track: Track{ID: "v1", ParticipantID: "host", Kind: TrackKindVideo}})
	// Re-publish of the same track is a no-op.
	r.Apply(TrackPublished{Track: Track{ID: "v1", ParticipantID: "host", Kind: TrackKindVideo}})

	parts := r.Participants()
	require.Len(t, parts, 1)
	require.Len(t, parts[0].Tracks, 1)

	r.Apply(TrackUnpublished{ParticipantID: "host", TrackID: "v1"})
	parts = r.Participants()
	assert.Empty(t, parts[0].Tracks)
}

func TestRosterTrackBeforeJoinSynthesizesParticipant(t *testing.T) {
	r := NewRoster()
	r.Apply(TrackPublished{Track: Track{ID: "v1", ParticipantID: "host", Kind: TrackKindVideo}})

	parts := r.Participants()
	require.Len(t, parts, 1)
	assert.Equal(t, "host", parts[0].ID)
	require.Len(t, parts[0].Tracks, 1)
}

func TestRosterRejoinKeepsOrder(t *testing.T) {
	r := NewRoster()
	r.Apply(ParticipantJoined{Participant: Participant{ID: "a", Name: "first"}})
	r.Apply(ParticipantJoined{Participant: Participant{ID: "b"}})
	r.Apply(ParticipantJoined{Participant: Participant{ID: "a", Name: "renamed"}})

	parts := r.Participants()
	require.Len(t, parts, 2)
	assert.Equal(t, "a", parts[0].ID)
	assert.Equal(t, "renamed", parts[0].Name)
}

func TestRosterParticipantsReturnsCopies(t *testing.T) {
	r := NewRoster()
	r.Apply(ParticipantJoined{Participant: Participant{ID: "host"}})
	r.Apply(TrackPublished{Track: Track{ID: "v1", ParticipantID: "host", Kind: TrackKindVideo}})

	parts := r.Participants()
	parts[0].Tracks[0].ID = "mutated"
	assert.Equal(t, "v1", r.Participants()[0].Tracks[0].ID)
}

func TestRosterReset(t *testing.T) {
	r := NewRoster()
	r.Apply(ParticipantJoined{Participant: Participant{ID: "host"}})
	r.Reset()
	assert.Zero(t, r.Count())
	assert.Empty(t, r.Participants())
}
