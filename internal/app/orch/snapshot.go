package orch

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

// Snapshot is the read-only view handed to presentation.
type Snapshot struct {
	State        domain.SessionState          `json:"state"`
	Room         domain.RoomID                `json:"roomId,omitempty"`
	LocalID      domain.ParticipantID         `json:"localId,omitempty"`
	DisplayName  string                       `json:"displayName,omitempty"`
	Participants []domain.Participant         `json:"participants"`
	Volumes      map[domain.ParticipantID]int `json:"volumes"`
	Capacity     int                          `json:"capacity"`
	// Placeholders is the number of empty tiles to render.
	Placeholders int    `json:"placeholders"`
	MicEnabled   bool   `json:"micEnabled"`
	VideoEnabled bool   `json:"videoEnabled"`
	LastError    error  `json:"-"`
	Error        string `json:"error,omitempty"`
	Status       string `json:"status"`
}

func (c *Coordinator) buildSnapshot() Snapshot {
	snap := Snapshot{
		State:        domain.StateIdle,
		Participants: []domain.Participant{},
		Volumes:      map[domain.ParticipantID]int{},
		Capacity:     c.opts.Capacity,
	}
	s := c.sess
	if s == nil {
		return snap
	}

	snap.State = s.state
	snap.Room = s.room
	snap.LocalID = s.localID
	snap.DisplayName = s.displayName
	snap.MicEnabled = s.mic
	snap.VideoEnabled = s.video
	snap.LastError = s.lastErr
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}

	snap.Participants = s.roster.Snapshot()
	for i := range snap.Participants {
		p := &snap.Participants[i]
		p.Speaking = s.sampler.Speaking(p.VolumeLevel)
		snap.Volumes[p.ID] = p.VolumeLevel
	}
	if s.state == domain.StateConnecting || s.state == domain.StateJoined {
		snap.Placeholders = max(0, snap.Capacity-len(snap.Participants))
	}
	snap.Status = status(s.state, len(snap.Participants), s.lastErr)
	return snap
}

func status(state domain.SessionState, n int, err error) string {
	if err != nil {
		return err.Error()
	}
	switch state {
	case domain.StateConnecting:
		return "Connecting to room..."
	case domain.StateJoined:
		return fmt.Sprintf("%d participant(s) connected", n)
	case domain.StateLeaving:
		return "Leaving room..."
	case domain.StateLeft:
		return "Left room"
	default:
		return ""
	}
}
