// Package domain contains call entities and their validation rules, no transport logic.
package domain

import (
	"math/rand/v2"
	"strconv"
	"sync"
)

// ParticipantID identifies one party in a call. Zero is reserved: some
// transports use it to mean "the local participant".
type ParticipantID uint32

const (
	LocalSentinel ParticipantID = 0
	MaxLocalID                  = 100000
)

const LocalSurfaceID = "local-player"

// RemoteSurfaceID is the render target a presentation layer binds for id.
func RemoteSurfaceID(id ParticipantID) string {
	return "remote-" + strconv.FormatUint(uint64(id), 10)
}

// Surface is the render-target binding of one participant. ID is stable for
// the participant; Epoch grows on every attach so a fresh attachment can be
// told apart from a stale one.
type Surface struct {
	ID       string `json:"id"`
	Attached bool   `json:"attached"`
	Epoch    uint64 `json:"epoch"`
}

// Participant is one roster entry. Mic and video flags are tracked for the
// local participant only.
type Participant struct {
	ID           ParticipantID `json:"id"`
	IsLocal      bool          `json:"isLocal"`
	DisplayName  string        `json:"displayName"`
	MicEnabled   bool          `json:"micEnabled"`
	VideoEnabled bool          `json:"videoEnabled"`
	VolumeLevel  int           `json:"volumeLevel"`
	Speaking     bool          `json:"speaking"`
	Surface      Surface       `json:"surface"`
}

func NewLocalParticipant(id ParticipantID, name string) Participant {
	return Participant{
		ID:           id,
		IsLocal:      true,
		DisplayName:  name,
		MicEnabled:   true,
		VideoEnabled: true,
		Surface:      Surface{ID: LocalSurfaceID},
	}
}

func NewRemoteParticipant(id ParticipantID) Participant {
	return Participant{
		ID:          id,
		DisplayName: GuestName(id),
		Surface:     Surface{ID: RemoteSurfaceID(id)},
	}
}

// LocalIDs hands out local participant ids in [1, MaxLocalID], never the
// same one twice within the process.
type LocalIDs struct {
	mu   sync.Mutex
	used map[ParticipantID]struct{}
	intn func(int) int
}

func NewLocalIDs() *LocalIDs {
	return &LocalIDs{used: make(map[ParticipantID]struct{}), intn: rand.IntN}
}

func (a *LocalIDs) Next() ParticipantID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.used) >= MaxLocalID {
		a.used = make(map[ParticipantID]struct{})
	}
	for {
		id := ParticipantID(a.intn(MaxLocalID) + 1)
		if _, taken := a.used[id]; taken {
			continue
		}
		a.used[id] = struct{}{}
		return id
	}
}
