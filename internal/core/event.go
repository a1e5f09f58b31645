package core

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

type EventType int

const (
	EventJoined EventType = iota + 1
	// EventRemoteJoined is the roster-diff signal of callback engines.
	EventRemoteJoined
	EventRemotePublished
	EventRemoteUnpublished
	EventRemoteLeft
	EventVolume
	EventLeft
	EventFault
)

var eventNames = map[EventType]string{
	EventJoined:            "joined",
	EventRemoteJoined:      "remote-joined",
	EventRemotePublished:   "remote-track-published",
	EventRemoteUnpublished: "remote-track-unpublished",
	EventRemoteLeft:        "remote-left",
	EventVolume:            "volume-samples",
	EventLeft:              "left",
	EventFault:             "fault",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// VolumeSample is one transport-reported audio level. ID 0 means the local
// participant on transports that use the sentinel.
type VolumeSample struct {
	ID    domain.ParticipantID `json:"id"`
	Level int                  `json:"level"`
}

// Event is a normalized transport event. Only the fields relevant to Type
// are set.
type Event struct {
	Type    EventType
	Remote  domain.ParticipantID
	Kind    TrackKind
	Volumes []VolumeSample
	Err     error
}
