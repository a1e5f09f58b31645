// Package native adapts a callback-driven media engine to core.MediaTransport.
// The engine reports roster diffs (user joined / user offline) and publishes
// local media implicitly on join.
package native

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// Speaker is one entry of a volume indication. UID 0 is the local user.
type Speaker struct {
	UID    domain.ParticipantID
	Volume int
}

// EventHandler holds the engine callbacks. Nil fields are skipped.
type EventHandler struct {
	OnJoinChannelSuccess    func(channel string, uid domain.ParticipantID)
	OnUserJoined            func(uid domain.ParticipantID)
	OnUserOffline           func(uid domain.ParticipantID)
	OnLeaveChannel          func()
	OnAudioVolumeIndication func(speakers []Speaker)
	OnError                 func(err error)
}

// Engine is the surface of a native real-time engine.
type Engine interface {
	RegisterEventHandler(h *EventHandler)
	UnregisterEventHandler(h *EventHandler)

	// RequestPermissions asks for camera and microphone access.
	RequestPermissions(ctx context.Context) error
	EnableAudio() error
	EnableVideo() error
	EnableAudioVolumeIndication(interval time.Duration) error
	StartPreview() error
	StopPreview() error

	// JoinChannel starts joining; success arrives via OnJoinChannelSuccess.
	JoinChannel(ctx context.Context, token, channel string, uid domain.ParticipantID) error
	LeaveChannel() error

	MuteLocalAudioStream(muted bool) error
	MuteLocalVideoStream(muted bool) error

	Release() error
}
