// Package browser adapts a publish/unpublish web engine client to
// core.MediaTransport. Remote participants arrive through user-published
// notifications and must be subscribed explicitly.
package browser

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

// Client event names.
const (
	EventUserPublished   = "user-published"
	EventUserUnpublished = "user-unpublished"
	EventUserLeft        = "user-left"
	EventVolumeIndicator = "volume-indicator"
	EventConnectionState = "connection-state-change"
)

// Connection states reported with EventConnectionState.
const (
	StateConnecting    = "CONNECTING"
	StateConnected     = "CONNECTED"
	StateReconnecting  = "RECONNECTING"
	StateDisconnecting = "DISCONNECTING"
	StateDisconnected  = "DISCONNECTED"
)

// TrackID names a local track owned by the client.
type TrackID string

// Level is one entry of a volume-indicator event.
type Level struct {
	UID   domain.ParticipantID `json:"uid"`
	Level int                  `json:"level"`
}

// ClientEvent is the payload of a client notification. Only the fields
// relevant to the event name are set.
type ClientEvent struct {
	UID       domain.ParticipantID `json:"uid,omitempty"`
	MediaType string               `json:"mediaType,omitempty"`
	Levels    []Level              `json:"levels,omitempty"`
	State     string               `json:"state,omitempty"`
	PrevState string               `json:"prevState,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}

// Client is the surface of a web engine client.
type Client interface {
	Join(ctx context.Context, channel, token string, uid domain.ParticipantID) error
	// CreateMicrophoneAndCameraTracks opens both devices. It yields either
	// both tracks or an error.
	CreateMicrophoneAndCameraTracks(ctx context.Context) (audio, video TrackID, err error)
	Publish(ctx context.Context, tracks ...TrackID) error
	Unpublish(ctx context.Context, tracks ...TrackID) error
	Subscribe(ctx context.Context, uid domain.ParticipantID, mediaType string) error
	Unsubscribe(ctx context.Context, uid domain.ParticipantID, mediaType string) error
	// SetEnabled toggles a published track; enabling re-opens a stopped device.
	SetEnabled(ctx context.Context, track TrackID, enabled bool) error
	StopTrack(ctx context.Context, track TrackID) error
	CloseTrack(ctx context.Context, track TrackID) error
	Leave(ctx context.Context) error

	On(event string, fn func(ClientEvent))
	RemoveAllListeners()
	// Done is closed when the client loses its engine for good.
	Done() <-chan struct{}
}
