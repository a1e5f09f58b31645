package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// LocalTrack is one local capture resource. It is owned by exactly one
// session and closed exactly once.
type LocalTrack interface {
	Kind() TrackKind
	// Stop releases the capture device; the track stays published.
	Stop()
	// Resume re-acquires the capture device after Stop.
	Resume() error
	Close() error
}

// LocalTracks is the capture pair acquired on join. Either field may be nil
// when acquisition failed half way.
type LocalTracks struct {
	Audio LocalTrack
	Video LocalTrack
}

func (t LocalTracks) All() []LocalTrack {
	out := make([]LocalTrack, 0, 2)
	if t.Audio != nil {
		out = append(out, t.Audio)
	}
	if t.Video != nil {
		out = append(out, t.Video)
	}
	return out
}

func (t LocalTracks) Empty() bool { return t.Audio == nil && t.Video == nil }

// MediaTransport is the capability surface of one real-time media engine.
// A transport serves a single session attempt.
type MediaTransport interface {
	// AcquireLocalTracks opens microphone and camera. On error the returned
	// tracks hold whatever was opened before the failure.
	AcquireLocalTracks(ctx context.Context) (LocalTracks, error)
	Join(ctx context.Context, room domain.RoomID, localID domain.ParticipantID, token string) error
	Publish(ctx context.Context, tracks LocalTracks) error
	Unpublish(ctx context.Context, tracks LocalTracks) error
	// SetTrackEnabled must not require a republish.
	SetTrackEnabled(track LocalTrack, enabled bool) error
	Subscribe(ctx context.Context, remote domain.ParticipantID, kind TrackKind) error
	Unsubscribe(ctx context.Context, remote domain.ParticipantID, kind TrackKind) error
	// Leave is idempotent and safe on a transport that never joined.
	Leave(ctx context.Context) error
	// Listen returns the event stream. The cancel func drops every listener
	// registration and closes the channel. Call it once per transport.
	Listen() (<-chan Event, func())
	// Close releases the engine handle.
	Close() error
}

// TransportFactory builds a fresh transport for each session attempt.
type TransportFactory func(ctx context.Context) (MediaTransport, error)
