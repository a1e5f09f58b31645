package browser

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/util"
)

var (
	ErrReleased   = errors.New("browser transport released")
	ErrClientGone = errors.New("engine client disconnected")
)

// Transport serves one session attempt over a Client.
type Transport struct {
	client Client

	mu        sync.Mutex
	queue     *util.Queue[core.Event]
	listening bool
	// joining covers a join whose outcome is unknown: the client may finish
	// it after the caller gave up.
	joining bool
	joined  bool
	released  bool
}

var _ core.MediaTransport = (*Transport)(nil)

func New(client Client) *Transport {
	return &Transport{client: client}
}

func (t *Transport) AcquireLocalTracks(ctx context.Context) (core.LocalTracks, error) {
	audio, video, err := t.client.CreateMicrophoneAndCameraTracks(ctx)
	if err != nil {
		return core.LocalTracks{}, domain.DeviceError("create tracks", err)
	}
	return core.LocalTracks{
		Audio: &localTrack{client: t.client, id: audio, kind: core.TrackAudio},
		Video: &localTrack{client: t.client, id: video, kind: core.TrackVideo},
	}, nil
}

func (t *Transport) Join(ctx context.Context, room domain.RoomID, localID domain.ParticipantID, token string) error {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return ErrReleased
	}
	t.joining = true
	t.mu.Unlock()

	if err := t.client.Join(ctx, string(room), token, localID); err != nil {
		return domain.JoinError("join", err)
	}
	t.mu.Lock()
	t.joining = false
	t.joined = true
	t.mu.Unlock()
	t.emit(core.Event{Type: core.EventJoined})
	return nil
}

func (t *Transport) Publish(ctx context.Context, tracks core.LocalTracks) error {
	ids := trackIDs(tracks)
	if len(ids) == 0 {
		return nil
	}
	if err := t.client.Publish(ctx, ids...); err != nil {
		return domain.JoinError("publish", err)
	}
	return nil
}

func (t *Transport) Unpublish(ctx context.Context, tracks core.LocalTracks) error {
	ids := trackIDs(tracks)
	if len(ids) == 0 {
		return nil
	}
	return t.client.Unpublish(ctx, ids...)
}

func (t *Transport) SetTrackEnabled(track core.LocalTrack, enabled bool) error {
	lt, ok := track.(*localTrack)
	if !ok {
		return errors.New("foreign track")
	}
	ctx, cancel := context.WithTimeout(context.Background(), trackOpTimeout)
	defer cancel()
	return t.client.SetEnabled(ctx, lt.id, enabled)
}

func (t *Transport) Subscribe(ctx context.Context, remote domain.ParticipantID, kind core.TrackKind) error {
	return t.client.Subscribe(ctx, remote, string(kind))
}

func (t *Transport) Unsubscribe(ctx context.Context, remote domain.ParticipantID, kind core.TrackKind) error {
	return t.client.Unsubscribe(ctx, remote, string(kind))
}

// Leave also runs after a failed or abandoned join, since the client may
// still be in the channel.
func (t *Transport) Leave(ctx context.Context) error {
	t.mu.Lock()
	inChannel := t.joined || t.joining
	t.joined, t.joining = false, false
	t.mu.Unlock()
	if !inChannel {
		return nil
	}
	return t.client.Leave(ctx)
}

// Listen registers the client listeners and watches for the client going
// away. The cancel func removes all of them and closes the event channel.
func (t *Transport) Listen() (<-chan core.Event, func()) {
	t.mu.Lock()
	if t.queue == nil {
		t.queue = util.NewQueue[core.Event]()
	}
	q := t.queue
	first := !t.listening
	t.listening = true
	t.mu.Unlock()

	if first {
		t.client.On(EventUserPublished, func(e ClientEvent) {
			if kind, ok := trackKind(e.MediaType); ok {
				t.emit(core.Event{Type: core.EventRemotePublished, Remote: e.UID, Kind: kind})
			}
		})
		t.client.On(EventUserUnpublished, func(e ClientEvent) {
			if kind, ok := trackKind(e.MediaType); ok {
				t.emit(core.Event{Type: core.EventRemoteUnpublished, Remote: e.UID, Kind: kind})
			}
		})
		t.client.On(EventUserLeft, func(e ClientEvent) {
			t.emit(core.Event{Type: core.EventRemoteLeft, Remote: e.UID})
		})
		t.client.On(EventVolumeIndicator, func(e ClientEvent) {
			samples := make([]core.VolumeSample, 0, len(e.Levels))
			for _, l := range e.Levels {
				samples = append(samples, core.VolumeSample{ID: l.UID, Level: l.Level})
			}
			t.emit(core.Event{Type: core.EventVolume, Volumes: samples})
		})
		t.client.On(EventConnectionState, t.onConnectionState)
	}

	stop := make(chan struct{})
	go t.watch(stop)

	var once sync.Once
	return q.C(), func() {
		once.Do(func() {
			close(stop)
			t.client.RemoveAllListeners()
			q.Close()
		})
	}
}

func (t *Transport) watch(stop <-chan struct{}) {
	select {
	case <-stop:
		return
	case <-t.client.Done():
	}
	t.mu.Lock()
	joined := t.joined
	t.mu.Unlock()
	log.Warn().Str("module", "browser").Bool("joined", joined).Msg("engine client gone")
	if joined {
		t.emit(core.Event{Type: core.EventFault, Err: ErrClientGone})
	}
}

func (t *Transport) onConnectionState(e ClientEvent) {
	log.Info().
		Str("module", "browser").
		Str("state", e.State).
		Str("prev_state", e.PrevState).
		Str("reason", e.Reason).
		Msg("connection state")
	if e.State != StateDisconnected {
		return
	}
	t.mu.Lock()
	joined := t.joined
	t.mu.Unlock()
	if !joined {
		return
	}
	if e.Reason != "" && e.Reason != "LEAVE" {
		t.emit(core.Event{Type: core.EventFault, Err: errors.New(e.Reason)})
		return
	}
	t.emit(core.Event{Type: core.EventLeft})
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = true
	return nil
}

func (t *Transport) emit(ev core.Event) {
	t.mu.Lock()
	q := t.queue
	t.mu.Unlock()
	if q != nil {
		q.Push(ev)
	}
}

func trackIDs(tracks core.LocalTracks) []TrackID {
	var ids []TrackID
	for _, tr := range tracks.All() {
		if lt, ok := tr.(*localTrack); ok {
			ids = append(ids, lt.id)
		}
	}
	return ids
}

func trackKind(mediaType string) (core.TrackKind, bool) {
	switch core.TrackKind(mediaType) {
	case core.TrackAudio:
		return core.TrackAudio, true
	case core.TrackVideo:
		return core.TrackVideo, true
	}
	return "", false
}
