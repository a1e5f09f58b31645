package native

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/util"
)

const DefaultVolumeInterval = 400 * time.Millisecond

var ErrReleased = errors.New("engine released")

type Options struct {
	VolumeInterval time.Duration
}

// Transport is a core.MediaTransport over an Engine. Remote media is
// subscribed by the engine itself, so Subscribe and Unsubscribe are no-ops.
type Transport struct {
	engine   Engine
	interval time.Duration

	mu        sync.Mutex
	handler   *EventHandler
	queue     *util.Queue[core.Event]
	joinWait  chan error
	joining   bool
	inChannel bool
	released  bool
}

var _ core.MediaTransport = (*Transport)(nil)

func New(engine Engine, opts Options) *Transport {
	if opts.VolumeInterval <= 0 {
		opts.VolumeInterval = DefaultVolumeInterval
	}
	return &Transport{engine: engine, interval: opts.VolumeInterval}
}

func (t *Transport) AcquireLocalTracks(ctx context.Context) (core.LocalTracks, error) {
	if t.isReleased() {
		return core.LocalTracks{}, ErrReleased
	}
	var tracks core.LocalTracks
	if err := t.engine.RequestPermissions(ctx); err != nil {
		return tracks, domain.DeviceError("permissions", err)
	}
	t.ensureHandler()

	if err := t.engine.EnableAudio(); err != nil {
		return tracks, domain.DeviceError("enable audio", err)
	}
	tracks.Audio = &micTrack{engine: t.engine}
	if err := t.engine.EnableAudioVolumeIndication(t.interval); err != nil {
		log.Warn().Str("module", "native").Err(err).Msg("volume indication unavailable")
	}

	if err := t.engine.EnableVideo(); err != nil {
		return tracks, domain.DeviceError("enable video", err)
	}
	if err := t.engine.StartPreview(); err != nil {
		return tracks, domain.DeviceError("start preview", err)
	}
	tracks.Video = &cameraTrack{engine: t.engine, previewing: true}
	return tracks, nil
}

// Join returns after the engine confirms the channel, reports an error, or
// ctx ends.
func (t *Transport) Join(ctx context.Context, room domain.RoomID, localID domain.ParticipantID, token string) error {
	t.ensureHandler()
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return ErrReleased
	}
	wait := make(chan error, 1)
	t.joinWait = wait
	t.joining = true
	t.mu.Unlock()

	if err := t.engine.JoinChannel(ctx, token, string(room), localID); err != nil {
		t.clearJoin()
		return domain.JoinError("join channel", err)
	}

	select {
	case err := <-wait:
		if err != nil {
			return domain.JoinError("join channel", err)
		}
		return nil
	case <-ctx.Done():
		t.clearJoin()
		return domain.JoinError("join channel", ctx.Err())
	}
}

// Publish is implicit: a broadcaster's tracks go out on join.
func (t *Transport) Publish(ctx context.Context, tracks core.LocalTracks) error { return nil }

func (t *Transport) Unpublish(ctx context.Context, tracks core.LocalTracks) error {
	return errors.Join(
		t.engine.MuteLocalAudioStream(true),
		t.engine.MuteLocalVideoStream(true),
	)
}

func (t *Transport) SetTrackEnabled(track core.LocalTrack, enabled bool) error {
	switch track.Kind() {
	case core.TrackAudio:
		return t.engine.MuteLocalAudioStream(!enabled)
	case core.TrackVideo:
		return t.engine.MuteLocalVideoStream(!enabled)
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, remote domain.ParticipantID, kind core.TrackKind) error {
	return nil
}

func (t *Transport) Unsubscribe(ctx context.Context, remote domain.ParticipantID, kind core.TrackKind) error {
	return nil
}

func (t *Transport) Leave(ctx context.Context) error {
	t.mu.Lock()
	active := t.inChannel || t.joining
	t.inChannel, t.joining = false, false
	released := t.released
	t.mu.Unlock()
	if !active || released {
		return nil
	}
	return t.engine.LeaveChannel()
}

func (t *Transport) Listen() (<-chan core.Event, func()) {
	t.ensureHandler()
	t.mu.Lock()
	if t.queue == nil {
		t.queue = util.NewQueue[core.Event]()
	}
	q := t.queue
	t.mu.Unlock()

	return q.C(), func() {
		t.mu.Lock()
		h := t.handler
		t.handler = nil
		t.mu.Unlock()
		if h != nil {
			t.engine.UnregisterEventHandler(h)
		}
		q.Close()
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return nil
	}
	t.released = true
	h := t.handler
	t.handler = nil
	q := t.queue
	t.mu.Unlock()

	if h != nil {
		t.engine.UnregisterEventHandler(h)
	}
	if q != nil {
		q.Close()
	}
	return t.engine.Release()
}

func (t *Transport) isReleased() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

func (t *Transport) clearJoin() {
	t.mu.Lock()
	t.joinWait = nil
	t.mu.Unlock()
}

func (t *Transport) ensureHandler() {
	t.mu.Lock()
	if t.handler != nil || t.released {
		t.mu.Unlock()
		return
	}
	h := &EventHandler{
		OnJoinChannelSuccess:    t.onJoinSuccess,
		OnUserJoined:            func(uid domain.ParticipantID) { t.emit(core.Event{Type: core.EventRemoteJoined, Remote: uid}) },
		OnUserOffline:           func(uid domain.ParticipantID) { t.emit(core.Event{Type: core.EventRemoteLeft, Remote: uid}) },
		OnLeaveChannel:          t.onLeave,
		OnAudioVolumeIndication: t.onVolume,
		OnError:                 t.onError,
	}
	t.handler = h
	t.mu.Unlock()
	t.engine.RegisterEventHandler(h)
}

func (t *Transport) emit(ev core.Event) {
	t.mu.Lock()
	q := t.queue
	t.mu.Unlock()
	if q != nil {
		q.Push(ev)
	}
}

func (t *Transport) onJoinSuccess(channel string, uid domain.ParticipantID) {
	t.mu.Lock()
	wait := t.joinWait
	t.joinWait = nil
	t.joining = false
	t.inChannel = true
	t.mu.Unlock()
	if wait != nil {
		wait <- nil
	}
	t.emit(core.Event{Type: core.EventJoined})
}

func (t *Transport) onLeave() {
	t.mu.Lock()
	t.inChannel = false
	t.mu.Unlock()
	t.emit(core.Event{Type: core.EventLeft})
}

func (t *Transport) onError(err error) {
	t.mu.Lock()
	wait := t.joinWait
	t.joinWait = nil
	t.mu.Unlock()
	if wait != nil {
		wait <- err
		return
	}
	t.emit(core.Event{Type: core.EventFault, Err: err})
}

func (t *Transport) onVolume(speakers []Speaker) {
	if len(speakers) == 0 {
		return
	}
	batch := make([]core.VolumeSample, 0, len(speakers))
	for _, s := range speakers {
		batch = append(batch, core.VolumeSample{ID: s.UID, Level: s.Volume})
	}
	t.emit(core.Event{Type: core.EventVolume, Volumes: batch})
}
