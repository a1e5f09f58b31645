package native

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type fakeEngine struct {
	mock.Mock

	mu      sync.Mutex
	handler *EventHandler
}

func (e *fakeEngine) RegisterEventHandler(h *EventHandler) {
	e.Called()
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

func (e *fakeEngine) UnregisterEventHandler(h *EventHandler) {
	e.Called()
	e.mu.Lock()
	if e.handler == h {
		e.handler = nil
	}
	e.mu.Unlock()
}

func (e *fakeEngine) RequestPermissions(ctx context.Context) error { return e.Called().Error(0) }
func (e *fakeEngine) EnableAudio() error                           { return e.Called().Error(0) }
func (e *fakeEngine) EnableVideo() error                           { return e.Called().Error(0) }
func (e *fakeEngine) StartPreview() error                          { return e.Called().Error(0) }
func (e *fakeEngine) StopPreview() error                           { return e.Called().Error(0) }
func (e *fakeEngine) LeaveChannel() error                          { return e.Called().Error(0) }
func (e *fakeEngine) Release() error                               { return e.Called().Error(0) }

func (e *fakeEngine) EnableAudioVolumeIndication(interval time.Duration) error {
	return e.Called(interval).Error(0)
}

func (e *fakeEngine) JoinChannel(ctx context.Context, token, channel string, uid domain.ParticipantID) error {
	return e.Called(token, channel, uid).Error(0)
}

func (e *fakeEngine) MuteLocalAudioStream(muted bool) error { return e.Called(muted).Error(0) }
func (e *fakeEngine) MuteLocalVideoStream(muted bool) error { return e.Called(muted).Error(0) }

func (e *fakeEngine) fire(fn func(h *EventHandler)) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		fn(h)
	}
}

func (e *fakeEngine) methods() []string {
	var out []string
	for _, c := range e.Calls {
		out = append(out, c.Method)
	}
	return out
}

// newEngine answers every call with nil unless setup registered something
// more specific first.
func newEngine(setup ...func(e *fakeEngine)) *fakeEngine {
	e := &fakeEngine{}
	for _, s := range setup {
		s(e)
	}
	for _, m := range []string{
		"RegisterEventHandler", "UnregisterEventHandler", "RequestPermissions",
		"EnableAudio", "EnableVideo", "StartPreview", "StopPreview", "LeaveChannel", "Release",
	} {
		e.On(m).Return(nil).Maybe()
	}
	e.On("EnableAudioVolumeIndication", mock.Anything).Return(nil).Maybe()
	e.On("MuteLocalAudioStream", mock.Anything).Return(nil).Maybe()
	e.On("MuteLocalVideoStream", mock.Anything).Return(nil).Maybe()
	e.On("JoinChannel", mock.Anything, mock.Anything, mock.Anything).Return(nil).
		Run(func(args mock.Arguments) {
			channel, uid := args.String(1), args.Get(2).(domain.ParticipantID)
			go e.fire(func(h *EventHandler) { h.OnJoinChannelSuccess(channel, uid) })
		}).Maybe()
	return e
}

func nextEvent(t *testing.T, ch <-chan core.Event) core.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event")
		return core.Event{}
	}
}

func TestAcquireFollowsEngineOrder(t *testing.T) {
	e := newEngine()
	tr := New(e, Options{})

	tracks, err := tr.AcquireLocalTracks(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tracks.Audio)
	require.NotNil(t, tracks.Video)
	assert.Equal(t, []string{
		"RequestPermissions", "RegisterEventHandler", "EnableAudio",
		"EnableAudioVolumeIndication", "EnableVideo", "StartPreview",
	}, e.methods())
	e.AssertCalled(t, "EnableAudioVolumeIndication", DefaultVolumeInterval)
}

func TestPermissionDeniedIsDeviceError(t *testing.T) {
	e := newEngine(func(e *fakeEngine) {
		e.On("RequestPermissions").Return(errors.New("denied"))
	})
	tr := New(e, Options{})

	tracks, err := tr.AcquireLocalTracks(context.Background())
	assert.ErrorIs(t, err, domain.ErrDevice)
	assert.True(t, tracks.Empty())
	e.AssertNotCalled(t, "EnableAudio")
}

func TestCameraFailureKeepsMic(t *testing.T) {
	e := newEngine(func(e *fakeEngine) {
		e.On("EnableVideo").Return(errors.New("no camera"))
	})
	tr := New(e, Options{})

	tracks, err := tr.AcquireLocalTracks(context.Background())
	assert.ErrorIs(t, err, domain.ErrDevice)
	assert.NotNil(t, tracks.Audio)
	assert.Nil(t, tracks.Video)
}

func TestJoinWaitsForSuccessCallback(t *testing.T) {
	e := newEngine()
	tr := New(e, Options{})
	events, cancel := tr.Listen()
	defer cancel()

	require.NoError(t, tr.Join(context.Background(), "fam-1", 777, "tok"))
	e.AssertCalled(t, "JoinChannel", "tok", "fam-1", domain.ParticipantID(777))
	assert.Equal(t, core.EventJoined, nextEvent(t, events).Type)
}

func TestJoinErrorCallback(t *testing.T) {
	e := newEngine(func(e *fakeEngine) {
		e.On("JoinChannel", mock.Anything, mock.Anything, mock.Anything).Return(nil).
			Run(func(mock.Arguments) {
				go e.fire(func(h *EventHandler) { h.OnError(errors.New("invalid token")) })
			})
	})
	tr := New(e, Options{})

	err := tr.Join(context.Background(), "fam-1", 777, "")
	assert.ErrorIs(t, err, domain.ErrJoin)
	assert.ErrorContains(t, err, "invalid token")
}

func TestJoinHonoursContext(t *testing.T) {
	e := newEngine(func(e *fakeEngine) {
		e.On("JoinChannel", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	})
	tr := New(e, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tr.Join(ctx, "fam-1", 777, "")
	assert.ErrorIs(t, err, domain.ErrJoin)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallbacksBecomeEvents(t *testing.T) {
	e := newEngine()
	tr := New(e, Options{})
	events, cancel := tr.Listen()
	defer cancel()
	require.NoError(t, tr.Join(context.Background(), "fam-1", 777, ""))
	require.Equal(t, core.EventJoined, nextEvent(t, events).Type)

	e.fire(func(h *EventHandler) {
		h.OnUserJoined(101)
		h.OnAudioVolumeIndication([]Speaker{{UID: 0, Volume: 40}, {UID: 101, Volume: 7}})
		h.OnAudioVolumeIndication(nil)
		h.OnUserOffline(101)
		h.OnError(errors.New("connection lost"))
	})

	ev := nextEvent(t, events)
	assert.Equal(t, core.Event{Type: core.EventRemoteJoined, Remote: 101}, ev)
	ev = nextEvent(t, events)
	assert.Equal(t, core.EventVolume, ev.Type)
	assert.Equal(t, []core.VolumeSample{{ID: 0, Level: 40}, {ID: 101, Level: 7}}, ev.Volumes)
	assert.Equal(t, core.Event{Type: core.EventRemoteLeft, Remote: 101}, nextEvent(t, events))
	ev = nextEvent(t, events)
	assert.Equal(t, core.EventFault, ev.Type)
	assert.EqualError(t, ev.Err, "connection lost")
}

func TestLeaveIsIdempotent(t *testing.T) {
	e := newEngine()
	tr := New(e, Options{})

	require.NoError(t, tr.Leave(context.Background()))
	e.AssertNotCalled(t, "LeaveChannel")

	require.NoError(t, tr.Join(context.Background(), "fam-1", 777, ""))
	require.NoError(t, tr.Leave(context.Background()))
	require.NoError(t, tr.Leave(context.Background()))
	e.AssertNumberOfCalls(t, "LeaveChannel", 1)
}

func TestTrackControls(t *testing.T) {
	e := newEngine()
	tr := New(e, Options{})
	tracks, err := tr.AcquireLocalTracks(context.Background())
	require.NoError(t, err)

	require.NoError(t, tr.SetTrackEnabled(tracks.Audio, false))
	e.AssertCalled(t, "MuteLocalAudioStream", true)
	require.NoError(t, tr.SetTrackEnabled(tracks.Video, true))
	e.AssertCalled(t, "MuteLocalVideoStream", false)

	tracks.Video.Stop()
	tracks.Video.Stop()
	e.AssertNumberOfCalls(t, "StopPreview", 1)
	require.NoError(t, tracks.Video.Resume())
	e.AssertNumberOfCalls(t, "StartPreview", 2)

	require.NoError(t, tracks.Video.Close())
	require.NoError(t, tracks.Video.Close())
	e.AssertNumberOfCalls(t, "StopPreview", 2)
}

func TestUnpublishMutesBoth(t *testing.T) {
	e := newEngine()
	tr := New(e, Options{})

	require.NoError(t, tr.Publish(context.Background(), core.LocalTracks{}))
	require.NoError(t, tr.Unpublish(context.Background(), core.LocalTracks{}))
	e.AssertCalled(t, "MuteLocalAudioStream", true)
	e.AssertCalled(t, "MuteLocalVideoStream", true)
}

func TestListenCancelAndClose(t *testing.T) {
	e := newEngine()
	tr := New(e, Options{})
	events, cancel := tr.Listen()

	cancel()
	_, open := <-events
	assert.False(t, open)
	e.AssertNumberOfCalls(t, "UnregisterEventHandler", 1)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	e.AssertNumberOfCalls(t, "Release", 1)

	_, err := tr.AcquireLocalTracks(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
}
