package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type fakeClient struct {
	mu        sync.Mutex
	calls     []string
	listeners map[string][]func(ClientEvent)

	createErr error
	joinErr   error
	// joinWait makes Join block until ctx ends; the engine still joins.
	joinWait bool

	done     chan struct{}
	goneOnce sync.Once
}

func newClient() *fakeClient {
	return &fakeClient{
		listeners: make(map[string][]func(ClientEvent)),
		done:      make(chan struct{}),
	}
}

func (c *fakeClient) gone() { c.goneOnce.Do(func() { close(c.done) }) }

func (c *fakeClient) record(format string, args ...any) {
	c.mu.Lock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
	c.mu.Unlock()
}

func (c *fakeClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeClient) Join(ctx context.Context, channel, token string, uid domain.ParticipantID) error {
	c.record("join:%s:%d", channel, uid)
	if c.joinWait {
		<-ctx.Done()
		return ctx.Err()
	}
	return c.joinErr
}

func (c *fakeClient) CreateMicrophoneAndCameraTracks(ctx context.Context) (TrackID, TrackID, error) {
	c.record("create")
	if c.createErr != nil {
		return "", "", c.createErr
	}
	return "mic", "cam", nil
}

func (c *fakeClient) Publish(ctx context.Context, tracks ...TrackID) error {
	c.record("publish:%v", tracks)
	return nil
}

func (c *fakeClient) Unpublish(ctx context.Context, tracks ...TrackID) error {
	c.record("unpublish:%v", tracks)
	return nil
}

func (c *fakeClient) Subscribe(ctx context.Context, uid domain.ParticipantID, mediaType string) error {
	c.record("subscribe:%d:%s", uid, mediaType)
	return nil
}

func (c *fakeClient) Unsubscribe(ctx context.Context, uid domain.ParticipantID, mediaType string) error {
	c.record("unsubscribe:%d:%s", uid, mediaType)
	return nil
}

func (c *fakeClient) SetEnabled(ctx context.Context, track TrackID, enabled bool) error {
	c.record("enable:%s:%t", track, enabled)
	return nil
}

func (c *fakeClient) StopTrack(ctx context.Context, track TrackID) error {
	c.record("stop:%s", track)
	return nil
}

func (c *fakeClient) CloseTrack(ctx context.Context, track TrackID) error {
	c.record("close:%s", track)
	return nil
}

func (c *fakeClient) Leave(ctx context.Context) error {
	c.record("leave")
	return nil
}

func (c *fakeClient) On(event string, fn func(ClientEvent)) {
	c.mu.Lock()
	c.listeners[event] = append(c.listeners[event], fn)
	c.mu.Unlock()
}

func (c *fakeClient) RemoveAllListeners() {
	c.record("remove-listeners")
	c.mu.Lock()
	clear(c.listeners)
	c.mu.Unlock()
}

func (c *fakeClient) Done() <-chan struct{} { return c.done }

func (c *fakeClient) fire(event string, e ClientEvent) {
	c.mu.Lock()
	fns := append(([]func(ClientEvent))(nil), c.listeners[event]...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
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

func TestAcquireCreatesBothTracks(t *testing.T) {
	c := newClient()
	tr := New(c)

	tracks, err := tr.AcquireLocalTracks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.TrackAudio, tracks.Audio.Kind())
	assert.Equal(t, core.TrackVideo, tracks.Video.Kind())
}

func TestAcquireFailureIsDeviceError(t *testing.T) {
	c := newClient()
	c.createErr = errors.New("NotAllowedError")
	tr := New(c)

	tracks, err := tr.AcquireLocalTracks(context.Background())
	assert.ErrorIs(t, err, domain.ErrDevice)
	assert.True(t, tracks.Empty())
}

func TestJoinPublishLeave(t *testing.T) {
	c := newClient()
	tr := New(c)
	ctx := context.Background()

	tracks, err := tr.AcquireLocalTracks(ctx)
	require.NoError(t, err)
	require.NoError(t, tr.Join(ctx, "lobby", 12, "tok"))
	require.NoError(t, tr.Publish(ctx, tracks))
	require.NoError(t, tr.Unpublish(ctx, tracks))
	require.NoError(t, tr.Leave(ctx))
	require.NoError(t, tr.Leave(ctx))

	assert.Equal(t, []string{
		"create",
		"join:lobby:12",
		"publish:[mic cam]",
		"unpublish:[mic cam]",
		"leave",
	}, c.Calls())
}

func TestJoinError(t *testing.T) {
	c := newClient()
	c.joinErr = errors.New("CAN_NOT_GET_GATEWAY_SERVER")
	tr := New(c)

	err := tr.Join(context.Background(), "lobby", 12, "")
	assert.ErrorIs(t, err, domain.ErrJoin)
	require.NoError(t, tr.Leave(context.Background()))
	require.NoError(t, tr.Leave(context.Background()))
	assert.Equal(t, []string{"join:lobby:12", "leave"}, c.Calls())
}

func TestAbandonedJoinStillLeaves(t *testing.T) {
	c := newClient()
	c.joinWait = true
	tr := New(c)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- tr.Join(ctx, "fam-1", 7, "") }()
	require.Eventually(t, func() bool { return len(c.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-errc
	assert.ErrorIs(t, err, domain.ErrJoin)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, tr.Leave(context.Background()))
	assert.Equal(t, []string{"join:fam-1:7", "leave"}, c.Calls())
}

func TestLeaveWithoutJoin(t *testing.T) {
	c := newClient()
	assert.NoError(t, New(c).Leave(context.Background()))
	assert.Empty(t, c.Calls())
}

func TestTrackControls(t *testing.T) {
	c := newClient()
	tr := New(c)
	tracks, err := tr.AcquireLocalTracks(context.Background())
	require.NoError(t, err)

	require.NoError(t, tr.SetTrackEnabled(tracks.Audio, false))
	tracks.Video.Stop()
	require.NoError(t, tracks.Video.Resume())
	require.NoError(t, tracks.Video.Close())
	require.NoError(t, tracks.Video.Close())

	assert.Equal(t, []string{
		"create",
		"enable:mic:false",
		"stop:cam",
		"enable:cam:true",
		"stop:cam",
		"close:cam",
	}, c.Calls())
}

func TestClientEventsMapToCoreEvents(t *testing.T) {
	c := newClient()
	tr := New(c)
	events, cancel := tr.Listen()
	defer cancel()

	c.fire(EventUserPublished, ClientEvent{UID: 5, MediaType: "video"})
	c.fire(EventUserPublished, ClientEvent{UID: 5, MediaType: "datachannel"})
	c.fire(EventUserUnpublished, ClientEvent{UID: 5, MediaType: "audio"})
	c.fire(EventVolumeIndicator, ClientEvent{Levels: []Level{{UID: 5, Level: 40}}})
	c.fire(EventUserLeft, ClientEvent{UID: 5})

	assert.Equal(t, core.Event{Type: core.EventRemotePublished, Remote: 5, Kind: core.TrackVideo}, nextEvent(t, events))
	assert.Equal(t, core.Event{Type: core.EventRemoteUnpublished, Remote: 5, Kind: core.TrackAudio}, nextEvent(t, events))
	assert.Equal(t, core.Event{Type: core.EventVolume, Volumes: []core.VolumeSample{{ID: 5, Level: 40}}}, nextEvent(t, events))
	assert.Equal(t, core.Event{Type: core.EventRemoteLeft, Remote: 5}, nextEvent(t, events))
}

func TestDisconnectAfterJoin(t *testing.T) {
	c := newClient()
	tr := New(c)
	events, cancel := tr.Listen()
	defer cancel()

	c.fire(EventConnectionState, ClientEvent{State: StateDisconnected})
	require.NoError(t, tr.Join(context.Background(), "lobby", 1, ""))
	assert.Equal(t, core.EventJoined, nextEvent(t, events).Type)

	c.fire(EventConnectionState, ClientEvent{State: StateReconnecting})
	c.fire(EventConnectionState, ClientEvent{State: StateDisconnected, Reason: "NETWORK_ERROR"})
	ev := nextEvent(t, events)
	assert.Equal(t, core.EventFault, ev.Type)
	assert.EqualError(t, ev.Err, "NETWORK_ERROR")
}

func TestListenCancelRemovesListeners(t *testing.T) {
	c := newClient()
	tr := New(c)
	events, cancel := tr.Listen()
	cancel()

	c.fire(EventUserLeft, ClientEvent{UID: 3})
	_, open := <-events
	assert.False(t, open)
	assert.Contains(t, c.Calls(), "remove-listeners")
}

func TestClientGoneWhileJoinedIsFault(t *testing.T) {
	c := newClient()
	tr := New(c)
	events, cancel := tr.Listen()
	defer cancel()

	require.NoError(t, tr.Join(context.Background(), "lobby", 1, ""))
	assert.Equal(t, core.EventJoined, nextEvent(t, events).Type)

	c.gone()
	ev := nextEvent(t, events)
	assert.Equal(t, core.EventFault, ev.Type)
	assert.ErrorIs(t, ev.Err, ErrClientGone)
}

func TestClientGoneBeforeJoinIsQuiet(t *testing.T) {
	c := newClient()
	tr := New(c)
	events, cancel := tr.Listen()
	defer cancel()

	c.gone()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListenCancelStopsWatcher(t *testing.T) {
	c := newClient()
	tr := New(c)
	require.NoError(t, tr.Join(context.Background(), "lobby", 1, ""))
	events, cancel := tr.Listen()
	cancel()
	cancel()

	c.gone()
	for range events {
	}
	assert.Contains(t, c.Calls(), "remove-listeners")
}
