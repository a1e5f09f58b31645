package orch

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type fakeTrack struct {
	kind core.TrackKind

	mu      sync.Mutex
	stopped int
	resumed int
	closed  int
}

func (t *fakeTrack) Kind() core.TrackKind { return t.kind }

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped++
	t.mu.Unlock()
}

func (t *fakeTrack) Resume() error {
	t.mu.Lock()
	t.resumed++
	t.mu.Unlock()
	return nil
}

func (t *fakeTrack) Close() error {
	t.mu.Lock()
	t.closed++
	t.mu.Unlock()
	return nil
}

func (t *fakeTrack) Closed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTrack) Stopped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTrack) Resumed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resumed
}

// fakeTransport records every call. Gates, when set, block the matching step
// until closed and ignore ctx, like a device prompt that cannot be aborted.
type fakeTransport struct {
	acquireGate chan struct{}
	joinGate    chan struct{}
	subGate     chan struct{}
	acquireErr  error
	audioOnly   bool
	joinErr     error
	publishErr  error
	leaveErr    error

	Audio *fakeTrack
	Video *fakeTrack

	mu        sync.Mutex
	calls     []string
	enabled   map[core.TrackKind]bool
	events    chan core.Event
	listening bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		Audio:   &fakeTrack{kind: core.TrackAudio},
		Video:   &fakeTrack{kind: core.TrackVideo},
		enabled: map[core.TrackKind]bool{core.TrackAudio: true, core.TrackVideo: true},
		events:  make(chan core.Event, 64),
	}
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeTransport) Count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeTransport) Enabled(kind core.TrackKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled[kind]
}

func (f *fakeTransport) Emit(ev core.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening {
		f.events <- ev
	}
}

func (f *fakeTransport) AcquireLocalTracks(ctx context.Context) (core.LocalTracks, error) {
	f.record("acquire")
	if f.acquireGate != nil {
		<-f.acquireGate
	}
	if f.acquireErr != nil {
		if f.audioOnly {
			return core.LocalTracks{Audio: f.Audio}, f.acquireErr
		}
		return core.LocalTracks{}, f.acquireErr
	}
	return core.LocalTracks{Audio: f.Audio, Video: f.Video}, nil
}

func (f *fakeTransport) Join(ctx context.Context, room domain.RoomID, localID domain.ParticipantID, token string) error {
	f.record("join")
	if f.joinGate != nil {
		<-f.joinGate
	}
	return f.joinErr
}

func (f *fakeTransport) Publish(ctx context.Context, tracks core.LocalTracks) error {
	f.record("publish")
	return f.publishErr
}

func (f *fakeTransport) Unpublish(ctx context.Context, tracks core.LocalTracks) error {
	f.record("unpublish")
	return nil
}

func (f *fakeTransport) SetTrackEnabled(track core.LocalTrack, enabled bool) error {
	f.record(fmt.Sprintf("enable:%s:%t", track.Kind(), enabled))
	f.mu.Lock()
	f.enabled[track.Kind()] = enabled
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, remote domain.ParticipantID, kind core.TrackKind) error {
	f.record(fmt.Sprintf("subscribe:%d:%s", remote, kind))
	f.mu.Lock()
	gate := f.subGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
		f.record(fmt.Sprintf("subscribed:%d:%s", remote, kind))
	}
	return nil
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, remote domain.ParticipantID, kind core.TrackKind) error {
	f.record(fmt.Sprintf("unsubscribe:%d:%s", remote, kind))
	return nil
}

func (f *fakeTransport) Leave(ctx context.Context) error {
	f.record("leave")
	return f.leaveErr
}

func (f *fakeTransport) Listen() (<-chan core.Event, func()) {
	f.mu.Lock()
	f.listening = true
	f.mu.Unlock()
	var once sync.Once
	return f.events, func() {
		once.Do(func() {
			f.mu.Lock()
			f.listening = false
			close(f.events)
			f.mu.Unlock()
			f.record("unlisten")
		})
	}
}

func (f *fakeTransport) Close() error {
	f.record("close")
	return nil
}

// fakeFactory hands out prepared transports, or fresh ones once it runs out.
type fakeFactory struct {
	mu      sync.Mutex
	pending []*fakeTransport
	made    []*fakeTransport
}

func (ff *fakeFactory) queue(ts ...*fakeTransport) {
	ff.mu.Lock()
	ff.pending = append(ff.pending, ts...)
	ff.mu.Unlock()
}

func (ff *fakeFactory) New(ctx context.Context) (core.MediaTransport, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	var t *fakeTransport
	if len(ff.pending) > 0 {
		t, ff.pending = ff.pending[0], ff.pending[1:]
	} else {
		t = newFakeTransport()
	}
	ff.made = append(ff.made, t)
	return t, nil
}

func (ff *fakeFactory) Made() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.made)
}

func (ff *fakeFactory) Last() *fakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.made) == 0 {
		return nil
	}
	return ff.made[len(ff.made)-1]
}

func (ff *fakeFactory) All() []*fakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return slices.Clone(ff.made)
}
