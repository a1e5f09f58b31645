package orch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dkeye/Huddle/internal/app/roster"
	"github.com/dkeye/Huddle/internal/app/volume"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// session is one join attempt. Every field is owned by the coordinator loop.
type session struct {
	seq         uint64
	room        domain.RoomID
	localID     domain.ParticipantID
	displayName string
	state       domain.SessionState
	lastErr     error

	transport  core.MediaTransport
	stopListen func()
	tracks     core.LocalTracks
	joined     bool
	published  bool
	// subscribing counts Subscribe calls still running on helper goroutines.
	subscribing sync.WaitGroup

	// cancelled is set when leave arrives while a join step is in flight.
	cancelled   bool
	tearingDown bool

	// ctx lives as long as the session; joinCtx bounds the connect steps.
	ctx        context.Context
	cancel     context.CancelFunc
	joinCtx    context.Context
	joinCancel context.CancelFunc

	roster  *roster.Reconciler
	sampler *volume.Sampler
	mic     bool
	video   bool

	settled    chan struct{}
	settleOnce sync.Once
}

func (s *session) settle() {
	s.settleOnce.Do(func() { close(s.settled) })
}

func (s *session) log(ev *zerolog.Event) *zerolog.Event {
	return ev.Str("module", "orch").
		Str("room", string(s.room)).
		Uint32("local_id", uint32(s.localID))
}

// stale reports whether a step completion for s must only release what it
// carries.
func (s *session) stale(current *session) bool {
	return s != current || s.state.Settled() || s.tearingDown
}

// teardownPlan is what a session hands to the release goroutine.
type teardownPlan struct {
	transport  core.MediaTransport
	tracks     core.LocalTracks
	unpublish  bool
	subs       []roster.Subscription
	inflight   *sync.WaitGroup
	stopListen func()
}

// detach moves every releasable resource out of s.
func (s *session) detach() teardownPlan {
	p := teardownPlan{
		transport:  s.transport,
		tracks:     s.tracks,
		unpublish:  s.published,
		subs:       s.roster.Subscriptions(),
		inflight:   &s.subscribing,
		stopListen: s.stopListen,
	}
	s.transport = nil
	s.tracks = core.LocalTracks{}
	s.published = false
	s.stopListen = nil
	return p
}
