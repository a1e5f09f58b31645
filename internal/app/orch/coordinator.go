// Package orch runs the call session state machine. One loop goroutine owns
// the session; commands, step completions and transport events are posted to
// it as closures and run to completion one at a time.
package orch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/roster"
	"github.com/dkeye/Huddle/internal/app/volume"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
)

var (
	ErrSessionActive = errors.New("call session already active")
	ErrNoLocalTracks = errors.New("no local tracks held")
	ErrClosed        = errors.New("coordinator closed")
	ErrJoinTimeout   = errors.New("join timed out")
	errTransportLeft = errors.New("transport left the room")
)

type Options struct {
	Capacity          int
	SpeakingThreshold int
	Token             string
	// JoinTimeout bounds transport creation, device acquisition and join.
	// Zero disables it.
	JoinTimeout  time.Duration
	LeaveTimeout time.Duration
	NewLocalID   func() domain.ParticipantID
	Metrics      *metrics.Call
}

func DefaultOptions() Options {
	return Options{
		Capacity:          roster.DefaultCapacity,
		SpeakingThreshold: volume.DefaultThreshold,
		JoinTimeout:       30 * time.Second,
		LeaveTimeout:      5 * time.Second,
	}
}

type Coordinator struct {
	factory core.TransportFactory
	opts    Options
	metrics *metrics.Call

	ops       chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// loop-owned
	sess      *session
	seq       uint64
	threshold int

	snap atomic.Pointer[Snapshot]

	subMu      sync.Mutex
	subs       map[uint64]chan Snapshot
	subSeq     uint64
	subsClosed bool
}

func New(factory core.TransportFactory, opts Options) *Coordinator {
	if opts.Capacity < 1 {
		opts.Capacity = roster.DefaultCapacity
	}
	if opts.LeaveTimeout <= 0 {
		opts.LeaveTimeout = DefaultOptions().LeaveTimeout
	}
	if opts.NewLocalID == nil {
		opts.NewLocalID = domain.NewLocalIDs().Next
	}
	c := &Coordinator{
		factory:   factory,
		opts:      opts,
		metrics:   opts.Metrics,
		ops:       make(chan func()),
		done:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		threshold: opts.SpeakingThreshold,
		subs:      make(map[uint64]chan Snapshot),
	}
	initial := c.buildSnapshot()
	c.snap.Store(&initial)
	go c.loop()
	return c
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for {
		select {
		case fn := <-c.ops:
			fn()
		case <-c.done:
			return
		}
	}
}

// post hands fn to the loop. It reports false once the loop has stopped.
func (c *Coordinator) post(fn func()) bool {
	select {
	case c.ops <- fn:
		return true
	case <-c.loopDone:
		return false
	}
}

// complete posts a step completion; release frees the step's result when
// the loop is gone.
func (c *Coordinator) complete(fn func(), release func()) {
	if !c.post(fn) && release != nil {
		release()
	}
}

func (c *Coordinator) call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	op := func() { res <- fn() }
	select {
	case c.ops <- op:
	case <-c.loopDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-res
}

// Snapshot returns the latest published view. Callers must not modify it.
func (c *Coordinator) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Subscribe streams snapshots. A slow reader only ever sees the newest one.
// The channel starts with the current snapshot and is closed by cancel or
// Close.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- c.Snapshot()

	c.subMu.Lock()
	if c.subsClosed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.subSeq
	c.subSeq++
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

// SetSpeakingThreshold applies a new "is speaking" level to the current and
// future sessions.
func (c *Coordinator) SetSpeakingThreshold(v int) {
	c.post(func() {
		c.threshold = v
		if c.sess != nil {
			c.sess.sampler.SetThreshold(v)
		}
		c.publish()
		log.Info().Str("module", "orch").Int("threshold", v).Msg("speaking threshold updated")
	})
}

// Close leaves the current session and stops the loop.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.LeaveTimeout+time.Second)
		if err := c.Leave(ctx); err != nil {
			log.Warn().Str("module", "orch").Err(err).Msg("leave on close did not settle")
		}
		cancel()

		close(c.done)
		<-c.loopDone

		// The loop is gone; whatever an unsettled session still holds is
		// released here.
		if s := c.sess; s != nil && !s.state.Settled() && !s.tearingDown {
			s.cancel()
			c.runTeardown(s.detach())
		}

		c.subMu.Lock()
		for id, ch := range c.subs {
			delete(c.subs, id)
			close(ch)
		}
		c.subsClosed = true
		c.subMu.Unlock()
	})
	return nil
}

// publish stores a fresh snapshot and fans it out. Loop only.
func (c *Coordinator) publish() {
	snap := c.buildSnapshot()
	c.snap.Store(&snap)
	c.metrics.Roster(len(snap.Participants))

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// transition moves s to another state and publishes it. Loop only.
func (c *Coordinator) transition(s *session, to domain.SessionState) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.log(log.Info()).Stringer("from", from).Stringer("to", to).Msg("state changed")
	c.metrics.Transition(from.String(), to.String(), !to.Settled())
	if to.Settled() {
		s.settle()
	}
	c.publish()
}
