package orch

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/roster"
	"github.com/dkeye/Huddle/internal/app/volume"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Join starts a fresh session for room. It returns once the session is
// Connecting; device and join failures show up in Snapshot().LastError.
func (c *Coordinator) Join(ctx context.Context, room domain.RoomID, displayName string) error {
	if room == "" {
		return domain.InvalidInput("join", domain.ErrRoomIDEmpty)
	}
	if strings.TrimSpace(displayName) == "" {
		return domain.InvalidInput("join", domain.ErrDisplayNameEmpty)
	}
	if c.closed.Load() {
		return ErrClosed
	}
	return c.call(ctx, func() error { return c.startSession(room, displayName) })
}

func (c *Coordinator) startSession(room domain.RoomID, displayName string) error {
	if s := c.sess; s != nil && !s.state.Settled() {
		return ErrSessionActive
	}
	c.seq++
	localID := c.opts.NewLocalID()

	s := &session{
		seq:         c.seq,
		room:        room,
		localID:     localID,
		displayName: displayName,
		state:       domain.StateIdle,
		roster:      roster.New(c.opts.Capacity, localID),
		sampler:     volume.New(localID, c.threshold),
		mic:         true,
		video:       true,
		settled:     make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if c.opts.JoinTimeout > 0 {
		s.joinCtx, s.joinCancel = context.WithTimeout(s.ctx, c.opts.JoinTimeout)
		context.AfterFunc(s.joinCtx, func() {
			if errors.Is(context.Cause(s.joinCtx), context.DeadlineExceeded) {
				c.post(func() { c.onJoinTimeout(s) })
			}
		})
	} else {
		s.joinCtx, s.joinCancel = context.WithCancel(s.ctx)
	}

	c.sess = s
	c.transition(s, domain.StateConnecting)
	go c.createTransport(s)
	return nil
}

func (c *Coordinator) createTransport(s *session) {
	t, err := c.factory(s.joinCtx)
	c.complete(
		func() { c.onTransport(s, t, err) },
		func() { c.runTeardown(teardownPlan{transport: t}) },
	)
}

func (c *Coordinator) onTransport(s *session, t core.MediaTransport, err error) {
	if s.stale(c.sess) {
		if t != nil {
			go c.runTeardown(teardownPlan{transport: t})
		}
		return
	}
	if err != nil {
		if s.cancelled {
			c.finishTeardown(s)
			return
		}
		c.fail(s, domain.JoinError("transport", err))
		return
	}

	s.transport = t
	if s.cancelled {
		c.teardown(s, "cancelled", nil)
		return
	}

	events, stop := t.Listen()
	s.stopListen = stop
	go c.pump(s, events)
	go c.acquire(s, t)
}

func (c *Coordinator) acquire(s *session, t core.MediaTransport) {
	tracks, err := t.AcquireLocalTracks(s.joinCtx)
	c.complete(
		func() { c.onTracks(s, tracks, err) },
		func() { c.runTeardown(teardownPlan{tracks: tracks}) },
	)
}

func (c *Coordinator) onTracks(s *session, tracks core.LocalTracks, err error) {
	if s.stale(c.sess) {
		go c.runTeardown(teardownPlan{tracks: tracks})
		return
	}
	s.tracks = tracks
	if s.cancelled {
		c.teardown(s, "cancelled", nil)
		return
	}
	if err != nil {
		c.fail(s, domain.DeviceError("acquire", err))
		return
	}
	if tracks.Empty() {
		c.fail(s, domain.DeviceError("acquire", ErrNoLocalTracks))
		return
	}

	s.mic = tracks.Audio != nil
	s.video = tracks.Video != nil
	local := domain.NewLocalParticipant(s.localID, s.displayName)
	local.MicEnabled, local.VideoEnabled = s.mic, s.video
	s.roster.SetLocal(local)
	if s.video {
		s.roster.AttachLocal()
	}
	s.log(log.Debug()).Bool("audio", s.mic).Bool("video", s.video).Msg("local tracks acquired")
	c.publish()

	go c.join(s, s.transport, tracks)
}

func (c *Coordinator) join(s *session, t core.MediaTransport, tracks core.LocalTracks) {
	joinErr := t.Join(s.joinCtx, s.room, s.localID, c.opts.Token)
	var pubErr error
	if joinErr == nil {
		pubErr = t.Publish(s.joinCtx, tracks)
	}
	c.complete(func() { c.onJoined(s, joinErr, pubErr) }, nil)
}

func (c *Coordinator) onJoined(s *session, joinErr, pubErr error) {
	if s.stale(c.sess) {
		return
	}
	s.joined = joinErr == nil
	s.published = s.joined && pubErr == nil
	if s.cancelled {
		c.teardown(s, "cancelled", nil)
		return
	}
	switch {
	case joinErr != nil:
		c.fail(s, domain.JoinError("join", joinErr))
		return
	case pubErr != nil:
		c.fail(s, domain.JoinError("publish", pubErr))
		return
	}

	s.joinCancel()
	s.sampler.Start()
	c.metrics.Join("joined")
	c.transition(s, domain.StateJoined)
}

func (c *Coordinator) onJoinTimeout(s *session) {
	if s != c.sess || s.state != domain.StateConnecting || s.cancelled {
		return
	}
	c.fail(s, domain.JoinError("join", ErrJoinTimeout))
}

// fail ends a Connecting session in Failed and releases whatever it holds.
func (c *Coordinator) fail(s *session, err error) {
	s.lastErr = err
	s.cancel()
	s.sampler.Stop()
	plan := s.detach()
	s.roster.Clear()

	result := "join_error"
	if errors.Is(err, domain.ErrDevice) {
		result = "device_error"
	}
	c.metrics.Join(result)
	s.log(log.Warn()).Err(err).Msg("join attempt failed")

	c.transition(s, domain.StateFailed)
	go c.runTeardown(plan)
}
