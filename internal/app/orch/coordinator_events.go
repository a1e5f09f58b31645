package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/roster"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// pump forwards transport events to the loop in arrival order.
func (c *Coordinator) pump(s *session, events <-chan core.Event) {
	for ev := range events {
		if !c.post(func() { c.handleEvent(s, ev) }) {
			return
		}
	}
}

func (c *Coordinator) handleEvent(s *session, ev core.Event) {
	if s != c.sess || s.tearingDown {
		return
	}
	if s.state != domain.StateConnecting && s.state != domain.StateJoined {
		return
	}

	switch ev.Type {
	case core.EventJoined:
		s.log(log.Debug()).Msg("transport joined")

	case core.EventVolume:
		if s.sampler.Apply(ev.Volumes, s.roster) > 0 {
			c.metrics.VolumeBatch()
			c.publish()
		}

	case core.EventLeft:
		if s.state == domain.StateJoined {
			c.teardown(s, "fault", domain.TransportFault("transport", errTransportLeft))
		}

	case core.EventFault:
		if s.state == domain.StateJoined {
			c.teardown(s, "fault", domain.TransportFault("transport", ev.Err))
			return
		}
		c.fail(s, domain.JoinError("transport", ev.Err))

	case core.EventRemoteJoined, core.EventRemotePublished, core.EventRemoteUnpublished, core.EventRemoteLeft:
		c.reconcile(s, ev)
	}
}

func (c *Coordinator) reconcile(s *session, ev core.Event) {
	wasPublished := s.roster.Published(ev.Remote, ev.Kind)
	out := s.roster.Apply(ev)

	switch out {
	case roster.Dropped:
		c.metrics.Dropped()
		s.log(log.Info()).Uint32("remote", uint32(ev.Remote)).Int("capacity", s.roster.Capacity()).
			Msg("roster full, remote not added")
		return
	case roster.Ignored:
		s.log(log.Debug()).Uint32("remote", uint32(ev.Remote)).Stringer("event", ev.Type).
			Msg("event for local id ignored")
		return
	case roster.Added, roster.Removed:
		s.log(log.Info()).Uint32("remote", uint32(ev.Remote)).Stringer("outcome", out).Msg("roster changed")
	}

	if ev.Type == core.EventRemotePublished && !wasPublished && s.roster.Published(ev.Remote, ev.Kind) {
		s.subscribing.Add(1)
		go func(t core.MediaTransport) {
			defer s.subscribing.Done()
			c.subscribe(s, t, ev.Remote, ev.Kind)
		}(s.transport)
	}
	if out != roster.Unchanged {
		c.publish()
	}
}

func (c *Coordinator) subscribe(s *session, t core.MediaTransport, remote domain.ParticipantID, kind core.TrackKind) {
	if t == nil || s.ctx.Err() != nil {
		return
	}
	if err := t.Subscribe(s.ctx, remote, kind); err != nil {
		s.log(log.Warn()).Err(err).Uint32("remote", uint32(remote)).Str("kind", string(kind)).
			Msg("subscribe failed")
	}
}
