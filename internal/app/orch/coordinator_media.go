package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

// SetMicEnabled soft-mutes the microphone in place; nothing is republished.
func (c *Coordinator) SetMicEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, func() error {
		s := c.sess
		if s == nil || !s.active() || s.tracks.Audio == nil {
			return ErrNoLocalTracks
		}
		if s.mic == enabled {
			return nil
		}
		if err := s.transport.SetTrackEnabled(s.tracks.Audio, enabled); err != nil {
			return err
		}
		s.mic = enabled
		s.roster.SetLocalMedia(s.mic, s.video)
		s.log(log.Info()).Bool("enabled", enabled).Msg("mic toggled")
		c.publish()
		return nil
	})
}

// SetVideoEnabled hard-stops the camera on disable and detaches the local
// surface; enable resumes capture and attaches a fresh surface.
func (c *Coordinator) SetVideoEnabled(ctx context.Context, enabled bool) error {
	return c.call(ctx, func() error {
		s := c.sess
		if s == nil || !s.active() || s.tracks.Video == nil {
			return ErrNoLocalTracks
		}
		if s.video == enabled {
			return nil
		}
		track := s.tracks.Video
		if enabled {
			if err := track.Resume(); err != nil {
				return domain.DeviceError("video", err)
			}
			if err := s.transport.SetTrackEnabled(track, true); err != nil {
				return err
			}
			s.roster.AttachLocal()
		} else {
			if err := s.transport.SetTrackEnabled(track, false); err != nil {
				s.log(log.Warn()).Err(err).Msg("disable video track")
			}
			track.Stop()
			s.roster.DetachLocal()
		}
		s.video = enabled
		s.roster.SetLocalMedia(s.mic, s.video)
		s.log(log.Info()).Bool("enabled", enabled).Msg("video toggled")
		c.publish()
		return nil
	})
}

// active reports whether local media may be toggled.
func (s *session) active() bool {
	return (s.state == domain.StateConnecting || s.state == domain.StateJoined) && !s.tearingDown && s.transport != nil
}
