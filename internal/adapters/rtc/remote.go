package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

type trackState int32

const (
	trackStateOk trackState = iota
	trackStateDelete
)

// remoteTrack drains one incoming track; audio packets feed the level meter.
type remoteTrack struct {
	src   *webrtc.TrackRemote
	uid   domain.ParticipantID
	extID uint8
	state atomic.Int32

	cancel context.CancelFunc
}

func (r *remoteTrack) markDelete() {
	r.state.Store(int32(trackStateDelete))
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *remoteTrack) loop(ctx context.Context, meter *levelMeter, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track read stopped")
			return
		}
		if trackState(r.state.Load()) == trackStateDelete {
			return
		}
		if level, ok := parseAudioLevel(pkt, r.extID); ok {
			meter.Observe(r.uid, level)
		}
	}
}

// remoteSet tracks the readers per remote uid.
type remoteSet struct {
	mu     sync.Mutex
	tracks map[domain.ParticipantID][]*remoteTrack
}

func newRemoteSet() *remoteSet {
	return &remoteSet{tracks: make(map[domain.ParticipantID][]*remoteTrack)}
}

// Start reports whether uid was unseen before this track.
func (s *remoteSet) Start(ctx context.Context, uid domain.ParticipantID, src *webrtc.TrackRemote, extID uint8, meter *levelMeter) bool {
	logger := log.With().
		Str("module", "rtc").
		Uint32("remote", uint32(uid)).
		Str("kind", src.Kind().String()).
		Logger()

	trackCtx, cancel := context.WithCancel(ctx)
	rt := &remoteTrack{src: src, uid: uid, extID: extID, cancel: cancel}

	s.mu.Lock()
	_, seen := s.tracks[uid]
	s.tracks[uid] = append(s.tracks[uid], rt)
	s.mu.Unlock()

	logger.Info().Msg("remote track started")
	go rt.loop(trackCtx, meter, &logger)
	return !seen
}

func (s *remoteSet) Stop(uid domain.ParticipantID) {
	s.mu.Lock()
	tracks := s.tracks[uid]
	delete(s.tracks, uid)
	s.mu.Unlock()
	for _, rt := range tracks {
		rt.markDelete()
	}
}

func (s *remoteSet) StopAll() {
	s.mu.Lock()
	all := s.tracks
	s.tracks = make(map[domain.ParticipantID][]*remoteTrack)
	s.mu.Unlock()
	for _, tracks := range all {
		for _, rt := range tracks {
			rt.markDelete()
		}
	}
}

func (s *remoteSet) Has(uid domain.ParticipantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[uid]
	return ok
}
