package rtc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/native"
	"github.com/dkeye/Huddle/internal/domain"
)

const defaultVolumeEvery = 400 * time.Millisecond

var (
	ErrAlreadyInCall  = errors.New("already in channel")
	ErrConnectionLost = errors.New("peer connection failed")
	ErrSignalLost     = errors.New("signaling connection lost")
	errEngineReleased = errors.New("engine released")
)

// Engine implements native.Engine on a single PeerConnection per channel.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	handlers []*native.EventHandler
	capture  *capturer
	audio    mediaTrack
	video    mediaTrack
	audioOn  bool
	videoOn  bool
	interval time.Duration
	released bool

	// per channel
	pc          *webrtc.PeerConnection
	sig         *signalConn
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender
	channel     string
	uid         domain.ParticipantID
	joined      bool
	remotes     *remoteSet
	meter       *levelMeter
	cancel      context.CancelFunc
}

var _ native.Engine = (*Engine)(nil)

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, audioOn: true, videoOn: true, interval: defaultVolumeEvery}
}

func (e *Engine) RegisterEventHandler(h *native.EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

func (e *Engine) UnregisterEventHandler(h *native.EventHandler) {
	e.mu.Lock()
	e.handlers = slices.DeleteFunc(e.handlers, func(x *native.EventHandler) bool { return x == h })
	e.mu.Unlock()
}

func (e *Engine) each(fn func(h *native.EventHandler)) {
	e.mu.Lock()
	hs := slices.Clone(e.handlers)
	e.mu.Unlock()
	for _, h := range hs {
		fn(h)
	}
}

func (e *Engine) RequestPermissions(ctx context.Context) error {
	c, err := e.capturer()
	if err != nil {
		return err
	}
	return c.probe()
}

func (e *Engine) capturer() (*capturer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return nil, errEngineReleased
	}
	if e.capture == nil {
		c, err := newCapturer(e.cfg)
		if err != nil {
			return nil, err
		}
		e.capture = c
	}
	return e.capture, nil
}

func (e *Engine) EnableAudio() error {
	c, err := e.capturer()
	if err != nil {
		return err
	}
	e.mu.Lock()
	have := e.audio != nil
	e.mu.Unlock()
	if have {
		return nil
	}
	track, err := c.audio()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.audio = track
	e.mu.Unlock()
	return nil
}

// EnableVideo prepares the video pipeline; the camera opens with StartPreview.
func (e *Engine) EnableVideo() error {
	_, err := e.capturer()
	return err
}

func (e *Engine) EnableAudioVolumeIndication(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("volume interval %s", interval)
	}
	e.mu.Lock()
	e.interval = interval
	e.mu.Unlock()
	return nil
}

// StartPreview opens the camera and, when in a channel, puts it back on the
// video sender.
func (e *Engine) StartPreview() error {
	c, err := e.capturer()
	if err != nil {
		return err
	}
	e.mu.Lock()
	have := e.video != nil
	e.mu.Unlock()
	if have {
		return nil
	}
	track, err := c.video()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.video = track
	sender, on := e.videoSender, e.videoOn
	e.mu.Unlock()
	if sender != nil && on {
		return sender.ReplaceTrack(track)
	}
	return nil
}

// StopPreview releases the camera device.
func (e *Engine) StopPreview() error {
	e.mu.Lock()
	track, sender := e.video, e.videoSender
	e.video = nil
	e.mu.Unlock()
	if track == nil {
		return nil
	}
	var errs []error
	if sender != nil {
		errs = append(errs, sender.ReplaceTrack(nil))
	}
	errs = append(errs, track.Close())
	return errors.Join(errs...)
}

func (e *Engine) MuteLocalAudioStream(muted bool) error {
	e.mu.Lock()
	e.audioOn = !muted
	sender, track := e.audioSender, e.audio
	e.mu.Unlock()
	return replace(sender, track, muted)
}

func (e *Engine) MuteLocalVideoStream(muted bool) error {
	e.mu.Lock()
	e.videoOn = !muted
	sender, track := e.videoSender, e.video
	e.mu.Unlock()
	return replace(sender, track, muted)
}

func replace(sender *webrtc.RTPSender, track mediaTrack, muted bool) error {
	if sender == nil {
		return nil
	}
	if muted || track == nil {
		return sender.ReplaceTrack(nil)
	}
	return sender.ReplaceTrack(track)
}

// JoinChannel dials the room server, sends join and the initial offer. The
// server's room_state message completes the join through
// OnJoinChannelSuccess.
func (e *Engine) JoinChannel(ctx context.Context, token, channel string, uid domain.ParticipantID) error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return errEngineReleased
	}
	if e.pc != nil {
		e.mu.Unlock()
		return ErrAlreadyInCall
	}
	capture, audio, video := e.capture, e.audio, e.video
	audioOn, videoOn := e.audioOn, e.videoOn
	e.mu.Unlock()

	if capture == nil {
		c, err := e.capturer()
		if err != nil {
			return err
		}
		capture = c
	}
	api, err := newAPI(capture)
	if err != nil {
		return err
	}
	pc, err := api.NewPeerConnection(e.cfg.webrtcConfig())
	if err != nil {
		return err
	}

	audioSender, err := addSender(pc, webrtc.RTPCodecTypeAudio, audio, audioOn)
	if err != nil {
		_ = pc.Close()
		return err
	}
	videoSender, err := addSender(pc, webrtc.RTPCodecTypeVideo, video, videoOn)
	if err != nil {
		_ = pc.Close()
		return err
	}

	chanCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.pc = pc
	e.audioSender, e.videoSender = audioSender, videoSender
	e.channel, e.uid = channel, uid
	e.joined = false
	e.remotes = newRemoteSet()
	e.meter = newLevelMeter()
	e.cancel = cancel
	e.mu.Unlock()

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		e.onTrack(chanCtx, track, receiver)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("channel", channel).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed {
			e.each(func(h *native.EventHandler) {
				if h.OnError != nil {
					h.OnError(ErrConnectionLost)
				}
			})
		}
	})

	sig, err := dialSignal(ctx, e.cfg, e.onSignal, e.onSignalClosed)
	if err != nil {
		e.teardownChannel()
		return err
	}
	e.mu.Lock()
	e.sig = sig
	e.mu.Unlock()

	if err := sig.Send(message{Type: "join", Room: channel, UID: uid, Token: token}); err != nil {
		e.teardownChannel()
		return err
	}
	offer, err := e.localDescription(ctx, pc, func() (webrtc.SessionDescription, error) {
		return pc.CreateOffer(nil)
	})
	if err != nil {
		e.teardownChannel()
		return err
	}
	if err := sig.Send(message{Type: "offer", SDP: offer.SDP}); err != nil {
		e.teardownChannel()
		return err
	}

	go e.reportVolumes(chanCtx)
	return nil
}

func addSender(pc *webrtc.PeerConnection, kind webrtc.RTPCodecType, track mediaTrack, on bool) (*webrtc.RTPSender, error) {
	if track == nil {
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		return nil, err
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	if !on {
		if err := sender.ReplaceTrack(nil); err != nil {
			return nil, err
		}
	}
	return sender, nil
}

// localDescription creates an offer or answer and waits for ICE gathering.
func (e *Engine) localDescription(
	ctx context.Context,
	pc *webrtc.PeerConnection,
	create func() (webrtc.SessionDescription, error),
) (*webrtc.SessionDescription, error) {
	desc, err := create()
	if err != nil {
		return nil, err
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return pc.LocalDescription(), nil
}

func (e *Engine) LeaveChannel() error {
	return e.closeChannel(true)
}

func (e *Engine) closeChannel(sendLeave bool) error {
	e.mu.Lock()
	sig, inChannel := e.sig, e.pc != nil
	e.mu.Unlock()
	if !inChannel {
		return nil
	}
	if sig != nil && sendLeave {
		if err := sig.Send(message{Type: "leave"}); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("send leave")
		}
	}
	err := e.teardownChannel()
	e.each(func(h *native.EventHandler) {
		if h.OnLeaveChannel != nil {
			h.OnLeaveChannel()
		}
	})
	return err
}

func (e *Engine) teardownChannel() error {
	e.mu.Lock()
	pc, sig, remotes, cancel := e.pc, e.sig, e.remotes, e.cancel
	e.pc, e.sig, e.remotes, e.cancel = nil, nil, nil, nil
	e.audioSender, e.videoSender = nil, nil
	e.joined = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if remotes != nil {
		remotes.StopAll()
	}
	if sig != nil {
		sig.Close()
	}
	if pc != nil {
		return pc.Close()
	}
	return nil
}

func (e *Engine) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	audio, video := e.audio, e.video
	e.audio, e.video = nil, nil
	e.handlers = nil
	e.mu.Unlock()

	errs := []error{e.teardownChannel()}
	for _, t := range []mediaTrack{audio, video} {
		if t != nil {
			errs = append(errs, t.Close())
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) onTrack(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	log.Info().
		Str("module", "rtc").
		Str("kind", track.Kind().String()).
		Str("track_id", track.ID()).
		Str("stream_id", track.StreamID()).
		Msg("OnTrack received")

	id, err := strconv.ParseUint(track.StreamID(), 10, 32)
	if err != nil || id == 0 {
		log.Warn().Str("module", "rtc").Str("stream_id", track.StreamID()).Msg("track without participant id")
		return
	}
	uid := domain.ParticipantID(id)

	e.mu.Lock()
	remotes, meter, self := e.remotes, e.meter, e.uid
	e.mu.Unlock()
	if remotes == nil || uid == self {
		return
	}

	var extID uint8
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		extID = audioLevelID(receiver.GetParameters())
	}
	if remotes.Start(ctx, uid, track, extID, meter) {
		e.each(func(h *native.EventHandler) {
			if h.OnUserJoined != nil {
				h.OnUserJoined(uid)
			}
		})
	}
}

func (e *Engine) onSignal(m message) {
	e.mu.Lock()
	pc, sig, meter, remotes := e.pc, e.sig, e.meter, e.remotes
	channel, self, joined := e.channel, e.uid, e.joined
	if m.Type == "room_state" {
		e.joined = true
	}
	e.mu.Unlock()
	if pc == nil {
		return
	}

	switch m.Type {
	case "room_state":
		if !joined {
			e.each(func(h *native.EventHandler) {
				if h.OnJoinChannelSuccess != nil {
					h.OnJoinChannelSuccess(channel, self)
				}
			})
		}
		for _, uid := range m.Members {
			if uid != self && uid != domain.LocalSentinel {
				e.userJoined(uid)
			}
		}
	case "member_joined":
		if m.UID != self {
			e.userJoined(m.UID)
		}
	case "member_left":
		remotes.Stop(m.UID)
		meter.Forget(m.UID)
		e.each(func(h *native.EventHandler) {
			if h.OnUserOffline != nil {
				h.OnUserOffline(m.UID)
			}
		})
	case "speakers":
		for _, s := range m.Speakers {
			meter.Observe(s.UID, s.Volume)
		}
	case "answer":
		if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}); err != nil {
			e.fault(fmt.Errorf("apply answer: %w", err))
		}
	case "offer":
		e.renegotiate(pc, sig, m.SDP)
	case "candidate":
		cand := webrtc.ICECandidateInit{Candidate: m.Candidate}
		if m.SDPMid != "" {
			cand.SDPMid = &m.SDPMid
		}
		cand.SDPMLineIndex = &m.SDPMLineIndex
		if err := pc.AddICECandidate(cand); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("add ice candidate")
		}
	case "left":
		log.Info().Str("module", "rtc").Str("channel", channel).Msg("server closed membership")
		_ = e.closeChannel(false)
	case "error":
		e.fault(errors.New(m.Error))
	case "pong":
	default:
		log.Warn().Str("module", "rtc").Str("type", m.Type).Msg("unknown signal")
	}
}

func (e *Engine) userJoined(uid domain.ParticipantID) {
	e.each(func(h *native.EventHandler) {
		if h.OnUserJoined != nil {
			h.OnUserJoined(uid)
		}
	})
}

func (e *Engine) renegotiate(pc *webrtc.PeerConnection, sig *signalConn, sdp string) {
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		e.fault(fmt.Errorf("apply offer: %w", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	answer, err := e.localDescription(ctx, pc, func() (webrtc.SessionDescription, error) {
		return pc.CreateAnswer(nil)
	})
	if err != nil {
		e.fault(fmt.Errorf("create answer: %w", err))
		return
	}
	if err := sig.Send(message{Type: "answer", SDP: answer.SDP}); err != nil {
		log.Warn().Err(err).Str("module", "rtc").Msg("send answer")
	}
}

func (e *Engine) onSignalClosed(cause error) {
	if cause == nil {
		return
	}
	e.mu.Lock()
	inChannel := e.pc != nil
	e.mu.Unlock()
	if inChannel {
		e.fault(fmt.Errorf("%w: %w", ErrSignalLost, cause))
	}
}

func (e *Engine) fault(err error) {
	log.Error().Err(err).Str("module", "rtc").Msg("engine error")
	e.each(func(h *native.EventHandler) {
		if h.OnError != nil {
			h.OnError(err)
		}
	})
}

func (e *Engine) reportVolumes(ctx context.Context) {
	e.mu.Lock()
	interval, meter, self := e.interval, e.meter, e.uid
	e.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			speakers := meter.Drain(self)
			if len(speakers) == 0 {
				continue
			}
			e.each(func(h *native.EventHandler) {
				if h.OnAudioVolumeIndication != nil {
					h.OnAudioVolumeIndication(speakers)
				}
			})
		}
	}
}
