//go:build linux

package rtc

import (
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

// capturer opens camera and microphone through V4L2 and malgo.
type capturer struct {
	selector   *mediadevices.CodecSelector
	maxW, maxH int
}

func newCapturer(cfg Config) (*capturer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &capturer{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		maxW: cfg.VideoMaxWidth,
		maxH: cfg.VideoMaxHeight,
	}, nil
}

func (c *capturer) populate(me *webrtc.MediaEngine) error {
	c.selector.Populate(me)
	return nil
}

func (c *capturer) probe() error {
	var camera, mic bool
	for _, d := range mediadevices.EnumerateDevices() {
		switch d.Kind {
		case mediadevices.VideoInput:
			camera = true
		case mediadevices.AudioInput:
			mic = true
		}
	}
	switch {
	case !camera && !mic:
		return fmt.Errorf("%w: camera and microphone", ErrNoDevices)
	case !camera:
		return fmt.Errorf("%w: camera", ErrNoDevices)
	case !mic:
		return fmt.Errorf("%w: microphone", ErrNoDevices)
	}
	return nil
}

func (c *capturer) audio() (mediaTrack, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: c.selector,
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: microphone", ErrNoDevices)
	}
	return tracks[0], nil
}

func (c *capturer) video() (mediaTrack, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(m *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some cameras poison the VP8 encoder.
			m.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			if c.maxW > 0 {
				m.Width = prop.IntRanged{Max: c.maxW}
			}
			if c.maxH > 0 {
				m.Height = prop.IntRanged{Max: c.maxH}
			}
		},
		Codec: c.selector,
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: camera", ErrNoDevices)
	}
	return tracks[0], nil
}
