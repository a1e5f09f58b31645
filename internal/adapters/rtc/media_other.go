//go:build !linux

package rtc

import (
	"github.com/pion/webrtc/v4"
)

// capturer has no device drivers off Linux; the engine can still receive.
type capturer struct{}

func newCapturer(Config) (*capturer, error) { return &capturer{}, nil }

func (c *capturer) populate(me *webrtc.MediaEngine) error { return me.RegisterDefaultCodecs() }

func (c *capturer) probe() error { return ErrCaptureUnsupported }

func (c *capturer) audio() (mediaTrack, error) { return nil, ErrCaptureUnsupported }

func (c *capturer) video() (mediaTrack, error) { return nil, ErrCaptureUnsupported }
