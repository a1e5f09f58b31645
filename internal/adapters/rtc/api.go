package rtc

import (
	"errors"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var (
	ErrNoDevices          = errors.New("no capture device")
	ErrCaptureUnsupported = errors.New("media capture unsupported on this platform")
)

// mediaTrack is a captured local track.
type mediaTrack interface {
	webrtc.TrackLocal
	Close() error
}

func newAPI(c *capturer) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := c.populate(mediaEngine); err != nil {
		return nil, err
	}
	if err := mediaEngine.RegisterHeaderExtension(
		webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI},
		webrtc.RTPCodecTypeAudio,
	); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(10*time.Second, 30*time.Second, 2*time.Second)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	), nil
}

// audioLevelID finds the negotiated id of the audio-level extension.
func audioLevelID(params webrtc.RTPParameters) uint8 {
	for _, ext := range params.HeaderExtensions {
		if ext.URI == sdp.AudioLevelURI {
			return uint8(ext.ID)
		}
	}
	return 0
}
