// Package rtc is a native engine over pion/webrtc. It talks to a room server
// over a websocket signaling channel, captures local media with
// pion/mediadevices and reports remote speakers from the RTP audio-level
// header extension.
package rtc

import (
	"time"

	"github.com/pion/webrtc/v4"
)

type Config struct {
	SignalURL      string
	ICEServers     []string
	VideoMaxWidth  int
	VideoMaxHeight int
	ReadLimit      int64
	PingPeriod     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ICEServers:     []string{"stun:stun.l.google.com:19302"},
		VideoMaxWidth:  640,
		VideoMaxHeight: 480,
		ReadLimit:      64 << 10,
		PingPeriod:     30 * time.Second,
	}
}

func (c Config) webrtcConfig() webrtc.Configuration {
	if len(c.ICEServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.ICEServers}},
	}
}
