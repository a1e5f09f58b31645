package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrBackpressure = errors.New("signal backpressure")
	ErrSignalClosed = errors.New("signal connection closed")
)

// message is the signaling envelope shared with the room server.
type message struct {
	Type          string                 `json:"type"`
	Room          string                 `json:"room,omitempty"`
	UID           domain.ParticipantID   `json:"uid,omitempty"`
	Token         string                 `json:"token,omitempty"`
	SDP           string                 `json:"sdp,omitempty"`
	Candidate     string                 `json:"candidate,omitempty"`
	SDPMid        string                 `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16                 `json:"sdpMLineIndex,omitempty"`
	Members       []domain.ParticipantID `json:"members,omitempty"`
	Speakers      []speakerLevel         `json:"speakers,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

type speakerLevel struct {
	UID    domain.ParticipantID `json:"uid"`
	Volume int                  `json:"volume"`
}

// signalConn is a websocket client with a buffered writer goroutine.
type signalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// dialSignal connects to url and starts the pumps. onMessage runs on the
// read goroutine; onClose runs once when the connection ends for any reason.
func dialSignal(ctx context.Context, cfg Config, onMessage func(message), onClose func(error)) (*signalConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.SignalURL, nil)
	if err != nil {
		return nil, err
	}
	if cfg.ReadLimit > 0 {
		ws.SetReadLimit(cfg.ReadLimit)
	}
	c := &signalConn{
		conn: ws,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}
	go c.writePump(cfg.PingPeriod)
	go c.readPump(onMessage, onClose)
	return c, nil
}

func (c *signalConn) Send(m message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrSignalClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *signalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
}

func (c *signalConn) writePump(pingPeriod time.Duration) {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Flush what is queued, typically the leave message.
			for {
				select {
				case data := <-c.send:
					_ = c.write(websocket.TextMessage, data)
				default:
					_ = c.write(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "rtc").Msg("signal write error")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "rtc").Msg("signal ping failed")
				return
			}
		}
	}
}

func (c *signalConn) write(kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}

func (c *signalConn) readPump(onMessage func(message), onClose func(error)) {
	var cause error
	defer func() {
		c.Close()
		if onClose != nil {
			onClose(cause)
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				cause = err
			}
			return
		}
		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Msg("bad signal json")
			continue
		}
		onMessage(m)
	}
}

func (c *signalConn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
