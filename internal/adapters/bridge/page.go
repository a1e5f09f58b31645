// Package bridge drives a browser-hosted web engine over a websocket. The
// page answers JSON-RPC style requests and pushes client notifications.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrPageGone     = errors.New("engine page disconnected")
	ErrBackpressure = errors.New("engine page backpressure")
)

// RemoteError is an error reported by the page for one request.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("%s: %s", e.Method, e.Message) }

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// inbound is either a response (ID set) or a notification (Event set).
type inbound struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type listener struct {
	owner uint64
	fn    func(json.RawMessage)
}

// Page is one attached browser page.
type Page struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	pending   map[string]chan inbound
	listeners map[string][]listener
}

func newPage(conn *websocket.Conn) *Page {
	return &Page{
		conn:      conn,
		send:      make(chan []byte, 32),
		done:      make(chan struct{}),
		pending:   make(map[string]chan inbound),
		listeners: make(map[string][]listener),
	}
}

// Done is closed when the page disconnects.
func (p *Page) Done() <-chan struct{} { return p.done }

func (p *Page) Close() {
	p.once.Do(func() {
		close(p.done)
	})
}

// Call sends method with params and decodes the result into out.
func (p *Page) Call(ctx context.Context, method string, params, out any) error {
	id := uuid.NewString()
	b, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	reply := make(chan inbound, 1)
	p.mu.Lock()
	p.pending[id] = reply
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	select {
	case <-p.done:
		return ErrPageGone
	default:
	}
	select {
	case p.send <- b:
	default:
		return ErrBackpressure
	}

	select {
	case resp := <-reply:
		if resp.Error != "" {
			return &RemoteError{Method: method, Message: resp.Error}
		}
		if out != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, out)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPageGone
	}
}

func (p *Page) on(owner uint64, event string, fn func(json.RawMessage)) {
	p.mu.Lock()
	p.listeners[event] = append(p.listeners[event], listener{owner: owner, fn: fn})
	p.mu.Unlock()
}

func (p *Page) off(owner uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for event, ls := range p.listeners {
		kept := ls[:0]
		for _, l := range ls {
			if l.owner != owner {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(p.listeners, event)
		} else {
			p.listeners[event] = kept
		}
	}
}

func (p *Page) dispatch(m inbound) {
	p.mu.Lock()
	if m.Event == "" {
		reply, ok := p.pending[m.ID]
		p.mu.Unlock()
		if !ok {
			log.Debug().Str("module", "bridge").Str("id", m.ID).Msg("late response dropped")
			return
		}
		select {
		case reply <- m:
		default:
		}
		return
	}
	ls := append([]listener(nil), p.listeners[m.Event]...)
	p.mu.Unlock()
	for _, l := range ls {
		l.fn(m.Data)
	}
}

func (p *Page) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()
	for {
		select {
		case <-p.done:
			_ = p.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-p.send:
			if err := p.write(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "bridge").Msg("writePump write error")
				p.Close()
				return
			}
		case <-ticker.C:
			if err := p.write(websocket.PingMessage, nil); err != nil {
				log.Warn().Err(err).Str("module", "bridge").Msg("writePump ping failed")
				p.Close()
				return
			}
		}
	}
}

func (p *Page) write(kind int, data []byte) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return p.conn.WriteMessage(kind, data)
}

func (p *Page) readPump() {
	defer p.Close()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "bridge").Msg("readPump closing")
			return
		}
		var m inbound
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Str("module", "bridge").Msg("bad json")
			continue
		}
		p.dispatch(m)
	}
}
