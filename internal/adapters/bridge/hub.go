package bridge

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ReadLimit  int64
	PingPeriod time.Duration
}

// Hub holds the single attached engine page. A newly attached page replaces
// the previous one.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu    sync.Mutex
	page  *Page
	ready chan struct{}
}

func NewHub(cfg Config) *Hub {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ready: make(chan struct{}),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "bridge").Msg("ws upgrade")
		return
	}
	if h.cfg.ReadLimit > 0 {
		ws.SetReadLimit(h.cfg.ReadLimit)
	}

	p := newPage(ws)
	h.attach(p)
	log.Info().Str("module", "bridge").Str("remote_addr", r.RemoteAddr).Msg("engine page attached")

	go p.writePump(h.cfg.PingPeriod)
	go func() {
		p.readPump()
		h.detach(p)
		log.Info().Str("module", "bridge").Msg("engine page detached")
	}()
}

func (h *Hub) attach(p *Page) {
	h.mu.Lock()
	old := h.page
	h.page = p
	select {
	case <-h.ready:
	default:
		close(h.ready)
	}
	h.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (h *Hub) detach(p *Page) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.page != p {
		return
	}
	h.page = nil
	h.ready = make(chan struct{})
}

// Page waits until a page is attached or ctx ends.
func (h *Hub) Page(ctx context.Context) (*Page, error) {
	for {
		h.mu.Lock()
		p, ready := h.page, h.ready
		h.mu.Unlock()
		if p != nil {
			return p, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Attached reports whether a page is currently connected.
func (h *Hub) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.page != nil
}
