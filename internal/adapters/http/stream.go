package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/orch"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// snapshotStream pushes every published snapshot to one websocket client.
type snapshotStream struct {
	ctx        context.Context
	call       CallService
	readLimit  int64
	pingPeriod time.Duration
}

func (s *snapshotStream) serve(c *gin.Context) {
	sid := c.GetString("client_token")
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}
	if s.readLimit > 0 {
		ws.SetReadLimit(s.readLimit)
	}
	log.Info().Str("module", "adapters.http").Str("sid", sid).Msg("snapshot stream attached")

	updates, cancel := s.call.Subscribe()
	done := make(chan struct{})
	go s.readPump(ws, done)
	go func() {
		defer cancel()
		s.writePump(ws, updates, done)
		log.Info().Str("module", "adapters.http").Str("sid", sid).Msg("snapshot stream closed")
	}()
}

// readPump discards client frames and reports disconnect by closing done.
func (s *snapshotStream) readPump(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *snapshotStream) writePump(ws *websocket.Conn, updates <-chan orch.Snapshot, done <-chan struct{}) {
	period := s.pingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ticker := time.NewTicker(period)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		case snap, ok := <-updates:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
				return
			}
			if err := writeSnapshot(ws, snap); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("snapshot write error")
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(ws *websocket.Conn, snap orch.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, b)
}
