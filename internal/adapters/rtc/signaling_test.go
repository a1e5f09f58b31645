package rtc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// roomServer answers join with room_state and, with hangup set, closes the
// connection right after.
func roomServer(t *testing.T, hangup bool) (*httptest.Server, chan message) {
	t.Helper()
	got := make(chan message, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var m message
			if err := ws.ReadJSON(&m); err != nil {
				return
			}
			got <- m
			if m.Type == "join" {
				_ = ws.WriteJSON(message{Type: "room_state", Room: m.Room, Members: []domain.ParticipantID{m.UID, 5}})
				if hangup {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSignalRoundTrip(t *testing.T) {
	srv, got := roomServer(t, false)
	cfg := DefaultConfig()
	cfg.SignalURL = wsURL(srv)

	received := make(chan message, 1)
	closed := make(chan error, 1)
	sig, err := dialSignal(context.Background(), cfg,
		func(m message) { received <- m },
		func(err error) { closed <- err })
	require.NoError(t, err)

	require.NoError(t, sig.Send(message{Type: "join", Room: "lobby", UID: 11}))

	select {
	case m := <-got:
		assert.Equal(t, "join", m.Type)
		assert.Equal(t, "lobby", m.Room)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive join")
	}
	select {
	case m := <-received:
		assert.Equal(t, "room_state", m.Type)
		assert.Len(t, m.Members, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("room_state not delivered")
	}

	sig.Close()
	select {
	case err := <-closed:
		assert.NoError(t, err, "local close reports no cause")
	case <-time.After(2 * time.Second):
		t.Fatal("onClose not called")
	}
	assert.ErrorIs(t, sig.Send(message{Type: "leave"}), ErrSignalClosed)
}

func TestSignalRemoteCloseReportsCause(t *testing.T) {
	srv, _ := roomServer(t, true)
	cfg := DefaultConfig()
	cfg.SignalURL = wsURL(srv)

	closed := make(chan error, 1)
	sig, err := dialSignal(context.Background(), cfg, func(message) {}, func(err error) { closed <- err })
	require.NoError(t, err)
	defer sig.Close()

	require.NoError(t, sig.Send(message{Type: "join", Room: "lobby", UID: 11}))
	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("remote close not reported")
	}
}

func TestDialSignalFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SignalURL = "ws://127.0.0.1:1/none"
	_, err := dialSignal(context.Background(), cfg, func(message) {}, nil)
	assert.Error(t, err)
}
