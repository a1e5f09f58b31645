package browser

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
)

const trackOpTimeout = 5 * time.Second

// localTrack is a handle to a client-owned track.
type localTrack struct {
	client Client
	id     TrackID
	kind   core.TrackKind

	mu     sync.Mutex
	closed bool
}

func (t *localTrack) Kind() core.TrackKind { return t.kind }

func (t *localTrack) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), trackOpTimeout)
	defer cancel()
	if err := t.client.StopTrack(ctx, t.id); err != nil {
		log.Warn().Err(err).Str("module", "browser").Str("track", string(t.id)).Msg("stop track")
	}
}

func (t *localTrack) Resume() error {
	ctx, cancel := context.WithTimeout(context.Background(), trackOpTimeout)
	defer cancel()
	return t.client.SetEnabled(ctx, t.id, true)
}

func (t *localTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), trackOpTimeout)
	defer cancel()
	if err := t.client.StopTrack(ctx, t.id); err != nil {
		log.Debug().Err(err).Str("module", "browser").Str("track", string(t.id)).Msg("stop before close")
	}
	return t.client.CloseTrack(ctx, t.id)
}
