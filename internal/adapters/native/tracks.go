package native

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
)

// micTrack soft-mutes through the engine; the device stays open.
type micTrack struct {
	engine Engine

	mu     sync.Mutex
	closed bool
}

func (m *micTrack) Kind() core.TrackKind { return core.TrackAudio }

func (m *micTrack) Stop() { _ = m.engine.MuteLocalAudioStream(true) }

func (m *micTrack) Resume() error { return m.engine.MuteLocalAudioStream(false) }

func (m *micTrack) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.engine.MuteLocalAudioStream(true)
}

// cameraTrack maps Stop and Resume onto the engine preview, which owns the
// camera device.
type cameraTrack struct {
	engine Engine

	mu         sync.Mutex
	previewing bool
	closed     bool
}

func (c *cameraTrack) Kind() core.TrackKind { return core.TrackVideo }

func (c *cameraTrack) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.previewing {
		return
	}
	c.previewing = false
	_ = c.engine.StopPreview()
}

func (c *cameraTrack) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.previewing || c.closed {
		return nil
	}
	if err := c.engine.StartPreview(); err != nil {
		return err
	}
	c.previewing = true
	return nil
}

func (c *cameraTrack) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.previewing {
		return nil
	}
	c.previewing = false
	return c.engine.StopPreview()
}
