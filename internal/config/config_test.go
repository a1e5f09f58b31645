package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 4, cfg.Call.MaxParticipants)
	assert.Equal(t, 10, cfg.Call.SpeakingThreshold)
	assert.Equal(t, 400*time.Millisecond, cfg.Call.VolumeInterval)
	assert.Equal(t, 30*time.Second, cfg.Call.JoinTimeout)
	assert.Equal(t, TransportNative, cfg.Transport.Kind)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.Transport.ICEServers)
}

func TestLoadNestedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	writeFile(t, path, `
mode: debug
port: 9000
call:
  max_participants: 6
  speaking_threshold: 25
  join_timeout: 0s
transport:
  kind: browser
  ice_servers: ["stun:a", "turn:b"]
store:
  path: /tmp/h.db
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 6, cfg.Call.MaxParticipants)
	assert.Equal(t, 25, cfg.Call.SpeakingThreshold)
	assert.Zero(t, cfg.Call.JoinTimeout)
	assert.Equal(t, 5*time.Second, cfg.Call.LeaveTimeout)
	assert.Equal(t, TransportBrowser, cfg.Transport.Kind)
	assert.Equal(t, []string{"stun:a", "turn:b"}, cfg.Transport.ICEServers)
	assert.Equal(t, "/tmp/h.db", cfg.Store.Path)
}

func TestRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, `
call:
  max_participants: 1
  speaking_threshold: 140
transport:
  kind: carrier-pigeon
`)
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "transport.kind")
	assert.ErrorContains(t, err, "max_participants")
	assert.ErrorContains(t, err, "speaking_threshold")
}

func TestWatchAppliesThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.yaml")
	writeFile(t, path, "call:\n  speaking_threshold: 10\n")
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	got := make(chan int, 8)
	cfg.Watch(func(next *Config) { got <- next.Call.SpeakingThreshold })

	writeFile(t, path, "call:\n  speaking_threshold: 42\n")
	assert.Eventually(t, func() bool {
		for {
			select {
			case v := <-got:
				if v == 42 {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 20*time.Millisecond)
}
