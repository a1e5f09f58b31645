package rtc

import (
	"slices"
	"sync"

	"github.com/pion/rtp"

	"github.com/dkeye/Huddle/internal/adapters/native"
	"github.com/dkeye/Huddle/internal/domain"
)

// levelFromDBov maps an RFC 6464 level (0 loudest, 127 silence) onto 0..100.
func levelFromDBov(dbov uint8) int {
	if dbov > 127 {
		dbov = 127
	}
	return 100 - int(dbov)*100/127
}

// parseAudioLevel reads the audio-level extension with id from pkt.
func parseAudioLevel(pkt *rtp.Packet, id uint8) (int, bool) {
	if id == 0 {
		return 0, false
	}
	raw := pkt.GetExtension(id)
	if raw == nil {
		return 0, false
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(raw); err != nil {
		return 0, false
	}
	return levelFromDBov(ext.Level), true
}

// levelMeter keeps the loudest level per uid since the last drain.
type levelMeter struct {
	mu     sync.Mutex
	levels map[domain.ParticipantID]int
}

func newLevelMeter() *levelMeter {
	return &levelMeter{levels: make(map[domain.ParticipantID]int)}
}

func (m *levelMeter) Observe(uid domain.ParticipantID, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.levels[uid]; !ok || level > cur {
		m.levels[uid] = level
	}
}

func (m *levelMeter) Forget(uid domain.ParticipantID) {
	m.mu.Lock()
	delete(m.levels, uid)
	m.mu.Unlock()
}

// Drain returns the collected speakers sorted by uid and resets the meter.
// self is reported as uid 0.
func (m *levelMeter) Drain(self domain.ParticipantID) []native.Speaker {
	m.mu.Lock()
	levels := m.levels
	m.levels = make(map[domain.ParticipantID]int, len(levels))
	m.mu.Unlock()

	out := make([]native.Speaker, 0, len(levels))
	for uid, level := range levels {
		if uid == self {
			uid = domain.LocalSentinel
		}
		out = append(out, native.Speaker{UID: uid, Volume: level})
	}
	slices.SortFunc(out, func(a, b native.Speaker) int { return int(a.UID) - int(b.UID) })
	return out
}
