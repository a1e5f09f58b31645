// Package volume maps transport audio levels onto roster entries for
// active-speaker highlighting.
package volume

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const (
	DefaultThreshold = 10
	MaxLevel         = 100
)

// Target receives resolved levels. It reports false for ids it does not hold.
type Target interface {
	SetVolume(id domain.ParticipantID, level int) bool
}

// Sampler is owned by the coordinator loop and is not safe for concurrent use.
type Sampler struct {
	localID   domain.ParticipantID
	threshold int
	running   bool
}

func New(localID domain.ParticipantID, threshold int) *Sampler {
	return &Sampler{localID: localID, threshold: threshold}
}

func (s *Sampler) Start()        { s.running = true }
func (s *Sampler) Stop()         { s.running = false }
func (s *Sampler) Running() bool { return s.running }

func (s *Sampler) SetThreshold(v int) { s.threshold = v }
func (s *Sampler) Threshold() int     { return s.threshold }

// Resolve maps the transport-local sentinel onto the session's local id.
func (s *Sampler) Resolve(id domain.ParticipantID) domain.ParticipantID {
	if id == domain.LocalSentinel {
		return s.localID
	}
	return id
}

// Apply stores every sample of batch on the matching entry of t and returns
// how many entries were updated. Entries missing from the batch keep their
// last level. Batches are ignored while the sampler is stopped.
func (s *Sampler) Apply(batch []core.VolumeSample, t Target) int {
	if !s.running {
		return 0
	}
	n := 0
	for _, sample := range batch {
		if t.SetVolume(s.Resolve(sample.ID), clamp(sample.Level)) {
			n++
		}
	}
	return n
}

func (s *Sampler) Speaking(level int) bool { return level > s.threshold }

func clamp(level int) int {
	return max(0, min(level, MaxLevel))
}
