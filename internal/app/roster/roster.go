// Package roster keeps the ordered, capacity-bounded participant list of one
// call session and reconciles raw transport events into it.
package roster

import (
	"slices"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

const DefaultCapacity = 4

// Outcome reports what one event did to the roster.
type Outcome int

const (
	Unchanged Outcome = iota
	Added
	Updated
	Removed
	// Dropped means a new remote arrived while the roster was full.
	Dropped
	// Ignored means the event named an id that can never be a remote.
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Dropped:
		return "dropped"
	case Ignored:
		return "ignored"
	default:
		return "unchanged"
	}
}

// Subscription is one remote track the session consumes.
type Subscription struct {
	ID   domain.ParticipantID
	Kind core.TrackKind
}

// Reconciler owns the roster. It is not safe for concurrent use; the
// coordinator loop is its only writer.
type Reconciler struct {
	capacity int
	localID  domain.ParticipantID
	entries  []domain.Participant
	// published holds the remote tracks currently announced per participant.
	published map[domain.ParticipantID]map[core.TrackKind]struct{}
	epoch     uint64
	dropped   int
}

func New(capacity int, localID domain.ParticipantID) *Reconciler {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Reconciler{
		capacity:  capacity,
		localID:   localID,
		entries:   make([]domain.Participant, 0, capacity),
		published: make(map[domain.ParticipantID]map[core.TrackKind]struct{}),
	}
}

func (r *Reconciler) Capacity() int { return r.capacity }
func (r *Reconciler) Len() int      { return len(r.entries) }
func (r *Reconciler) Dropped() int  { return r.dropped }

// Apply runs one transport event through the reconciliation rules.
func (r *Reconciler) Apply(ev core.Event) Outcome {
	switch ev.Type {
	case core.EventRemoteJoined:
		out := r.upsert(ev.Remote)
		if out == Added {
			// Callback engines render any joined id without a publish signal.
			r.attach(r.index(ev.Remote))
		}
		return out

	case core.EventRemotePublished:
		out := r.upsert(ev.Remote)
		if out == Dropped || out == Ignored {
			return out
		}
		r.markPublished(ev.Remote, ev.Kind, true)
		if ev.Kind == core.TrackVideo {
			r.attach(r.index(ev.Remote))
			if out == Unchanged {
				out = Updated
			}
		}
		return out

	case core.EventRemoteUnpublished:
		if !r.validRemote(ev.Remote) {
			return Ignored
		}
		i := r.index(ev.Remote)
		if i < 0 {
			return Unchanged
		}
		r.markPublished(ev.Remote, ev.Kind, false)
		if ev.Kind == core.TrackVideo && r.entries[i].Surface.Attached {
			r.entries[i].Surface.Attached = false
			return Updated
		}
		return Unchanged

	case core.EventRemoteLeft:
		if !r.validRemote(ev.Remote) {
			return Ignored
		}
		if r.remove(ev.Remote) {
			return Removed
		}
		return Unchanged
	}
	return Unchanged
}

// SetLocal places the local participant at position 0, replacing a previous
// local entry.
func (r *Reconciler) SetLocal(p domain.Participant) {
	p.IsLocal = true
	if len(r.entries) > 0 && r.entries[0].IsLocal {
		r.entries[0] = p
		return
	}
	r.entries = slices.Insert(r.entries, 0, p)
}

func (r *Reconciler) Local() (domain.Participant, bool) {
	if len(r.entries) > 0 && r.entries[0].IsLocal {
		return r.entries[0], true
	}
	return domain.Participant{}, false
}

func (r *Reconciler) SetLocalMedia(mic, video bool) {
	if len(r.entries) == 0 || !r.entries[0].IsLocal {
		return
	}
	r.entries[0].MicEnabled = mic
	r.entries[0].VideoEnabled = video
}

func (r *Reconciler) AttachLocal() {
	if len(r.entries) > 0 && r.entries[0].IsLocal {
		r.attach(0)
	}
}

func (r *Reconciler) DetachLocal() {
	if len(r.entries) > 0 && r.entries[0].IsLocal {
		r.entries[0].Surface.Attached = false
	}
}

// SetVolume stores level on the entry with id. Unknown ids are ignored.
func (r *Reconciler) SetVolume(id domain.ParticipantID, level int) bool {
	i := r.index(id)
	if i < 0 {
		return false
	}
	r.entries[i].VolumeLevel = level
	return true
}

func (r *Reconciler) Has(id domain.ParticipantID) bool { return r.index(id) >= 0 }

func (r *Reconciler) Published(id domain.ParticipantID, kind core.TrackKind) bool {
	_, ok := r.published[id][kind]
	return ok
}

// Subscriptions lists the remote tracks to release at teardown, in roster
// order, audio before video.
func (r *Reconciler) Subscriptions() []Subscription {
	var out []Subscription
	for _, p := range r.entries {
		if p.IsLocal {
			continue
		}
		for _, kind := range []core.TrackKind{core.TrackAudio, core.TrackVideo} {
			if r.Published(p.ID, kind) {
				out = append(out, Subscription{ID: p.ID, Kind: kind})
			}
		}
	}
	return out
}

// Snapshot returns a copy safe to hand to readers.
func (r *Reconciler) Snapshot() []domain.Participant {
	return slices.Clone(r.entries)
}

func (r *Reconciler) Clear() {
	r.entries = r.entries[:0]
	clear(r.published)
}

func (r *Reconciler) validRemote(id domain.ParticipantID) bool {
	return id != domain.LocalSentinel && id != r.localID
}

func (r *Reconciler) remoteCount() int {
	n := len(r.entries)
	if n > 0 && r.entries[0].IsLocal {
		n--
	}
	return n
}

func (r *Reconciler) upsert(id domain.ParticipantID) Outcome {
	if !r.validRemote(id) {
		return Ignored
	}
	if r.index(id) >= 0 {
		return Unchanged
	}
	// One slot always stays reserved for the local participant.
	if r.remoteCount() >= r.capacity-1 {
		r.dropped++
		return Dropped
	}
	r.entries = append(r.entries, domain.NewRemoteParticipant(id))
	return Added
}

func (r *Reconciler) remove(id domain.ParticipantID) bool {
	i := r.index(id)
	if i < 0 {
		return false
	}
	r.entries = slices.Delete(r.entries, i, i+1)
	delete(r.published, id)
	return true
}

func (r *Reconciler) attach(i int) {
	if i < 0 {
		return
	}
	r.epoch++
	r.entries[i].Surface.Attached = true
	r.entries[i].Surface.Epoch = r.epoch
}

func (r *Reconciler) markPublished(id domain.ParticipantID, kind core.TrackKind, on bool) {
	kinds, ok := r.published[id]
	if !on {
		if ok {
			delete(kinds, kind)
			if len(kinds) == 0 {
				delete(r.published, id)
			}
		}
		return
	}
	if !ok {
		kinds = make(map[core.TrackKind]struct{}, 2)
		r.published[id] = kinds
	}
	kinds[kind] = struct{}{}
}

func (r *Reconciler) index(id domain.ParticipantID) int {
	return slices.IndexFunc(r.entries, func(p domain.Participant) bool { return p.ID == id })
}
