// Package roster maintains the authoritative participant set for a room,
// fed by discrete status broadcasts and coarse presence snapshots.
package roster

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/huddle-chat/huddle/internal/logging"
	"github.com/huddle-chat/huddle/internal/signaling"
)

// Participant is one room member's displayed state, local user included.
type Participant struct {
	ID       string
	Name     string
	Muted    bool
	Speaking bool
	HasVideo bool

	// LastSeen is the last time any signaling or presence activity was
	// observed for this participant. Drives the implicit-leave sweep.
	LastSeen time.Time
}

// Roster owns the participant map. The session loop is the only writer;
// presentation reads copies via Participants.
type Roster struct {
	mu      sync.RWMutex
	selfID  string
	members map[string]*Participant
	log     *slog.Logger
	now     func() time.Time
}

// New creates a roster seeded with the local participant. The local entry
// is never evicted by snapshots or sweeps.
func New(selfID, selfName string) *Roster {
	r := &Roster{
		selfID:  selfID,
		members: make(map[string]*Participant),
		log:     logging.Component("roster"),
		now:     time.Now,
	}
	r.members[selfID] = &Participant{ID: selfID, Name: selfName, LastSeen: r.now()}
	return r
}

// SelfID returns the local participant's id.
func (r *Roster) SelfID() string {
	return r.selfID
}

// Joined inserts a participant if absent and reports whether it was new.
// Duplicate joins are no-ops: a sender retrying after a transport reconnect
// must not reset status fields already learned from other broadcasts.
func (r *Roster) Joined(id, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.members[id]; ok {
		p.LastSeen = r.now()
		return false
	}
	r.members[id] = &Participant{ID: id, Name: name, LastSeen: r.now()}
	return true
}

// Left removes a participant. Reports whether it existed.
func (r *Roster) Left(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// Reconcile applies a full presence snapshot: members present in the
// snapshot but unknown locally are added with neutral status, local
// entries missing from the snapshot are evicted. The local participant is
// always retained; this session is the authority on its own presence.
// Returns the ids added and the ids removed.
func (r *Roster) Reconcile(records []signaling.PresenceRecord) (added, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.ID] = true
		if p, ok := r.members[rec.ID]; ok {
			p.LastSeen = r.now()
			// Heal a name-less entry created from an envelope sighting.
			if p.Name == "" && rec.Name != "" {
				p.Name = rec.Name
			}
			continue
		}
		// Snapshots carry mute but not speaking/video; those start neutral
		// and catch up from the next broadcasts.
		r.members[rec.ID] = &Participant{
			ID:       rec.ID,
			Name:     rec.Name,
			Muted:    rec.Muted,
			LastSeen: r.now(),
		}
		added = append(added, rec.ID)
	}

	for id := range r.members {
		if id == r.selfID || seen[id] {
			continue
		}
		delete(r.members, id)
		removed = append(removed, id)
	}
	return added, removed
}

// SetMuted updates the mute flag if the participant exists.
func (r *Roster) SetMuted(id string, muted bool) {
	r.setStatus(id, func(p *Participant) { p.Muted = muted })
}

// SetSpeaking updates the speaking flag if the participant exists.
func (r *Roster) SetSpeaking(id string, speaking bool) {
	r.setStatus(id, func(p *Participant) { p.Speaking = speaking })
}

// SetVideo updates the video flag if the participant exists.
func (r *Roster) SetVideo(id string, hasVideo bool) {
	r.setStatus(id, func(p *Participant) { p.HasVideo = hasVideo })
}

func (r *Roster) setStatus(id string, apply func(*Participant)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.members[id]
	if !ok {
		// The participant may have already left; stale updates are fine.
		r.log.Debug("status update for unknown participant", "id", id)
		return
	}
	apply(p)
	p.LastSeen = r.now()
}

// Touch records activity for a participant without changing status.
func (r *Roster) Touch(id string) {
	r.setStatus(id, func(*Participant) {})
}

// Get returns a copy of one participant.
func (r *Roster) Get(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.members[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Participants returns copies of all members sorted by name then id, self
// first, for stable presentation.
func (r *Roster) Participants() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].ID == r.selfID) != (out[j].ID == r.selfID) {
			return out[i].ID == r.selfID
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Stale returns remote ids with no observed activity within the grace
// window. The local participant is never reported.
func (r *Roster) Stale(grace time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().Add(-grace)
	var stale []string
	for id, p := range r.members {
		if id == r.selfID {
			continue
		}
		if p.LastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// Clear drops every entry including self. Used on session teardown.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[string]*Participant)
}

// Size returns the number of participants, self included.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
