// Package session coordinates peer connections for one room: it turns the
// asynchronous stream of signaling events into a consistent set of live
// links and an accurate roster, tolerating races, duplicates and churn.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/huddle-chat/huddle/internal/config"
	"github.com/huddle-chat/huddle/internal/logging"
	"github.com/huddle-chat/huddle/internal/media"
	"github.com/huddle-chat/huddle/internal/roster"
	"github.com/huddle-chat/huddle/internal/signaling"
	"github.com/huddle-chat/huddle/internal/voice"
)

// maxHeldCandidates bounds per-peer buffering of candidates that arrive
// before any link exists. Candidates past the bound, or older than the
// configured TTL, are dropped: that level of reordering is not recoverable.
const maxHeldCandidates = 16

// Session owns the peer-link map and the roster for one joined room. All
// link and roster mutation happens on the run loop goroutine; pion
// callbacks, timers and the public API communicate through loop events, so
// logical races (glare, teardown during an in-flight negotiation) resolve
// at a single point.
type Session struct {
	cfg       *config.Config
	transport signaling.Transport
	gate      *media.Gate
	roster    *roster.Roster
	debounce  *voice.Debouncer
	log       *slog.Logger

	selfID string
	name   string

	// loop-owned state
	muted       bool
	hasVideo    bool
	links       map[string]*PeerLink
	awaitingCap map[string]bool
	held        map[string][]heldCandidate
	nextEpoch   uint64

	loopCh  chan loopEvent
	quit    chan struct{}
	stopped chan struct{}

	// presentation-facing view, readable from any goroutine
	viewMu      sync.RWMutex
	remoteMedia map[string]RemoteMedia
	linkStates  map[string]LinkState
	onMedia     func(RemoteMedia)
}

type heldCandidate struct {
	raw []byte
	at  time.Time
}

type loopEvent interface{ isLoopEvent() }

type evLocalCandidate struct {
	remoteID string
	epoch    uint64
	raw      []byte
}

type evTrack struct {
	remoteID string
	epoch    uint64
	track    *webrtc.TrackRemote
}

type evLinkFailed struct {
	remoteID string
	epoch    uint64
}

type evCapture struct{ cap *media.Capture }

type evSpeakingEdge struct {
	id       string
	speaking bool
}

type evSetMuted struct{ muted bool }

type evLeave struct{ done chan error }

func (evLocalCandidate) isLoopEvent() {}
func (evTrack) isLoopEvent()          {}
func (evLinkFailed) isLoopEvent()     {}
func (evCapture) isLoopEvent()        {}
func (evSpeakingEdge) isLoopEvent()   {}
func (evSetMuted) isLoopEvent()       {}
func (evLeave) isLoopEvent()          {}

// New builds a session around an explicitly owned transport and media gate.
// Nothing is broadcast until Start.
func New(cfg *config.Config, transport signaling.Transport, gate *media.Gate) *Session {
	s := &Session{
		cfg:         cfg,
		transport:   transport,
		gate:        gate,
		log:         logging.Component("session"),
		selfID:      uuid.NewString(),
		name:        cfg.DisplayName,
		links:       make(map[string]*PeerLink),
		awaitingCap: make(map[string]bool),
		held:        make(map[string][]heldCandidate),
		loopCh:      make(chan loopEvent, 64),
		quit:        make(chan struct{}),
		stopped:     make(chan struct{}),
		remoteMedia: make(map[string]RemoteMedia),
		linkStates:  make(map[string]LinkState),
	}
	s.roster = roster.New(s.selfID, s.name)
	s.debounce = voice.New(cfg.SpeakingHold, func(id string, speaking bool) {
		s.post(evSpeakingEdge{id: id, speaking: speaking})
	})
	gate.OnChange(func(cap *media.Capture) {
		s.post(evCapture{cap: cap})
	})
	return s
}

// SelfID returns the local participant id for this session.
func (s *Session) SelfID() string { return s.selfID }

// OnRemoteMedia registers a hook invoked whenever a peer's remote media
// changes. Must be set before Start. Attaching the media to a renderable
// surface is entirely the caller's concern.
func (s *Session) OnRemoteMedia(fn func(RemoteMedia)) { s.onMedia = fn }

// Start announces the local participant and begins coordinating.
func (s *Session) Start() {
	s.transport.Broadcast(signaling.Joined{ID: s.selfID, Name: s.name})
	s.transport.PublishPresence(s.presenceRecord())
	go s.run()
}

// Participants returns a read-only snapshot of the roster.
func (s *Session) Participants() []roster.Participant {
	return s.roster.Participants()
}

// RemoteMedia returns the current remote media per connected peer.
func (s *Session) RemoteMedia() map[string]RemoteMedia {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	out := make(map[string]RemoteMedia, len(s.remoteMedia))
	for id, m := range s.remoteMedia {
		out[id] = m
	}
	return out
}

// LinkStates returns the per-peer connection state for presentation. A
// roster member with no entry here is still connecting, which is a
// reportable state rather than an error.
func (s *Session) LinkStates() map[string]LinkState {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	out := make(map[string]LinkState, len(s.linkStates))
	for id, st := range s.linkStates {
		out[id] = st
	}
	return out
}

// SetMuted toggles the local mute flag and broadcasts the change.
func (s *Session) SetMuted(muted bool) {
	s.post(evSetMuted{muted: muted})
}

// SubmitSpeakingSample feeds one raw loudness observation for the local
// user. Debounced edges are broadcast to the room.
func (s *Session) SubmitSpeakingSample(loud bool) {
	s.debounce.Sample(s.selfID, loud)
}

// Leave tears down every link, releases the capture handle and closes the
// transport, in that order. Every step runs even if an earlier one fails.
func (s *Session) Leave() error {
	done := make(chan error, 1)
	select {
	case s.loopCh <- evLeave{done: done}:
	case <-s.stopped:
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-s.stopped:
		return nil
	}
}

func (s *Session) post(ev loopEvent) {
	select {
	case s.loopCh <- ev:
	case <-s.quit:
	case <-s.stopped:
	}
}

func (s *Session) run() {
	defer close(s.stopped)

	sweepEvery := s.cfg.LeaveGrace / 3
	if sweepEvery < 100*time.Millisecond {
		sweepEvery = 100 * time.Millisecond
	}
	if sweepEvery > 5*time.Second {
		sweepEvery = 5 * time.Second
	}
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.transport.Events():
			s.handleSignal(ev)
		case ev := <-s.loopCh:
			s.handleLoop(ev)
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.quit:
			return
		}
	}
}

// handleSignal dispatches one typed transport event. The switch is
// exhaustive over the event variants.
func (s *Session) handleSignal(ev signaling.Event) {
	switch e := ev.(type) {
	case signaling.Joined:
		if e.ID == s.selfID {
			return
		}
		if s.roster.Joined(e.ID, e.Name) {
			s.maybeInitiate(e.ID)
		}

	case signaling.Left:
		if e.ID == s.selfID {
			return
		}
		s.removePeer(e.ID)

	case signaling.MuteChanged:
		if e.ID != s.selfID {
			s.roster.SetMuted(e.ID, e.Muted)
		}

	case signaling.SpeakingChanged:
		if e.ID != s.selfID {
			s.roster.Touch(e.ID)
			s.debounce.Sample(e.ID, e.Speaking)
		}

	case signaling.VideoChanged:
		if e.ID != s.selfID {
			s.roster.SetVideo(e.ID, e.HasVideo)
		}

	case signaling.Envelope:
		if e.To != s.selfID {
			// Broadcast delivery is room-wide; not ours, not an error.
			return
		}
		s.roster.Touch(e.From)
		switch e.Kind {
		case signaling.EnvelopeOffer:
			s.handleOffer(e)
		case signaling.EnvelopeAnswer:
			s.handleAnswer(e)
		case signaling.EnvelopeCandidate:
			s.handleCandidate(e)
		}

	case signaling.Snapshot:
		added, removed := s.roster.Reconcile(e.Records)
		for _, id := range added {
			s.maybeInitiate(id)
		}
		for _, id := range removed {
			s.forgetPeer(id)
		}
	}
}

func (s *Session) handleLoop(ev loopEvent) {
	switch e := ev.(type) {
	case evLocalCandidate:
		if link, ok := s.links[e.remoteID]; ok && link.epoch == e.epoch {
			s.transport.Broadcast(signaling.Envelope{
				Kind:      signaling.EnvelopeCandidate,
				From:      s.selfID,
				To:        e.remoteID,
				Candidate: e.raw,
			})
		}

	case evTrack:
		s.handleTrack(e)

	case evLinkFailed:
		link, ok := s.links[e.remoteID]
		if !ok || link.epoch != e.epoch {
			return
		}
		// Isolated to this link; the roster entry stays until an explicit
		// leave or the grace sweep.
		s.log.Warn("link failed", "peer", e.remoteID)
		s.teardownLink(e.remoteID)

	case evCapture:
		s.handleCapture(e.cap)

	case evSpeakingEdge:
		s.roster.SetSpeaking(e.id, e.speaking)
		if e.id == s.selfID {
			s.transport.Broadcast(signaling.SpeakingChanged{ID: s.selfID, Speaking: e.speaking})
		}

	case evSetMuted:
		s.muted = e.muted
		s.roster.SetMuted(s.selfID, e.muted)
		s.transport.Broadcast(signaling.MuteChanged{ID: s.selfID, Muted: e.muted})
		s.transport.PublishPresence(s.presenceRecord())

	case evLeave:
		// Quit is closed before teardown so posts triggered during
		// shutdown (the gate change handler, late pion callbacks) drop
		// instead of blocking on a full loop channel.
		close(s.quit)
		e.done <- s.shutdown()
	}
}

// maybeInitiate starts a negotiation toward a newly sighted remote, or
// defers it until local media exists. A link must always carry at least
// the capability to send media.
func (s *Session) maybeInitiate(id string) {
	if _, ok := s.links[id]; ok {
		return
	}
	cap := s.gate.Current()
	if len(cap.Tracks()) == 0 {
		s.awaitingCap[id] = true
		return
	}
	s.initiate(id, cap)
}

func (s *Session) initiate(id string, cap *media.Capture) {
	link, err := s.newLink(id, RoleInitiator, cap)
	if err != nil {
		s.log.Error("initiate failed", "peer", id, "err", err)
		return
	}
	s.links[id] = link
	s.setLinkState(id, LinkNegotiating)

	offer, err := link.createOffer()
	if err != nil {
		s.log.Error("offer failed", "peer", id, "err", err)
		s.teardownLink(id)
		return
	}
	s.transport.Broadcast(signaling.Envelope{
		Kind: signaling.EnvelopeOffer,
		From: s.selfID,
		To:   id,
		SDP:  offer,
	})
	s.flushHeld(id)
}

func (s *Session) newLink(id string, role Role, cap *media.Capture) (*PeerLink, error) {
	s.nextEpoch++
	hooks := linkHooks{
		onCandidate: func(remoteID string, epoch uint64, candidate []byte) {
			s.post(evLocalCandidate{remoteID: remoteID, epoch: epoch, raw: candidate})
		},
		onTrack: func(remoteID string, epoch uint64, track *webrtc.TrackRemote) {
			s.post(evTrack{remoteID: remoteID, epoch: epoch, track: track})
		},
		onFailure: func(remoteID string, epoch uint64) {
			s.post(evLinkFailed{remoteID: remoteID, epoch: epoch})
		},
	}
	return newPeerLink(s.cfg, id, role, s.nextEpoch, cap, hooks)
}

// handleOffer resolves glare deterministically: for any id pair the peer
// with the lexicographically smaller id is the canonical initiator. Both
// sides apply the same rule, so exactly one connection survives.
func (s *Session) handleOffer(env signaling.Envelope) {
	if link, ok := s.links[env.From]; ok {
		if link.role == RoleInitiator && link.state == LinkNegotiating && s.selfID < env.From {
			s.log.Debug("glare: keeping own offer, discarding remote", "peer", env.From)
			return
		}
		// Glare loss, or the remote started a fresh negotiation; the
		// incoming offer supersedes the existing link.
		s.log.Debug("superseding link with remote offer", "peer", env.From)
		s.teardownLink(env.From)
	}

	// The remote may not be in the roster yet if its join broadcast was
	// lost; the envelope itself proves it exists.
	s.roster.Joined(env.From, "")

	link, err := s.newLink(env.From, RoleAnswerer, s.gate.Current())
	if err != nil {
		s.log.Error("answer setup failed", "peer", env.From, "err", err)
		return
	}
	s.links[env.From] = link
	s.setLinkState(env.From, LinkNegotiating)

	answer, err := link.acceptOffer(env.SDP)
	if err != nil {
		s.log.Error("answer failed", "peer", env.From, "err", err)
		s.teardownLink(env.From)
		return
	}
	s.transport.Broadcast(signaling.Envelope{
		Kind: signaling.EnvelopeAnswer,
		From: s.selfID,
		To:   env.From,
		SDP:  answer,
	})
	s.flushHeld(env.From)
}

func (s *Session) handleAnswer(env signaling.Envelope) {
	link, ok := s.links[env.From]
	if !ok || link.role != RoleInitiator || link.state != LinkNegotiating {
		// Stale or duplicate; dropped silently by design.
		s.log.Debug("dropping stale answer", "peer", env.From)
		return
	}
	if err := link.acceptAnswer(env.SDP); err != nil {
		s.log.Error("apply answer failed", "peer", env.From, "err", err)
		s.teardownLink(env.From)
	}
}

func (s *Session) handleCandidate(env signaling.Envelope) {
	if link, ok := s.links[env.From]; ok {
		if err := link.addCandidate(env.Candidate); err != nil {
			s.log.Debug("candidate rejected", "peer", env.From, "err", err)
		}
		return
	}
	// No link yet: hold a bounded number until negotiation starts.
	held := s.held[env.From]
	if len(held) >= maxHeldCandidates {
		s.log.Debug("candidate buffer full, dropping", "peer", env.From)
		return
	}
	s.held[env.From] = append(held, heldCandidate{raw: env.Candidate, at: time.Now()})
}

func (s *Session) flushHeld(id string) {
	link, ok := s.links[id]
	if !ok {
		return
	}
	for _, c := range s.held[id] {
		if err := link.addCandidate(c.raw); err != nil {
			s.log.Debug("held candidate rejected", "peer", id, "err", err)
		}
	}
	delete(s.held, id)
}

// handleTrack records arriving remote media. First media is the externally
// observable definition of connected, regardless of transport-level state.
func (s *Session) handleTrack(e evTrack) {
	link, ok := s.links[e.remoteID]
	if !ok || link.epoch != e.epoch {
		// The peer left while the track was in flight; abandon harmlessly.
		return
	}
	if link.recordTrack(e.track) {
		link.state = LinkConnected
		s.setLinkState(e.remoteID, LinkConnected)
		s.log.Info("peer connected", "peer", e.remoteID)
	}
	s.roster.Touch(e.remoteID)

	s.viewMu.Lock()
	s.remoteMedia[e.remoteID] = link.media
	s.viewMu.Unlock()
	if s.onMedia != nil {
		s.onMedia(link.media)
	}
}

// handleCapture reacts to the local capture handle changing. Links whose
// track-kind shape still matches get in-place replacement; the rest are
// renegotiated from scratch.
func (s *Session) handleCapture(cap *media.Capture) {
	if len(cap.Tracks()) == 0 {
		// Degraded but valid: no local media, no links. Peers stay on the
		// roster and links are re-established when capture returns.
		ids := make([]string, 0, len(s.links))
		for id := range s.links {
			ids = append(ids, id)
		}
		for _, id := range ids {
			s.teardownLink(id)
			s.awaitingCap[id] = true
		}
		s.announceVideo(false)
		return
	}

	var renegotiate []string
	for id, link := range s.links {
		if link.kindsMatch(cap) {
			if err := link.replaceTracks(cap); err != nil {
				s.log.Warn("track replacement failed, renegotiating", "peer", id, "err", err)
				renegotiate = append(renegotiate, id)
			}
		} else {
			renegotiate = append(renegotiate, id)
		}
	}
	for _, id := range renegotiate {
		s.teardownLink(id)
		s.initiate(id, cap)
	}

	for id := range s.awaitingCap {
		delete(s.awaitingCap, id)
		s.maybeInitiate(id)
	}

	s.announceVideo(cap.HasVideo())
}

func (s *Session) announceVideo(hasVideo bool) {
	if s.hasVideo == hasVideo {
		return
	}
	s.hasVideo = hasVideo
	s.roster.SetVideo(s.selfID, hasVideo)
	s.transport.Broadcast(signaling.VideoChanged{ID: s.selfID, HasVideo: hasVideo})
}

// removePeer handles an explicit or implicit leave.
func (s *Session) removePeer(id string) {
	s.roster.Left(id)
	s.forgetPeer(id)
}

// forgetPeer drops every piece of per-peer state outside the roster: the
// link, any deferred initiation, buffered candidates and the debounce
// entry. Snapshot reconciliation already removed the roster entry, so a
// departed peer must never linger in the deferred set where the next
// capture change would initiate toward it.
func (s *Session) forgetPeer(id string) {
	s.teardownLink(id)
	s.debounce.Drop(id)
	delete(s.awaitingCap, id)
	delete(s.held, id)
}

// teardownLink closes and forgets a link. The roster entry is untouched;
// callers decide whether the participant itself is gone.
func (s *Session) teardownLink(id string) {
	link, ok := s.links[id]
	if !ok {
		return
	}
	link.close()
	delete(s.links, id)

	s.viewMu.Lock()
	delete(s.remoteMedia, id)
	delete(s.linkStates, id)
	s.viewMu.Unlock()
}

func (s *Session) setLinkState(id string, state LinkState) {
	s.viewMu.Lock()
	s.linkStates[id] = state
	s.viewMu.Unlock()
}

// sweep evicts peers with no signaling or presence activity for the grace
// period and expires held candidates past their TTL.
func (s *Session) sweep(now time.Time) {
	for _, id := range s.roster.Stale(s.cfg.LeaveGrace) {
		s.log.Info("implicit leave after grace period", "peer", id)
		s.removePeer(id)
	}

	cutoff := now.Add(-s.cfg.CandidateTTL)
	for id, held := range s.held {
		kept := held[:0]
		for _, c := range held {
			if c.at.After(cutoff) {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(s.held, id)
		} else {
			s.held[id] = kept
		}
	}
}

// shutdown runs the full teardown sequence. Later steps run regardless of
// earlier failures; errors are joined.
func (s *Session) shutdown() error {
	var errs []error

	s.transport.Broadcast(signaling.Left{ID: s.selfID})

	for id, link := range s.links {
		if err := link.close(); err != nil {
			errs = append(errs, NewPeerError("close link", id, err))
		}
	}
	s.links = make(map[string]*PeerLink)

	s.viewMu.Lock()
	s.remoteMedia = make(map[string]RemoteMedia)
	s.linkStates = make(map[string]LinkState)
	s.viewMu.Unlock()

	s.roster.Clear()
	s.debounce.Reset()
	s.gate.Clear()

	if err := s.transport.Close(); err != nil {
		errs = append(errs, NewError("close transport", err))
	}
	return errors.Join(errs...)
}

func (s *Session) presenceRecord() signaling.PresenceRecord {
	return signaling.PresenceRecord{ID: s.selfID, Name: s.name, Muted: s.muted}
}
