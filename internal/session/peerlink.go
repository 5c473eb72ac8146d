package session

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/huddle-chat/huddle/internal/config"
	"github.com/huddle-chat/huddle/internal/media"
)

// Role is fixed at link creation and never changes for the lifetime of one
// connection attempt. A glare loser gets a brand new link, not a flipped
// role.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleAnswerer  Role = "answerer"
)

// LinkState follows absent -> negotiating -> connected -> closed. Closed is
// terminal; a later negotiation toward the same peer is a fresh PeerLink.
type LinkState int

const (
	LinkNegotiating LinkState = iota
	LinkConnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkNegotiating:
		return "negotiating"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RemoteMedia is the latest remote track set received over a link.
type RemoteMedia struct {
	PeerID string
	Audio  *webrtc.TrackRemote
	Video  *webrtc.TrackRemote
}

// linkHooks are posted from pion callback goroutines back into the session
// loop. Every hook carries the link epoch so completions that outlive a
// teardown are discarded.
type linkHooks struct {
	onCandidate func(remoteID string, epoch uint64, candidate []byte)
	onTrack     func(remoteID string, epoch uint64, track *webrtc.TrackRemote)
	onFailure   func(remoteID string, epoch uint64)
}

// PeerLink owns one peer connection toward one remote participant. All
// fields are touched only on the session loop goroutine; pion callbacks
// communicate through the hooks.
type PeerLink struct {
	remoteID string
	role     Role
	epoch    uint64
	pc       *webrtc.PeerConnection
	state    LinkState
	media    RemoteMedia

	senders map[webrtc.RTPCodecType]*webrtc.RTPSender

	// Candidates that arrived before the remote description was applied.
	heldCandidates []webrtc.ICECandidateInit
}

// newPeerConnection builds a pion connection from the configured ICE
// servers.
func newPeerConnection(cfg *config.Config) (*webrtc.PeerConnection, error) {
	var iceServers []webrtc.ICEServer
	for _, u := range cfg.GetSTUNServers() {
		if u != "" {
			iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
		}
	}
	if turn := cfg.GetTURNServers(); turn != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if cfg.ForceRelay && cfg.GetTURNServers() != nil {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}

// newPeerLink creates a link in the negotiating state with the local
// capture tracks attached. cap may be nil when answering without media.
func newPeerLink(cfg *config.Config, remoteID string, role Role, epoch uint64, cap *media.Capture, hooks linkHooks) (*PeerLink, error) {
	pc, err := newPeerConnection(cfg)
	if err != nil {
		return nil, err
	}

	l := &PeerLink{
		remoteID: remoteID,
		role:     role,
		epoch:    epoch,
		pc:       pc,
		state:    LinkNegotiating,
		media:    RemoteMedia{PeerID: remoteID},
		senders:  make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
	}

	for _, track := range cap.Tracks() {
		sender, err := pc.AddTrack(track)
		if err != nil {
			pc.Close()
			return nil, NewPeerError("add local track", remoteID, err)
		}
		l.senders[track.Kind()] = sender
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		hooks.onCandidate(remoteID, epoch, data)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		hooks.onTrack(remoteID, epoch, track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			hooks.onFailure(remoteID, epoch)
		}
	})

	return l, nil
}

// createOffer produces the local offer SDP. Candidates trickle separately.
func (l *PeerLink) createOffer() (string, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", NewPeerError("create offer", l.remoteID, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return "", NewPeerError("set local description", l.remoteID, err)
	}
	return l.pc.LocalDescription().SDP, nil
}

// acceptOffer applies a remote offer and produces the local answer SDP.
func (l *PeerLink) acceptOffer(sdp string) (string, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", NewPeerError("set remote offer", l.remoteID, err)
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", NewPeerError("create answer", l.remoteID, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", NewPeerError("set local description", l.remoteID, err)
	}
	l.flushHeldCandidates()
	return l.pc.LocalDescription().SDP, nil
}

// acceptAnswer applies the remote answer on an initiator link.
func (l *PeerLink) acceptAnswer(sdp string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return NewPeerError("set remote answer", l.remoteID, err)
	}
	l.flushHeldCandidates()
	return nil
}

// addCandidate applies a trickled remote candidate, holding it until the
// remote description exists.
func (l *PeerLink) addCandidate(raw []byte) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		return NewPeerError("parse ICE candidate", l.remoteID, ErrCandidateFormat)
	}
	if l.pc.RemoteDescription() == nil {
		l.heldCandidates = append(l.heldCandidates, init)
		return nil
	}
	if err := l.pc.AddICECandidate(init); err != nil {
		return NewPeerError("add ICE candidate", l.remoteID, err)
	}
	return nil
}

func (l *PeerLink) flushHeldCandidates() {
	for _, init := range l.heldCandidates {
		// Best-effort: a single bad candidate must not abort the rest.
		l.pc.AddICECandidate(init)
	}
	l.heldCandidates = nil
}

// kindsMatch reports whether the capture's track kinds equal the kinds this
// link currently sends, which decides between in-place replacement and a
// full renegotiation.
func (l *PeerLink) kindsMatch(cap *media.Capture) bool {
	audio, video := cap.Kinds()
	_, hasAudio := l.senders[webrtc.RTPCodecTypeAudio]
	_, hasVideo := l.senders[webrtc.RTPCodecTypeVideo]
	return audio == hasAudio && video == hasVideo
}

// replaceTracks swaps the outgoing tracks in place, avoiding a visible
// reconnect. Only valid when kindsMatch holds.
func (l *PeerLink) replaceTracks(cap *media.Capture) error {
	for _, track := range cap.Tracks() {
		sender, ok := l.senders[track.Kind()]
		if !ok {
			return NewPeerError("replace track", l.remoteID, ErrNegotiation)
		}
		if err := sender.ReplaceTrack(track); err != nil {
			return NewPeerError("replace track", l.remoteID, err)
		}
	}
	return nil
}

// recordTrack stores an arriving remote track and reports whether this was
// the first media on the link.
func (l *PeerLink) recordTrack(track *webrtc.TrackRemote) (first bool) {
	first = l.media.Audio == nil && l.media.Video == nil
	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		l.media.Audio = track
	case webrtc.RTPCodecTypeVideo:
		l.media.Video = track
	}
	return first
}

// close tears the underlying connection down and marks the link terminal.
func (l *PeerLink) close() error {
	if l.state == LinkClosed {
		return nil
	}
	l.state = LinkClosed
	return l.pc.Close()
}
