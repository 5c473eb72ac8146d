package signaling

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Message is the wire frame exchanged with the signaling server. The
// payload is msgpack like the rest of the frame; Type selects its shape.
type Message struct {
	Type    string             `msgpack:"type"`
	Room    string             `msgpack:"room,omitempty"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// Wire message type constants.
const (
	// client -> server
	MessageTypeAttach   = "attach"
	MessageTypePresence = "presence"

	// server -> client
	MessageTypeAttached = "attached"
	MessageTypeSnapshot = "snapshot"
	MessageTypeError    = "error"

	// room broadcasts, relayed verbatim to every member
	MessageTypeJoined    = "joined"
	MessageTypeLeft      = "left"
	MessageTypeMute      = "mute-changed"
	MessageTypeSpeaking  = "speaking-changed"
	MessageTypeVideo     = "video-changed"
	MessageTypeOffer     = "offer"
	MessageTypeAnswer    = "answer"
	MessageTypeCandidate = "candidate"
)

// NewMessage builds a wire frame with a msgpack-encoded payload.
func NewMessage(msgType, room string, payload any) (*Message, error) {
	var raw msgpack.RawMessage
	if payload != nil {
		b, err := msgpack.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Message{Type: msgType, Room: room, Payload: raw}, nil
}

// DecodePayload decodes the frame payload into v.
func (m *Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// AttachPayload asks the server to attach this connection to a room.
type AttachPayload struct {
	Create bool   `msgpack:"create"`
	ID     string `msgpack:"id"`
	Name   string `msgpack:"name"`
}

// ErrorPayload carries a server-side failure description.
type ErrorPayload struct {
	Error string `msgpack:"error"`
}

// PresenceRecord is one member's advertised presence state. The server
// keeps the latest record per connection and pushes the full set on every
// membership change.
type PresenceRecord struct {
	ID    string `msgpack:"id"`
	Name  string `msgpack:"name"`
	Muted bool   `msgpack:"muted"`
}

type snapshotPayload struct {
	Records []PresenceRecord `msgpack:"records"`
}

// Event is the typed form of everything the transport can deliver. Handlers
// type-switch over the concrete variants below; there is no stringly-typed
// dispatch past the wire decoder.
type Event interface {
	isEvent()
}

// Joined announces a member's arrival.
type Joined struct {
	ID   string `msgpack:"id"`
	Name string `msgpack:"name"`
}

// Left announces a member's departure.
type Left struct {
	ID string `msgpack:"id"`
}

// MuteChanged reports a mute toggle.
type MuteChanged struct {
	ID    string `msgpack:"id"`
	Muted bool   `msgpack:"muted"`
}

// SpeakingChanged reports a debounced speaking edge.
type SpeakingChanged struct {
	ID       string `msgpack:"id"`
	Speaking bool   `msgpack:"speaking"`
}

// VideoChanged reports a camera toggle.
type VideoChanged struct {
	ID       string `msgpack:"id"`
	HasVideo bool   `msgpack:"has_video"`
}

// EnvelopeKind discriminates the three negotiation message kinds.
type EnvelopeKind string

const (
	EnvelopeOffer     EnvelopeKind = "offer"
	EnvelopeAnswer    EnvelopeKind = "answer"
	EnvelopeCandidate EnvelopeKind = "candidate"
)

// Envelope is a negotiation message addressed to one member. Delivery is
// room-wide; receivers discard envelopes whose To is not their own id.
// Candidate carries a JSON-encoded ICECandidateInit, opaque to this layer.
type Envelope struct {
	Kind      EnvelopeKind `msgpack:"-"`
	From      string       `msgpack:"from"`
	To        string       `msgpack:"to"`
	SDP       string       `msgpack:"sdp,omitempty"`
	Candidate []byte       `msgpack:"candidate,omitempty"`
}

// Snapshot is the server's full presence view of the room.
type Snapshot struct {
	Records []PresenceRecord
}

func (Joined) isEvent()          {}
func (Left) isEvent()            {}
func (MuteChanged) isEvent()     {}
func (SpeakingChanged) isEvent() {}
func (VideoChanged) isEvent()    {}
func (Envelope) isEvent()        {}
func (Snapshot) isEvent()        {}

// encodeEvent turns a typed event into its wire frame.
func encodeEvent(ev Event, room string) (*Message, error) {
	switch e := ev.(type) {
	case Joined:
		return NewMessage(MessageTypeJoined, room, e)
	case Left:
		return NewMessage(MessageTypeLeft, room, e)
	case MuteChanged:
		return NewMessage(MessageTypeMute, room, e)
	case SpeakingChanged:
		return NewMessage(MessageTypeSpeaking, room, e)
	case VideoChanged:
		return NewMessage(MessageTypeVideo, room, e)
	case Envelope:
		return NewMessage(string(e.Kind), room, e)
	default:
		return nil, fmt.Errorf("event %T is not broadcastable", ev)
	}
}

// decodeEvent turns a delivered wire frame into its typed event. A nil
// event with nil error means the frame is transport-internal and handled
// elsewhere (attached, error).
func decodeEvent(m *Message) (Event, error) {
	switch m.Type {
	case MessageTypeJoined:
		var e Joined
		if err := m.DecodePayload(&e); err != nil {
			return nil, err
		}
		return e, nil
	case MessageTypeLeft:
		var e Left
		if err := m.DecodePayload(&e); err != nil {
			return nil, err
		}
		return e, nil
	case MessageTypeMute:
		var e MuteChanged
		if err := m.DecodePayload(&e); err != nil {
			return nil, err
		}
		return e, nil
	case MessageTypeSpeaking:
		var e SpeakingChanged
		if err := m.DecodePayload(&e); err != nil {
			return nil, err
		}
		return e, nil
	case MessageTypeVideo:
		var e VideoChanged
		if err := m.DecodePayload(&e); err != nil {
			return nil, err
		}
		return e, nil
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate:
		var e Envelope
		if err := m.DecodePayload(&e); err != nil {
			return nil, err
		}
		e.Kind = EnvelopeKind(m.Type)
		return e, nil
	case MessageTypeSnapshot:
		var p snapshotPayload
		if err := m.DecodePayload(&p); err != nil {
			return nil, err
		}
		return Snapshot{Records: p.Records}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}
