package signaling

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeDecodeBroadcasts(t *testing.T) {
	events := []Event{
		Joined{ID: "a", Name: "Alice"},
		Left{ID: "a"},
		MuteChanged{ID: "a", Muted: true},
		SpeakingChanged{ID: "a", Speaking: true},
		VideoChanged{ID: "a", HasVideo: true},
	}

	for _, ev := range events {
		frame, err := encodeEvent(ev, "4821")
		if err != nil {
			t.Fatalf("encode %T: %v", ev, err)
		}
		if frame.Room != "4821" {
			t.Errorf("%T: room not carried", ev)
		}
		got, err := decodeEvent(frame)
		if err != nil {
			t.Fatalf("decode %T: %v", ev, err)
		}
		if got != ev {
			t.Errorf("round trip changed %T: got %#v want %#v", ev, got, ev)
		}
	}
}

func TestEnvelopeKindFollowsMessageType(t *testing.T) {
	for _, kind := range []EnvelopeKind{EnvelopeOffer, EnvelopeAnswer, EnvelopeCandidate} {
		env := Envelope{Kind: kind, From: "a", To: "b", SDP: "v=0"}
		frame, err := encodeEvent(env, "4821")
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if frame.Type != string(kind) {
			t.Errorf("envelope kind %q encoded as message type %q", kind, frame.Type)
		}
		got, err := decodeEvent(frame)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		decoded, ok := got.(Envelope)
		if !ok {
			t.Fatalf("decoded to %T", got)
		}
		if decoded.Kind != kind || decoded.From != "a" || decoded.To != "b" {
			t.Errorf("envelope mangled: %#v", decoded)
		}
	}
}

func TestDecodeSnapshot(t *testing.T) {
	frame, err := NewMessage(MessageTypeSnapshot, "4821", snapshotPayload{
		Records: []PresenceRecord{{ID: "a", Name: "Alice", Muted: true}, {ID: "b", Name: "Bob"}},
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	ev, err := decodeEvent(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	snap, ok := ev.(Snapshot)
	if !ok {
		t.Fatalf("decoded to %T", ev)
	}
	if len(snap.Records) != 2 || !snap.Records[0].Muted {
		t.Errorf("snapshot mangled: %#v", snap)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := decodeEvent(&Message{Type: "no-such-event"}); err == nil {
		t.Error("unknown message type should not decode")
	}
}

func TestWireFrameIsMsgpack(t *testing.T) {
	frame, err := NewMessage(MessageTypeJoined, "4821", Joined{ID: "a", Name: "Alice"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	data, err := msgpack.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Message
	if err := msgpack.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Type != MessageTypeJoined || back.Room != "4821" {
		t.Errorf("frame mangled: %#v", back)
	}
}
