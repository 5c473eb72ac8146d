package signaling

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// fakeServer accepts one client, answers the attach handshake, then relays
// every received frame to the frames channel and forwards anything pushed
// on send back to the client.
type fakeServer struct {
	srv    *httptest.Server
	frames chan *Message
	send   chan *Message
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		frames: make(chan *Message, 16),
		send:   make(chan *Message, 16),
	}
	upgrader := websocket.Upgrader{}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Attach handshake.
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var attach Message
		if err := msgpack.Unmarshal(data, &attach); err != nil || attach.Type != MessageTypeAttach {
			t.Errorf("first frame was not attach: %v %v", attach.Type, err)
			return
		}
		reply, _ := NewMessage(MessageTypeAttached, attach.Room, nil)
		raw, _ := msgpack.Marshal(reply)
		conn.WriteMessage(websocket.BinaryMessage, raw)

		go func() {
			for frame := range fs.send {
				raw, _ := msgpack.Marshal(frame)
				conn.WriteMessage(websocket.BinaryMessage, raw)
			}
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg Message
			if err := msgpack.Unmarshal(data, &msg); err != nil {
				continue
			}
			fs.frames <- &msg
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func waitFrame(t *testing.T, fs *fakeServer, msgType string) *Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case frame := <-fs.frames:
			if frame.Type == msgType {
				return frame
			}
		case <-deadline:
			t.Fatalf("server never received %q frame", msgType)
		}
	}
}

func TestBroadcastBeforeConnectIsQueued(t *testing.T) {
	fs := newFakeServer(t)
	client := NewClient(fs.url())
	defer client.Close()

	// Queued before the socket exists; must not be dropped.
	client.Broadcast(Joined{ID: "self", Name: "Alice"})
	client.PublishPresence(PresenceRecord{ID: "self", Name: "Alice"})

	if err := client.Connect("4821", AttachPayload{ID: "self", Name: "Alice"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFrame(t, fs, MessageTypeJoined)
	waitFrame(t, fs, MessageTypePresence)
}

func TestIncomingFramesBecomeTypedEvents(t *testing.T) {
	fs := newFakeServer(t)
	client := NewClient(fs.url())
	defer client.Close()

	if err := client.Connect("4821", AttachPayload{ID: "self"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	frame, _ := NewMessage(MessageTypeMute, "4821", MuteChanged{ID: "b", Muted: true})
	fs.send <- frame

	select {
	case ev := <-client.Events():
		mc, ok := ev.(MuteChanged)
		if !ok {
			t.Fatalf("got %T, want MuteChanged", ev)
		}
		if mc.ID != "b" || !mc.Muted {
			t.Errorf("event mangled: %#v", mc)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestConnectRefusedOnServerError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
		reply, _ := NewMessage(MessageTypeError, "", ErrorPayload{Error: "room not found"})
		raw, _ := msgpack.Marshal(reply)
		conn.WriteMessage(websocket.BinaryMessage, raw)
	}))
	defer srv.Close()

	client := NewClient("ws" + strings.TrimPrefix(srv.URL, "http"))
	defer client.Close()

	err := client.Connect("0000", AttachPayload{ID: "self"})
	if err == nil || !strings.Contains(err.Error(), "room not found") {
		t.Errorf("expected room-not-found error, got %v", err)
	}
}
