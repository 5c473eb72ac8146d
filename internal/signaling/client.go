package signaling

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/huddle-chat/huddle/internal/dns"
	"github.com/huddle-chat/huddle/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	attachWait     = 10 * time.Second
	maxBackoff     = 15 * time.Second
)

// Transport is the room-scoped pub/sub and presence channel the session
// layer coordinates over. The production implementation is Client; tests
// substitute an in-memory fake.
type Transport interface {
	// Events delivers every decoded room event. The channel stays open for
	// the life of the transport; callers stop reading after Close.
	Events() <-chan Event

	// Broadcast publishes a room event, fire-and-forget. Events sent while
	// the connection is down are queued and flushed on (re)connect, so
	// delivery is at-least-once to currently-connected members.
	Broadcast(ev Event)

	// PublishPresence replaces this member's advertised presence record.
	PublishPresence(rec PresenceRecord)

	Close() error
}

// Client manages the WebSocket connection to the signaling server,
// including the pre-connect send queue and automatic redial.
type Client struct {
	serverURL string
	log       *slog.Logger
	events    chan Event

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	queue     []*Message
	presence  *PresenceRecord
	room      string
	attach    AttachPayload

	notify chan struct{}
	done   chan struct{}
}

var _ Transport = (*Client)(nil)

// NewClient creates a signaling client for the given server URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		log:       logging.Component("signaling"),
		events:    make(chan Event, 64),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Connect dials the server and attaches to the room. Broadcasts queued
// before Connect are flushed once the attach handshake completes.
func (c *Client) Connect(room string, attach AttachPayload) error {
	c.mu.Lock()
	c.room = room
	c.attach = attach
	c.mu.Unlock()

	conn, err := c.dialAndAttach()
	if err != nil {
		return err
	}

	c.startSession(conn)
	return nil
}

// dialAndAttach opens the socket and performs the attach handshake
// synchronously, so the caller learns about a bad room code immediately.
func (c *Client) dialAndAttach() (*websocket.Conn, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	// Custom dialer with robust DNS lookup.
	dialer := *websocket.DefaultDialer
	dialer.NetDial = func(network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		resolvedIP, err := dns.Lookup(host)
		if err != nil {
			return nil, fmt.Errorf("dns lookup failed: %w", err)
		}
		return net.Dial(network, net.JoinHostPort(resolvedIP, port))
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	room, attach := c.room, c.attach
	c.mu.Unlock()

	frame, err := NewMessage(MessageTypeAttach, room, attach)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.writeFrame(conn, frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("attach: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(attachWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("attach: %w", err)
	}
	var reply Message
	if err := msgpack.Unmarshal(data, &reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("attach: %w", err)
	}
	switch reply.Type {
	case MessageTypeAttached:
		return conn, nil
	case MessageTypeError:
		conn.Close()
		var p ErrorPayload
		if err := reply.DecodePayload(&p); err != nil {
			return nil, fmt.Errorf("attach refused")
		}
		return nil, fmt.Errorf("attach refused: %s", p.Error)
	default:
		conn.Close()
		return nil, fmt.Errorf("attach: unexpected reply %q", reply.Type)
	}
}

// startSession wires pumps onto an attached connection and flushes the
// pending queue.
func (c *Client) startSession(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	connDone := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	// Re-advertise presence first so the server's view heals before any
	// queued broadcasts land.
	if c.presence != nil {
		if frame, err := NewMessage(MessageTypePresence, c.room, *c.presence); err == nil {
			c.queue = append([]*Message{frame}, c.queue...)
		}
	}
	pending := len(c.queue) > 0
	c.mu.Unlock()

	go c.readPump(conn, connDone)
	go c.writePump(conn, connDone)

	if pending {
		c.signal()
	}
}

func (c *Client) readPump(conn *websocket.Conn, connDone chan struct{}) {
	defer func() {
		close(connDone)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.connected = false
			c.mu.Unlock()
			if !closed {
				c.log.Warn("signaling read failed, reconnecting", "err", err)
				go c.reconnect()
			}
			return
		}

		var msg Message
		if err := msgpack.Unmarshal(data, &msg); err != nil {
			c.log.Warn("dropping undecodable frame", "err", err)
			continue
		}
		ev, err := decodeEvent(&msg)
		if err != nil {
			c.log.Warn("dropping frame", "type", msg.Type, "err", err)
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump(conn *websocket.Conn, connDone chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-c.notify:
			for {
				frame := c.dequeue()
				if frame == nil {
					break
				}
				if err := c.writeFrame(conn, frame); err != nil {
					// Put it back; the reconnect path retries it.
					c.requeue(frame)
					return
				}
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-connDone:
			return

		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// reconnect redials with capped exponential backoff until it succeeds or
// the client is closed.
func (c *Client) reconnect() {
	backoff := time.Second
	for {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialAndAttach()
		if err == nil {
			c.log.Info("signaling reconnected")
			c.startSession(conn)
			return
		}

		c.log.Warn("reconnect attempt failed", "err", err)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) writeFrame(conn *websocket.Conn, frame *Message) error {
	data, err := msgpack.Marshal(frame)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// Events returns the channel for receiving decoded room events.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Broadcast encodes and queues a room event for delivery.
func (c *Client) Broadcast(ev Event) {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()

	frame, err := encodeEvent(ev, room)
	if err != nil {
		c.log.Error("unbroadcastable event", "err", err)
		return
	}
	c.enqueue(frame)
}

// PublishPresence replaces the advertised presence record. The latest
// record is also replayed automatically after a reconnect.
func (c *Client) PublishPresence(rec PresenceRecord) {
	c.mu.Lock()
	c.presence = &rec
	room := c.room
	c.mu.Unlock()

	frame, err := NewMessage(MessageTypePresence, room, rec)
	if err != nil {
		c.log.Error("presence encode failed", "err", err)
		return
	}
	c.enqueue(frame)
}

func (c *Client) enqueue(frame *Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, frame)
	connected := c.connected
	c.mu.Unlock()

	if connected {
		c.signal()
	}
}

func (c *Client) dequeue() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	frame := c.queue[0]
	c.queue = c.queue[1:]
	return frame
}

func (c *Client) requeue(frame *Message) {
	c.mu.Lock()
	c.queue = append([]*Message{frame}, c.queue...)
	c.mu.Unlock()
}

func (c *Client) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Close flushes queued frames best-effort, shuts the connection down and
// stops any reconnect attempts. The flush matters for the final leave
// broadcast; without it peers wait out the full grace period.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if conn != nil && connected {
		c.signal()
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			c.mu.Lock()
			drained := len(c.queue) == 0
			c.mu.Unlock()
			if drained {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	close(c.done)
	if conn != nil {
		conn.Close()
	}
	return nil
}
