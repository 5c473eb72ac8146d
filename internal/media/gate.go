// Package media tracks the local capture handle. Acquisition itself is the
// platform's job; the gate only knows whether a handle exists and which
// track kinds it carries, and tells the session when that changes.
package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Capture is an opaque handle to the local outgoing tracks. Audio is
// expected for a voice client; Video is present only while the camera is
// on.
type Capture struct {
	Audio webrtc.TrackLocal
	Video webrtc.TrackLocal
}

// Tracks returns the non-nil tracks in attach order.
func (c *Capture) Tracks() []webrtc.TrackLocal {
	if c == nil {
		return nil
	}
	var out []webrtc.TrackLocal
	if c.Audio != nil {
		out = append(out, c.Audio)
	}
	if c.Video != nil {
		out = append(out, c.Video)
	}
	return out
}

// HasVideo reports whether the handle carries a live video track.
func (c *Capture) HasVideo() bool {
	return c != nil && c.Video != nil
}

// Kinds returns the set of track kinds, used to decide between in-place
// track replacement and a full renegotiation.
func (c *Capture) Kinds() (audio, video bool) {
	if c == nil {
		return false, false
	}
	return c.Audio != nil, c.Video != nil
}

// Gate holds the current capture handle and notifies observers when it is
// replaced. Only the gate replaces the handle; peer links share it
// read-only.
type Gate struct {
	mu       sync.Mutex
	current  *Capture
	handlers []func(*Capture)
	releaser func() // optional, stops the underlying capture pipeline
}

func NewGate() *Gate {
	return &Gate{}
}

// Current returns the capture handle, or nil when no media is available.
// Nil is a valid, degraded steady state, not an error.
func (g *Gate) Current() *Capture {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// OnChange registers a handler invoked with the new handle (possibly nil)
// after every replacement. Handlers run on the caller's goroutine of Set or
// Clear.
func (g *Gate) OnChange(fn func(*Capture)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, fn)
}

// Set replaces the capture handle. release, if non-nil, is invoked when
// this handle is later replaced or cleared.
func (g *Gate) Set(c *Capture, release func()) {
	g.mu.Lock()
	prevRelease := g.releaser
	g.current = c
	g.releaser = release
	handlers := append([]func(*Capture){}, g.handlers...)
	g.mu.Unlock()

	if prevRelease != nil {
		prevRelease()
	}
	for _, fn := range handlers {
		fn(c)
	}
}

// Clear drops the capture handle and stops the underlying capture.
func (g *Gate) Clear() {
	g.Set(nil, nil)
}
