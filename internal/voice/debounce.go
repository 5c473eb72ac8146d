// Package voice turns noisy loudness samples into stable speaking
// indicators: rise immediately, fall only after a sustained quiet period.
package voice

import (
	"sync"
	"time"
)

// Debouncer tracks one debounced speaking flag per participant id.
// Transitions are reported through the emit callback; emit runs on the
// sampling goroutine for rising edges and on a timer goroutine for falling
// ones, and is invoked with the debouncer's state locked so edges always
// arrive in transition order. emit must not call back into the Debouncer.
type Debouncer struct {
	hold time.Duration
	emit func(id string, speaking bool)

	mu     sync.Mutex
	states map[string]*state
}

type state struct {
	speaking bool
	pending  *time.Timer
}

// New creates a debouncer with the given hold time. A natural speech pause
// shorter than hold never flickers the indicator off.
func New(hold time.Duration, emit func(id string, speaking bool)) *Debouncer {
	return &Debouncer{
		hold:   hold,
		emit:   emit,
		states: make(map[string]*state),
	}
}

// Sample feeds one raw "above loudness threshold" observation for id.
func (d *Debouncer) Sample(id string, loud bool) {
	d.mu.Lock()
	s, ok := d.states[id]
	if !ok {
		s = &state{}
		d.states[id] = s
	}

	if loud {
		// Any loud sample cancels a pending fall.
		if s.pending != nil {
			s.pending.Stop()
			s.pending = nil
		}
		if !s.speaking {
			s.speaking = true
			d.emit(id, true)
		}
		d.mu.Unlock()
		return
	}

	// Quiet sample: nothing to do unless currently speaking, and at most
	// one pending timer per id.
	if !s.speaking || s.pending != nil {
		d.mu.Unlock()
		return
	}
	s.pending = time.AfterFunc(d.hold, func() { d.expire(id) })
	d.mu.Unlock()
}

func (d *Debouncer) expire(id string) {
	d.mu.Lock()
	s, ok := d.states[id]
	if !ok || s.pending == nil || !s.speaking {
		d.mu.Unlock()
		return
	}
	s.pending = nil
	s.speaking = false
	d.emit(id, false)
	d.mu.Unlock()
}

// Speaking returns the current debounced state for id.
func (d *Debouncer) Speaking(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[id]
	return ok && s.speaking
}

// Drop forgets a departed participant and cancels any pending timer. No
// falling edge is emitted; the roster entry is already gone.
func (d *Debouncer) Drop(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.states[id]; ok && s.pending != nil {
		s.pending.Stop()
	}
	delete(d.states, id)
}

// Reset drops all tracked participants.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.states {
		if s.pending != nil {
			s.pending.Stop()
		}
	}
	d.states = make(map[string]*state)
}
