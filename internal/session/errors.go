package session

import (
	"errors"
	"fmt"
)

var (
	ErrClosed          = errors.New("session closed")
	ErrSignalingError  = errors.New("signaling server error")
	ErrNegotiation     = errors.New("negotiation failed")
	ErrNoRemoteLink    = errors.New("no link for remote peer")
	ErrCandidateFormat = errors.New("malformed ICE candidate")
)

// SessionError carries the failing operation and, when relevant, the remote
// peer it concerned.
type SessionError struct {
	Op   string
	Peer string
	Err  error
}

func (e *SessionError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s (peer %s): %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *SessionError {
	return &SessionError{Op: op, Peer: peer, Err: err}
}
