package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrChannelClosed = errors.New("transport: channel closed")
	ErrAlreadyOpen   = errors.New("transport: channel already opened")
	ErrNotConnected  = errors.New("transport: channel not connected")
	ErrConnect       = errors.New("transport: connect failed")
	ErrInactive      = errors.New("transport: no inbound frames within inactivity threshold")
)

// State is the connection state of one Channel instance.
type State int

const (
	// StateIdle is a channel that has not been opened yet.
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends the channel instance. Reconnecting needs a new one.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateError
}

// StateChange is one observed transition. Err is set for StateError and carries the
// connection error.
type StateChange struct {
	State State
	Err   error
	At    time.Time
}

// Channel is a bidirectional frame link, independent of the physical transport.
//
// Frames and States are closed once the channel has reached a terminal state and
// its reader has stopped, so consumers may range over them.
type Channel interface {
	ID() string
	// Open blocks until the connection attempt resolves. On failure the channel is
	// left in StateError.
	Open(ctx context.Context) error
	// Close tears the channel down and waits for the reader to stop. It is idempotent
	// and safe to call before or during Open.
	Close(ctx context.Context) error
	// Write hands frame to the transport. It does not wait for delivery.
	Write(ctx context.Context, frame []byte) error
	Frames() <-chan []byte
	States() <-chan StateChange
	State() State
	// Err is the error that moved the channel to StateError, or nil.
	Err() error
}
