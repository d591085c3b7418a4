// Package engine owns the lifecycle of one external UCI engine process:
// handshake, readiness and ordered command delivery.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrEngineUnavailable is returned when the engine channel cannot be
	// opened or the handshake does not complete. The session may be
	// initialized again.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrNotReady is returned to callers that require a completed handshake.
	ErrNotReady      = errors.New("engine not ready")
	ErrClosed        = errors.New("engine session closed")
	ErrChannelClosed = errors.New("engine output closed")
)

// Channel is a bidirectional, line-oriented connection to an engine.
type Channel interface {
	// Send writes one command line.
	Send(line string) error
	// Lines delivers output lines in arrival order and is closed when the
	// engine output ends.
	Lines() <-chan string
	// Err reports why Lines was closed, nil on a clean end of output.
	Err() error
	Close() error
}

// Opener opens a fresh Channel.
type Opener func(ctx context.Context) (Channel, error)
