// Package enginetest provides a scripted in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
)

// Engine answers the handshake, replays a queued script for each "go"
// command and records everything it is sent. It implements engine.Channel.
type Engine struct {
	// Name is reported as "id name" during the handshake.
	Name string
	// StopMove is reported when a running search is stopped. When empty,
	// stop produces no output and the test emits it with Emit.
	StopMove string

	mu       sync.Mutex
	silent   bool
	lines    chan string
	sent     []string
	searches [][]string
	running  bool
	closed   bool
	ended    bool
	err      error
	opened   int
	openErr  error
}

func New() *Engine {
	return &Engine{
		Name:     "Stub Engine",
		StopMove: "e2e4",
		lines:    make(chan string, 1024),
	}
}

// Opener hands out the engine as a channel. Each call reopens it.
func (e *Engine) Opener() engine.Opener {
	return func(ctx context.Context) (engine.Channel, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.openErr != nil {
			return nil, e.openErr
		}
		e.opened++
		if e.ended {
			e.lines = make(chan string, 1024)
			e.ended = false
			e.closed = false
			e.err = nil
			e.running = false
		}
		return e, nil
	}
}

// SetSilent disables or re-enables the handshake replies.
func (e *Engine) SetSilent(silent bool) {
	e.mu.Lock()
	e.silent = silent
	e.mu.Unlock()
}

// FailOpen makes subsequent opens fail with err.
func (e *Engine) FailOpen(err error) {
	e.mu.Lock()
	e.openErr = err
	e.mu.Unlock()
}

// Opened counts successful opens.
func (e *Engine) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

// Script queues the output of the next search. A script without a bestmove
// line leaves the search running until "stop".
func (e *Engine) Script(lines ...string) {
	e.mu.Lock()
	e.searches = append(e.searches, lines)
	e.mu.Unlock()
}

// Emit writes raw output lines as if the engine printed them.
func (e *Engine) Emit(lines ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(lines...)
}

func (e *Engine) emit(lines ...string) {
	if e.ended {
		return
	}
	for _, l := range lines {
		e.lines <- l
	}
}

// Crash ends the output with err.
func (e *Engine) Crash(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.end(err)
}

func (e *Engine) end(err error) {
	if e.ended {
		return
	}
	e.ended = true
	e.err = err
	close(e.lines)
}

func (e *Engine) Send(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return engine.ErrClosed
	}
	e.sent = append(e.sent, line)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "uci":
		if !e.silent {
			e.emit("id name "+e.Name, "id author enginetest", "option name MultiPV type spin default 1 min 1 max 500", "uciok")
		}
	case "isready":
		if !e.silent {
			e.emit("readyok")
		}
	case "go":
		e.running = true
		if len(e.searches) == 0 {
			return nil
		}
		script := e.searches[0]
		e.searches = e.searches[1:]
		for _, l := range script {
			e.emit(l)
			if strings.HasPrefix(l, "bestmove") {
				e.running = false
			}
		}
	case "stop":
		if e.running && e.StopMove != "" {
			e.emit("bestmove " + e.StopMove)
		}
		e.running = false
	case "quit":
		e.end(nil)
	}
	return nil
}

func (e *Engine) Lines() <-chan string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lines
}

func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.end(nil)
	return nil
}

// Sent returns a copy of every command received so far.
func (e *Engine) Sent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sent...)
}

// SentWithPrefix returns the received commands starting with prefix.
func (e *Engine) SentWithPrefix(prefix string) []string {
	var res []string
	for _, cmd := range e.Sent() {
		if strings.HasPrefix(cmd, prefix) {
			res = append(res, cmd)
		}
	}
	return res
}

// Running reports whether a search is in progress.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// ErrCrashed is a convenience error for Crash.
var ErrCrashed = errors.New("engine crashed")
