package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gmkornilov/chess-analysis-backend/pkg/protocol"
	"github.com/rs/zerolog"
)

// DefaultHandshakeTimeout bounds Initialize when Config leaves it unset.
const DefaultHandshakeTimeout = 10 * time.Second

// Option is one engine option sent during the handshake.
type Option struct {
	Name  string
	Value string
}

type Config struct {
	// Options are sent after uciok and before isready, in order.
	Options          []Option
	HandshakeTimeout time.Duration
}

// Handler receives engine events in arrival order.
type Handler interface {
	HandleEvent(ev protocol.Event)
	// HandleClose is called once when the channel ends, with the reason.
	HandleClose(err error)
}

// Session keeps one engine channel: it performs the handshake, queues
// commands until the engine is ready and delivers every output line to the
// attached handler.
type Session struct {
	open Opener
	cfg  Config
	log  zerolog.Logger

	initMu sync.Mutex

	mu      sync.Mutex
	ch      Channel
	uciOK   bool
	ready   bool
	closed  bool
	name    string
	pending []string
	// lost is why the last channel ended; Send fails with it until the
	// next Initialize opens a new channel.
	lost    error
	handler Handler
	acks    *handshake
}

type handshake struct {
	uciOK   chan struct{}
	readyOK chan struct{}
	exited  chan struct{}
}

func NewSession(open Opener, cfg Config, log zerolog.Logger) *Session {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Session{
		open: open,
		cfg:  cfg,
		log:  log.With().Str("component", "engine").Logger(),
	}
}

// Initialize opens the channel and completes the handshake. It returns nil
// at once when the session is already ready. On failure the channel is
// closed and Initialize may be called again.
func (s *Session) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.ready {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	ch, err := s.open(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	acks := &handshake{
		uciOK:   make(chan struct{}),
		readyOK: make(chan struct{}),
		exited:  make(chan struct{}),
	}
	s.mu.Lock()
	s.ch = ch
	s.uciOK = false
	s.lost = nil
	s.acks = acks
	s.mu.Unlock()
	go s.readLoop(ch, acks)

	fail := func(stage string, err error) error {
		s.drop(ch)
		s.log.Warn().Err(err).Str("stage", stage).Msg("engine handshake failed")
		return fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, stage, err)
	}

	if err := ch.Send(protocol.CmdUCI); err != nil {
		return fail("uci", err)
	}
	if err := s.await(ctx, acks.uciOK, acks.exited); err != nil {
		return fail("uciok", err)
	}
	for _, opt := range s.cfg.Options {
		if err := ch.Send(protocol.SetOption(opt.Name, opt.Value)); err != nil {
			return fail("setoption", err)
		}
	}
	if err := ch.Send(protocol.CmdIsReady); err != nil {
		return fail("isready", err)
	}
	if err := s.await(ctx, acks.readyOK, acks.exited); err != nil {
		return fail("readyok", err)
	}

	s.log.Info().Str("name", s.Name()).Msg("engine ready")
	return nil
}

func (s *Session) await(ctx context.Context, ack, exited <-chan struct{}) error {
	select {
	case <-ack:
		return nil
	case <-exited:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drop closes ch if it is still the session's channel.
func (s *Session) drop(ch Channel) {
	s.mu.Lock()
	if s.ch == ch {
		s.ch = nil
		s.ready = false
		s.uciOK = false
	}
	s.mu.Unlock()
	_ = ch.Close()
}

func (s *Session) readLoop(ch Channel, acks *handshake) {
	for line := range ch.Lines() {
		ev := protocol.Parse(line)
		switch {
		case ev.Kind == protocol.Handshake:
			s.acknowledge(ch, acks, ev.Tag)
		case ev.Kind == protocol.Unrecognized && strings.HasPrefix(line, "id name "):
			s.mu.Lock()
			s.name = strings.TrimSpace(strings.TrimPrefix(line, "id name "))
			s.mu.Unlock()
		}

		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			h.HandleEvent(ev)
		}
	}

	err := ch.Err()
	if err == nil {
		err = ErrChannelClosed
	}
	s.mu.Lock()
	if s.ch == ch {
		s.ch = nil
		s.ready = false
		s.uciOK = false
		s.pending = nil
		s.lost = err
	}
	if s.closed {
		err = ErrClosed
	}
	h := s.handler
	s.mu.Unlock()
	close(acks.exited)

	s.log.Debug().Err(err).Msg("engine output ended")
	if h != nil {
		h.HandleClose(err)
	}
}

func (s *Session) acknowledge(ch Channel, acks *handshake, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != ch {
		return
	}
	switch tag {
	case protocol.TagUCIOK:
		if !s.uciOK {
			s.uciOK = true
			close(acks.uciOK)
		}
	case protocol.TagReadyOK:
		if !s.uciOK || s.ready {
			return
		}
		s.ready = true
		for _, cmd := range s.pending {
			if err := s.write(cmd); err != nil {
				s.log.Error().Err(err).Str("command", cmd).Msg("flushing queued command")
				break
			}
		}
		s.pending = nil
		close(acks.readyOK)
	}
}

// Send delivers the commands in order. Before the session is ready the
// commands are queued and flushed once the handshake completes. After the
// channel has ended Send fails with ErrNotReady until Initialize succeeds
// again. Commands of one call are never interleaved with those of another.
func (s *Session) Send(cmds ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.ready && s.lost != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, s.lost)
	}
	if !s.ready {
		s.pending = append(s.pending, cmds...)
		return nil
	}
	for _, cmd := range cmds {
		if err := s.write(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) write(cmd string) error {
	s.log.Debug().Str("command", cmd).Msg("engine <")
	if err := s.ch.Send(cmd); err != nil {
		return fmt.Errorf("sending %q: %w", cmd, err)
	}
	return nil
}

// Attach sets the handler for subsequent events, replacing any previous one.
func (s *Session) Attach(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Name is the engine's self-reported name, empty before the handshake.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Shutdown asks the engine to quit and closes the channel. It is safe to
// call more than once.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.ready = false
	s.pending = nil
	ch := s.ch
	s.mu.Unlock()

	if ch == nil {
		return nil
	}
	_ = ch.Send(protocol.CmdQuit)
	if err := ch.Close(); err != nil && !errors.Is(err, ErrClosed) {
		s.log.Warn().Err(err).Msg("closing engine")
		return err
	}
	return nil
}

// IntOption is a convenience for numeric engine options.
func IntOption(name string, value int) Option {
	return Option{Name: name, Value: strconv.Itoa(value)}
}
