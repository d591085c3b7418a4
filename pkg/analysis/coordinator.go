package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/gmkornilov/chess-analysis-backend/pkg/protocol"
	"github.com/rs/zerolog"
)

// DefaultTimeout is the deadline of a request submitted without one.
const DefaultTimeout = 60 * time.Second

// Session is the part of an engine session the coordinator drives.
type Session interface {
	Send(cmds ...string) error
	Attach(h engine.Handler)
}

// Params of one analysis call.
type Params struct {
	FEN     string
	Depth   int
	Lines   int
	Timeout time.Duration
}

type pending struct {
	req   Request
	after time.Duration
	timer *time.Timer
	done  chan outcome
}

type outcome struct {
	res Result
	err error
}

// Coordinator runs at most one analysis request at a time against a
// session. Engine output carries no request id, so output is attributed to
// the request that is active when it arrives. Searches started for earlier
// requests are counted and their output skipped until their bestmove shows
// up.
type Coordinator struct {
	session Session
	log     zerolog.Logger

	// sendMu serializes request transitions together with their command
	// batch. mu guards the state below and is the only lock taken on the
	// engine output path.
	sendMu sync.Mutex
	mu     sync.Mutex

	nextID      uint64
	active      *pending
	state       State
	lines       map[int]Line
	outstanding int
	skip        int
	last        Outcome
	snapshot    Snapshot
	subs        map[int]chan Snapshot
	nextSub     int
	closed      bool
}

// NewCoordinator attaches a coordinator to session.
func NewCoordinator(session Session, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		session: session,
		log:     log.With().Str("component", "analysis").Logger(),
		lines:   map[int]Line{},
		subs:    map[int]chan Snapshot{},
	}
	session.Attach(c)
	return c
}

// Analyze submits a request and waits for its terminal event. A request
// still running is cancelled first. The returned error is a
// *CancelledError, *TimeoutError or *EngineError.
func (c *Coordinator) Analyze(ctx context.Context, params Params) (Result, error) {
	p, err := c.submit(params)
	if err != nil {
		return Result{}, err
	}

	select {
	case o := <-p.done:
		return o.res, o.err
	case <-ctx.Done():
		c.cancel(p, ReasonContext)
		o := <-p.done
		return o.res, o.err
	}
}

func (c *Coordinator) submit(params Params) (*pending, error) {
	if params.FEN == "" || params.Depth <= 0 || params.Lines <= 0 {
		return nil, fmt.Errorf("%w: fen %q, depth %d, lines %d", ErrInvalidRequest, params.FEN, params.Depth, params.Lines)
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, engine.ErrClosed
	}
	if prev := c.active; prev != nil {
		c.finishLocked(prev, Cancelled, outcome{err: &CancelledError{RequestID: prev.req.ID, Reason: ReasonSuperseded}})
	}
	c.nextID++
	p := &pending{
		req: Request{
			ID:       c.nextID,
			FEN:      params.FEN,
			Depth:    params.Depth,
			Lines:    params.Lines,
			Deadline: time.Now().Add(params.Timeout),
		},
		after: params.Timeout,
		done:  make(chan outcome, 1),
	}
	c.active = p
	c.state = Requested
	c.lines = map[int]Line{}
	c.skip = c.outstanding
	skip := c.skip
	c.outstanding++
	c.publishLocked()
	p.timer = time.AfterFunc(params.Timeout, func() { c.expire(p) })
	c.mu.Unlock()

	c.log.Debug().
		Uint64("request", p.req.ID).
		Str("fen", p.req.FEN).
		Int("depth", p.req.Depth).
		Int("lines", p.req.Lines).
		Int("skip", skip).
		Msg("analysis requested")

	err := c.session.Send(
		protocol.CmdStop,
		protocol.SetMultiPV(p.req.Lines),
		protocol.PositionFEN(p.req.FEN),
		protocol.GoDepth(p.req.Depth, p.req.Lines),
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.outstanding > 0 {
			c.outstanding--
		}
		if c.active == p {
			c.log.Error().Err(err).Uint64("request", p.req.ID).Msg("sending analysis commands")
			c.finishLocked(p, Failed, outcome{err: &EngineError{RequestID: p.req.ID, Err: err}})
		}
		return p, nil
	}
	if c.active == p && c.state == Requested {
		c.state = Streaming
	}
	return p, nil
}

// Stop cancels the active request, if any, and stops the engine search. It
// reports whether a request was cancelled.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	p := c.active
	c.mu.Unlock()
	if p == nil {
		return false
	}
	return c.cancel(p, ReasonStopped)
}

func (c *Coordinator) cancel(p *pending, reason Reason) bool {
	return c.terminate(p, Cancelled, &CancelledError{RequestID: p.req.ID, Reason: reason})
}

func (c *Coordinator) expire(p *pending) {
	if c.terminate(p, TimedOut, &TimeoutError{RequestID: p.req.ID, After: p.after}) {
		c.log.Warn().Uint64("request", p.req.ID).Dur("after", p.after).Msg("analysis timed out")
	}
}

// terminate detaches p and then stops the engine search, so output of
// that search can no longer reach p.
func (c *Coordinator) terminate(p *pending, state State, err error) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	if c.active != p {
		c.mu.Unlock()
		return false
	}
	c.finishLocked(p, state, outcome{err: err})
	c.mu.Unlock()

	if sendErr := c.session.Send(protocol.CmdStop); sendErr != nil {
		c.log.Debug().Err(sendErr).Msg("sending stop")
	}
	return true
}

func (c *Coordinator) finishLocked(p *pending, state State, o outcome) {
	if p.timer != nil {
		p.timer.Stop()
	}
	c.active = nil
	c.state = state
	c.last = Outcome{RequestID: p.req.ID, State: state, Err: o.err}
	c.publishLocked()
	p.done <- o

	ev := c.log.Info()
	if state == Failed {
		ev = c.log.Error().Err(o.err)
	}
	ev.Uint64("request", p.req.ID).Stringer("state", state).Str("best_move", o.res.BestMove).Msg("analysis finished")
}

// HandleEvent processes one engine event. Events arrive one at a time in
// engine output order.
func (c *Coordinator) HandleEvent(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case protocol.Info:
		if c.skip > 0 || c.active == nil {
			c.log.Debug().Str("line", ev.Raw).Msg("discarding stale info")
			return
		}
		info := ev.Info
		c.lines[info.LineRank] = Line{
			Rank:  info.LineRank,
			Score: info.Score,
			PV:    info.PV,
			Depth: info.Depth,
			Nodes: info.Nodes,
		}
		c.state = Streaming
		c.publishLocked()

	case protocol.BestMove:
		if c.outstanding > 0 {
			c.outstanding--
		}
		if c.skip > 0 {
			c.skip--
			c.log.Debug().Str("line", ev.Raw).Msg("discarding superseded bestmove")
			return
		}
		p := c.active
		if p == nil {
			c.log.Debug().Str("line", ev.Raw).Msg("discarding bestmove with no active request")
			return
		}
		c.finishLocked(p, Completed, outcome{res: c.resultLocked(p, ev)})

	case protocol.Unrecognized:
		if strings.HasPrefix(ev.Raw, "info") && !strings.HasPrefix(ev.Raw, "info string") {
			c.log.Debug().Str("line", ev.Raw).Msg("ignoring info line without evaluation")
		}
	}
}

// HandleClose fails the active request with the reason the engine channel
// ended.
func (c *Coordinator) HandleClose(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outstanding = 0
	c.skip = 0
	if p := c.active; p != nil {
		c.finishLocked(p, Failed, outcome{err: &EngineError{RequestID: p.req.ID, Err: err}})
	}
}

func (c *Coordinator) resultLocked(p *pending, ev protocol.Event) Result {
	lines := sortedLines(c.lines)
	res := Result{
		RequestID: p.req.ID,
		FEN:       p.req.FEN,
		BestMove:  ev.Move,
		Ponder:    ev.Ponder,
		Lines:     lines,
	}
	if first, ok := c.lines[1]; ok && len(first.PV) > 0 {
		res.BestMove = first.PV[0]
	}
	for _, l := range lines {
		if l.Depth > res.Depth {
			res.Depth = l.Depth
		}
	}
	return res
}

func (c *Coordinator) publishLocked() {
	var id uint64
	var fen string
	if c.active != nil {
		id, fen = c.active.req.ID, c.active.req.FEN
	} else {
		id, fen = c.last.RequestID, c.snapshot.FEN
	}
	c.snapshot = Snapshot{
		RequestID: id,
		FEN:       fen,
		State:     c.state,
		Lines:     sortedLines(c.lines),
	}
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c.snapshot:
		default:
		}
	}
}

// Subscribe returns a channel holding the most recent snapshot. A slow
// reader misses intermediate snapshots but never blocks line processing.
// The returned function unsubscribes and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// Latest returns the most recent snapshot.
func (c *Coordinator) Latest() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveRequestID returns the id of the outstanding request.
func (c *Coordinator) ActiveRequestID() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0, false
	}
	return c.active.req.ID, true
}

func (c *Coordinator) LastOutcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Close cancels the active request and closes every subscription.
func (c *Coordinator) Close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if p := c.active; p != nil {
		c.finishLocked(p, Cancelled, outcome{err: &CancelledError{RequestID: p.req.ID, Reason: ReasonClosed}})
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
