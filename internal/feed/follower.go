// Package feed follows a live game feed and analyses every new position. A
// newer position always supersedes the analysis of an older one.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	chessanalysis "github.com/gmkornilov/chess-analysis-backend"
	"github.com/gmkornilov/chess-analysis-backend/internal/display"
	"github.com/gmkornilov/chess-analysis-backend/pkg/analysis"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/rs/zerolog"
)

const DefaultURL = "https://lichess.org/api/tv/feed"

type Analyzer interface {
	AnalyzeFEN(ctx context.Context, fen string, opts chessanalysis.Options) (analysis.Result, error)
}

// Evaluation is handed to the sink for every completed analysis.
type Evaluation struct {
	Game     Game               `json:"game"`
	FEN      string             `json:"fen"`
	LastMove string             `json:"last_move,omitempty"`
	Result   analysis.Result    `json:"result"`
	Display  display.Evaluation `json:"display"`
}

type Sink func(Evaluation)

type Follower struct {
	URL        string
	Client     *http.Client
	Options    chessanalysis.Options
	RetryDelay time.Duration

	analyzer Analyzer
	sink     Sink
	log      zerolog.Logger
}

func NewFollower(url string, analyzer Analyzer, opts chessanalysis.Options, sink Sink, log zerolog.Logger) *Follower {
	if url == "" {
		url = DefaultURL
	}
	return &Follower{
		URL:        url,
		Client:     http.DefaultClient,
		Options:    opts,
		RetryDelay: time.Second,
		analyzer:   analyzer,
		sink:       sink,
		log:        log.With().Str("component", "feed").Logger(),
	}
}

// Run follows the feed until ctx is done, reconnecting whenever the stream
// ends.
func (f *Follower) Run(ctx context.Context) error {
	for {
		err := f.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			f.log.Warn().Err(err).Msg("feed interrupted")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.RetryDelay):
		}
	}
}

func (f *Follower) connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed %s: %s", f.URL, resp.Status)
	}
	return f.Follow(ctx, resp.Body)
}

type position struct {
	game     Game
	fen      string
	lastMove string
}

// Follow reads newline-delimited feed messages from r until it ends and
// waits for the last analysis to finish.
func (f *Follower) Follow(ctx context.Context, r io.Reader) error {
	q := newLatest()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.work(ctx, q)
	}()
	defer func() {
		q.close()
		wg.Wait()
	}()

	var game Game
	var b board
	d := json.NewDecoder(r)
	for d.More() {
		var cur LiveMessage
		if err := d.Decode(&cur); err != nil {
			return fmt.Errorf("decoding feed message: %w", err)
		}
		switch cur.Action {
		case "featured":
			var start GameStart
			if err := json.Unmarshal(cur.Data, &start); err != nil {
				return fmt.Errorf("decoding featured game: %w", err)
			}
			game = gameOf(start)
			f.log.Info().Str("game", game.ID).Str("white", game.White).Str("black", game.Black).Msg("new featured game")
			q.push(position{game: game, fen: b.reset(start.Fen, "")})
		case "fen":
			var turn GameTurn
			if err := json.Unmarshal(cur.Data, &turn); err != nil {
				return fmt.Errorf("decoding position: %w", err)
			}
			q.push(position{game: game, fen: b.play(turn.Fen, turn.LastMove), lastMove: turn.LastMove})
		default:
			f.log.Debug().Str("action", cur.Action).Msg("ignoring feed message")
		}
	}
	return nil
}

func (f *Follower) work(ctx context.Context, q *latest) {
	for {
		pos, actx, ok := q.next(ctx)
		if !ok {
			return
		}
		f.analyze(actx, pos)
	}
}

func (f *Follower) analyze(ctx context.Context, pos position) {
	res, err := f.analyzer.AnalyzeFEN(ctx, pos.fen, f.Options)
	switch {
	case errors.Is(err, analysis.ErrCancelled):
		f.log.Debug().Str("fen", pos.fen).Msg("position superseded")
		return
	case err != nil:
		f.log.Warn().Err(err).Str("fen", pos.fen).Msg("analysis failed")
		return
	}

	ev := Evaluation{Game: pos.game, FEN: pos.fen, LastMove: pos.lastMove, Result: res}
	if best, ok := res.Best(); ok {
		ev.Display = display.Describe(best.Score, positions.Position{FEN: pos.fen}.WhiteToMove())
	}
	if f.sink != nil {
		f.sink(ev)
	}
}

// latest holds the newest unprocessed position. Pushing a position cancels
// the analysis of the previous one.
type latest struct {
	mu      sync.Mutex
	pending *position
	cancel  context.CancelFunc
	closed  bool
	wake    chan struct{}
}

func newLatest() *latest {
	return &latest{wake: make(chan struct{}, 1)}
}

func (l *latest) push(p position) {
	l.mu.Lock()
	l.pending = &p
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.mu.Unlock()
	l.notify()
}

func (l *latest) close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.notify()
}

func (l *latest) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// next waits for a position and returns it with a context that is
// cancelled when a newer one arrives. It returns false once the queue is
// closed and drained or ctx is done.
func (l *latest) next(ctx context.Context) (position, context.Context, bool) {
	for {
		l.mu.Lock()
		if p := l.pending; p != nil {
			l.pending = nil
			actx, cancel := context.WithCancel(ctx)
			l.cancel = cancel
			l.mu.Unlock()
			return *p, actx, true
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return position{}, nil, false
		}
		select {
		case <-l.wake:
		case <-ctx.Done():
			return position{}, nil, false
		}
	}
}
