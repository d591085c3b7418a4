// Package chessanalysis is the public entry point: it derives positions from
// game records and analyses them with one external UCI engine.
package chessanalysis

import (
	"context"
	"sync"

	"github.com/gmkornilov/chess-analysis-backend/pkg/analysis"
	"github.com/gmkornilov/chess-analysis-backend/pkg/engine"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/rs/zerolog"
)

type Config struct {
	EnginePath string
	EngineArgs []string
	Engine     engine.Config
	// Defaults fill the zero fields of per-call Options.
	Defaults Options
}

// Client owns one engine session and the coordinator driving it.
type Client struct {
	session  *engine.Session
	coord    *analysis.Coordinator
	defaults Options
	log      zerolog.Logger

	mu      sync.Mutex
	initErr error
}

// Open starts the engine executable and waits for it to become ready.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	c := New(engine.Exec(cfg.EnginePath, log, cfg.EngineArgs...), cfg, log)
	if err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// New builds a client over any engine channel. Call Initialize before
// relying on Status().Ready; analysis requests made earlier are queued.
func New(open engine.Opener, cfg Config, log zerolog.Logger) *Client {
	session := engine.NewSession(open, cfg.Engine, log)
	return &Client{
		session:  session,
		coord:    analysis.NewCoordinator(session, log),
		defaults: cfg.Defaults.WithDefaults(DefaultOptions),
		log:      log,
	}
}

// Initialize performs the engine handshake. It may be called again after a
// failure.
func (c *Client) Initialize(ctx context.Context) error {
	err := c.session.Initialize(ctx)
	c.mu.Lock()
	c.initErr = err
	c.mu.Unlock()
	if err != nil {
		c.log.Error().Err(err).Msg("engine initialization failed")
	}
	return err
}

// Analyze evaluates one derived position.
func (c *Client) Analyze(ctx context.Context, pos positions.Position, opts Options) (analysis.Result, error) {
	return c.AnalyzeFEN(ctx, pos.FEN, opts)
}

// AnalyzeFEN evaluates the position given as FEN. A call made while another
// is running cancels that one.
func (c *Client) AnalyzeFEN(ctx context.Context, fen string, opts Options) (analysis.Result, error) {
	opts = opts.WithDefaults(c.defaults)
	if err := opts.Validate(); err != nil {
		return analysis.Result{}, err
	}
	return c.coord.Analyze(ctx, analysis.Params{
		FEN:     fen,
		Depth:   opts.Depth,
		Lines:   opts.Lines,
		Timeout: opts.Timeout,
	})
}

// Evaluate runs one analysis with the default timeout.
func (c *Client) Evaluate(ctx context.Context, fen string, depth, lines int) (analysis.Result, error) {
	return c.AnalyzeFEN(ctx, fen, Options{Depth: depth, Lines: lines})
}

// Stop cancels the running analysis. It reports whether one was running.
func (c *Client) Stop() bool {
	return c.coord.Stop()
}

// Latest returns the most recent live snapshot.
func (c *Client) Latest() analysis.Snapshot {
	return c.coord.Latest()
}

// Subscribe streams live snapshots until the returned function is called.
func (c *Client) Subscribe() (<-chan analysis.Snapshot, func()) {
	return c.coord.Subscribe()
}

func (c *Client) Defaults() Options {
	return c.defaults
}

// Close cancels any running analysis and shuts the engine down.
func (c *Client) Close() error {
	c.coord.Close()
	return c.session.Shutdown()
}

// DerivePositions returns the positions of a game record, ply 0 first.
func DerivePositions(record string) ([]positions.Position, error) {
	return positions.Derive(record)
}

// PositionAt returns the position at ply index i; -1 selects the last one.
func PositionAt(all []positions.Position, i int) (positions.Position, error) {
	return positions.At(all, i)
}
