package report

import (
	"context"
	"fmt"
	"sync"

	"github.com/freeeve/uci"
	"github.com/gmkornilov/chess-analysis-backend/pkg/analysis"
	"github.com/gmkornilov/chess-analysis-backend/pkg/protocol"
)

type EngineOptions struct {
	Hash    int
	Threads int
}

// UCIEvaluator runs searches synchronously on a dedicated engine process.
// It serves report jobs so they do not compete with live analysis.
type UCIEvaluator struct {
	e    *uci.Engine
	opts EngineOptions

	mu    sync.Mutex
	lines int
}

func NewUCIEvaluator(path string, opts EngineOptions, args ...string) (*UCIEvaluator, error) {
	e, err := uci.NewEngine(path, args...)
	if err != nil {
		return nil, fmt.Errorf("starting engine %s: %w", path, err)
	}
	u := &UCIEvaluator{e: e, opts: opts}
	if err := u.setLines(1); err != nil {
		e.Close()
		return nil, err
	}
	return u, nil
}

func (u *UCIEvaluator) setLines(lines int) error {
	err := u.e.SetOptions(uci.Options{
		MultiPV: lines,
		Hash:    u.opts.Hash,
		Threads: u.opts.Threads,
		Ponder:  false,
		OwnBook: false,
	})
	if err != nil {
		return fmt.Errorf("setting engine options: %w", err)
	}
	u.lines = lines
	return nil
}

// Evaluate searches fen to depth. The search itself cannot be interrupted;
// ctx is only checked before it starts.
func (u *UCIEvaluator) Evaluate(ctx context.Context, fen string, depth, lines int) (analysis.Result, error) {
	if err := ctx.Err(); err != nil {
		return analysis.Result{}, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if lines != u.lines {
		if err := u.setLines(lines); err != nil {
			return analysis.Result{}, err
		}
	}
	if err := u.e.SetFEN(fen); err != nil {
		return analysis.Result{}, fmt.Errorf("set FEN: %w", err)
	}
	results, err := u.e.GoDepth(depth, uci.HighestDepthOnly)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("search: %w", err)
	}
	return fromScoreResults(fen, results.BestMove, results.Results), nil
}

// fromScoreResults converts a search. bestMove is the engine's own choice,
// used when no line survived the depth filter.
func fromScoreResults(fen, bestMove string, results []uci.ScoreResult) analysis.Result {
	res := analysis.Result{FEN: fen, BestMove: bestMove}
	for i, r := range results {
		score := protocol.Score{Kind: protocol.Centipawns, Value: r.Score}
		if r.Mate {
			score.Kind = protocol.MateIn
		}
		res.Lines = append(res.Lines, analysis.Line{
			Rank:  i + 1,
			Score: score,
			PV:    r.BestMoves,
			Depth: r.Depth,
		})
		if r.Depth > res.Depth {
			res.Depth = r.Depth
		}
	}
	if len(res.Lines) > 0 && len(res.Lines[0].PV) > 0 {
		res.BestMove = res.Lines[0].PV[0]
	}
	return res
}

func (u *UCIEvaluator) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.e.Close()
	return nil
}
