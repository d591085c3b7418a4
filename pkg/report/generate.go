package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/gmkornilov/chess-analysis-backend/pkg/analysis"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/gmkornilov/chess-analysis-backend/pkg/protocol"
	"github.com/notnil/chess"
)

// Evaluator analyses one position to the given depth.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, depth, lines int) (analysis.Result, error)
}

type Options struct {
	Depth int `json:"depth" yaml:"depth"`
	Lines int `json:"lines" yaml:"lines"`
}

var DefaultOptions = Options{Depth: 12, Lines: 1}

// Progress is told how many of total positions are evaluated.
type Progress func(done, total int)

// Generate evaluates every position of game in order with ev and judges
// each move. It stops at the first evaluation error.
func Generate(ctx context.Context, ev Evaluator, game positions.Game, opts Options, progress Progress) (Report, error) {
	if opts.Depth <= 0 {
		opts.Depth = DefaultOptions.Depth
	}
	if opts.Lines <= 0 {
		opts.Lines = DefaultOptions.Lines
	}

	rep := Report{
		Tags:  game.Tags,
		Depth: opts.Depth,
		Plies: make([]Ply, 0, len(game.Positions)),
	}
	watched := make(map[string]analysis.Result)
	var prev *chess.Position
	for i, pos := range game.Positions {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		board, err := boardOf(pos.FEN)
		if err != nil {
			return Report{}, fmt.Errorf("ply %d: %w", pos.Ply, err)
		}

		key := positionKey(pos.FEN)
		res, ok := watched[key]
		if !ok {
			res, err = ev.Evaluate(ctx, pos.FEN, opts.Depth, opts.Lines)
			if err != nil {
				return Report{}, fmt.Errorf("evaluating ply %d: %w", pos.Ply, err)
			}
			watched[key] = res
		}

		ply, err := newPly(pos, board, prev, res)
		if err != nil {
			return Report{}, fmt.Errorf("ply %d: %w", pos.Ply, err)
		}
		if i > 0 {
			before := rep.Plies[i-1]
			ply.Judgement, ply.Loss = Judge(before.Score, ply.Score, ply.Move, before.BestMove)
		}
		rep.Plies = append(rep.Plies, ply)
		prev = board

		if progress != nil {
			progress(i+1, len(game.Positions))
		}
	}
	return rep, nil
}

func newPly(pos positions.Position, board, prev *chess.Position, res analysis.Result) (Ply, error) {
	ply := Ply{
		Ply:      pos.Ply,
		SAN:      pos.SAN,
		FEN:      pos.FEN,
		BestMove: res.BestMove,
		Lines:    res.Lines,
	}

	if len(res.Lines) > 0 {
		ply.Score = res.Lines[0].Score
	} else if board.Status() == chess.Checkmate {
		ply.Score = protocol.Score{Kind: protocol.MateIn, Value: 0}
	}
	ply.WhiteScore = WhitePOV(ply.Score, board.Turn() == chess.White)

	if res.BestMove != "" {
		m, err := positions.DecodeUCI(board, res.BestMove)
		if err != nil {
			return Ply{}, fmt.Errorf("engine move %q: %w", res.BestMove, err)
		}
		ply.BestSAN = chess.AlgebraicNotation{}.Encode(board, m)
	}
	if prev != nil && pos.SAN != "" {
		m, err := chess.AlgebraicNotation{}.Decode(prev, pos.SAN)
		if err != nil {
			return Ply{}, fmt.Errorf("move %q: %w", pos.SAN, err)
		}
		ply.Move = chess.UCINotation{}.Encode(prev, m)
	}
	return ply, nil
}

func boardOf(fen string) (*chess.Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt).Position(), nil
}

// positionKey drops the move counters so repeated positions share one
// evaluation.
func positionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}
