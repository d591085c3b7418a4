// Package positions derives the ordered sequence of board positions of a game
// record. Move legality and FEN generation are delegated to notnil/chess.
package positions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var ErrOutOfRange = errors.New("position index out of range")

// Position is the board after Ply half-moves. SAN is the move that led to it
// and is empty for ply 0.
type Position struct {
	Ply int    `json:"ply" yaml:"ply"`
	FEN string `json:"fen" yaml:"fen"`
	SAN string `json:"san,omitempty" yaml:"san,omitempty"`
}

// SideToMove returns "w" or "b".
func (p Position) SideToMove() string {
	fields := strings.Fields(p.FEN)
	if len(fields) < 2 {
		return "w"
	}
	return fields[1]
}

func (p Position) WhiteToMove() bool {
	return p.SideToMove() == "w"
}

// MoveNumber returns the fullmove number recorded in the FEN.
func (p Position) MoveNumber() int {
	fields := strings.Fields(p.FEN)
	if len(fields) < 6 {
		return 1 + p.Ply/2
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil {
		return 1 + p.Ply/2
	}
	return n
}

// ParseError reports the first token of a record that is not a legal move.
// Index is the 0-based ply index of that token, or -1 when it cannot be told.
type ParseError struct {
	Token string
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Token != "" && e.Index >= 0:
		return fmt.Sprintf("invalid move %q at ply %d: %v", e.Token, e.Index+1, e.Err)
	case e.Token != "":
		return fmt.Sprintf("invalid token %q: %v", e.Token, e.Err)
	default:
		return fmt.Sprintf("invalid game record: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Derive returns the positions of a game record: ply 0 followed by one entry
// per move. Moves are replayed one by one on a fresh game starting from the
// record's initial position, so the result only depends on the input text.
func Derive(record string) ([]Position, error) {
	rec := clean(record)

	start := StartFEN
	if rec.fen != "" {
		start = rec.fen
	}
	game, err := newGame(start)
	if err != nil {
		return nil, &ParseError{Token: rec.fen, Index: -1, Err: err}
	}

	res := make([]Position, 0, len(rec.moves)+1)
	res = append(res, Position{Ply: 0, FEN: game.Position().String()})

	for i, token := range rec.moves {
		pos := game.Position()
		move, err := decodeMove(pos, token)
		if err != nil {
			return nil, &ParseError{Token: token, Index: i, Err: err}
		}
		san := chess.AlgebraicNotation{}.Encode(pos, move)
		if err := game.Move(move); err != nil {
			return nil, &ParseError{Token: token, Index: i, Err: err}
		}
		res = append(res, Position{
			Ply: i + 1,
			FEN: game.Position().String(),
			SAN: san,
		})
	}
	return res, nil
}

// DeriveGame returns the positions of an already parsed game. Its moves are
// replayed onto a new game built from the game's own starting position.
func DeriveGame(g *chess.Game) ([]Position, error) {
	start := StartFEN
	if ps := g.Positions(); len(ps) > 0 {
		start = ps[0].String()
	}
	replay, err := newGame(start)
	if err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}

	moves := g.Moves()
	res := make([]Position, 0, len(moves)+1)
	res = append(res, Position{Ply: 0, FEN: replay.Position().String()})
	for i, move := range moves {
		san := chess.AlgebraicNotation{}.Encode(replay.Position(), move)
		if err := replay.Move(move); err != nil {
			return nil, &ParseError{Token: san, Index: i, Err: err}
		}
		res = append(res, Position{Ply: i + 1, FEN: replay.Position().String(), SAN: san})
	}
	return res, nil
}

// At returns the position at ply index i. -1 selects the last position.
func At(positions []Position, i int) (Position, error) {
	if i == -1 && len(positions) > 0 {
		return positions[len(positions)-1], nil
	}
	if i < 0 || i >= len(positions) {
		return Position{}, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(positions))
	}
	return positions[i], nil
}

func newGame(fen string) (*chess.Game, error) {
	if fen == StartFEN {
		return chess.NewGame(), nil
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt), nil
}

// decodeMove accepts SAN and, failing that, coordinate notation (e2e4).
func decodeMove(pos *chess.Position, token string) (*chess.Move, error) {
	move, err := chess.AlgebraicNotation{}.Decode(pos, token)
	if err == nil {
		return move, nil
	}
	if looksLikeUCI(token) {
		if m, uerr := DecodeUCI(pos, token); uerr == nil {
			return m, nil
		}
	}
	return nil, err
}

// DecodeUCI returns the legal move of pos written in coordinate notation.
func DecodeUCI(pos *chess.Position, token string) (*chess.Move, error) {
	m, err := chess.UCINotation{}.Decode(pos, token)
	if err != nil {
		return nil, err
	}
	for _, valid := range pos.ValidMoves() {
		if valid.S1() == m.S1() && valid.S2() == m.S2() && valid.Promo() == m.Promo() {
			return valid, nil
		}
	}
	return nil, fmt.Errorf("illegal move %s", token)
}

func looksLikeUCI(token string) bool {
	if len(token) != 4 && len(token) != 5 {
		return false
	}
	file := func(b byte) bool { return b >= 'a' && b <= 'h' }
	rank := func(b byte) bool { return b >= '1' && b <= '8' }
	return file(token[0]) && rank(token[1]) && file(token[2]) && rank(token[3])
}
