package feed

import (
	"encoding/json"
	"strings"

	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/notnil/chess"
)

type PlayerInfo struct {
	Color string `json:"color"`
	User  struct {
		Name  string `json:"name"`
		Id    string `json:"id"`
		Title string `json:"title"`
	} `json:"user"`
	Rating int `json:"rating"`
}

type GameStart struct {
	Id          string       `json:"id"`
	Orientation string       `json:"orientation"`
	Players     []PlayerInfo `json:"players"`
	Fen         string       `json:"fen"`
}

type GameTurn struct {
	Fen        string `json:"fen"`
	LastMove   string `json:"lm"`
	WhiteClock int    `json:"wc"`
	BlackClock int    `json:"bc"`
}

type LiveMessage struct {
	Action string          `json:"t"`
	Data   json.RawMessage `json:"d"`
}

// Game identifies the featured game positions belong to.
type Game struct {
	ID          string `json:"id"`
	White       string `json:"white"`
	Black       string `json:"black"`
	WhiteRating int    `json:"white_rating"`
	BlackRating int    `json:"black_rating"`
}

func gameOf(start GameStart) Game {
	g := Game{ID: start.Id}
	for _, p := range start.Players {
		switch p.Color {
		case "white":
			g.White, g.WhiteRating = p.User.Name, p.Rating
		case "black":
			g.Black, g.BlackRating = p.User.Name, p.Rating
		}
	}
	return g
}

// board follows the featured game move by move so positions keep their
// castling rights and en passant square, which the feed leaves out.
type board struct {
	game *chess.Game
}

// Castling as some feeds send it, king onto rook.
var kingTakesRook = map[string]string{
	"e1h1": "e1g1",
	"e1a1": "e1c1",
	"e8h8": "e8g8",
	"e8a8": "e8c8",
}

// reset starts tracking from fen and returns it completed.
func (b *board) reset(fen, lastMove string) string {
	full := completeFEN(fen, lastMove)
	opt, err := chess.FEN(full)
	if err != nil {
		b.game = nil
		return full
	}
	b.game = chess.NewGame(opt)
	return full
}

// play applies lastMove to the tracked game. When the move does not lead to
// fen the tracking restarts from fen.
func (b *board) play(fen, lastMove string) string {
	fields := strings.Fields(fen)
	if b.game == nil || lastMove == "" || len(fields) == 0 || len(fields) >= 4 {
		return b.reset(fen, lastMove)
	}
	for _, token := range []string{lastMove, kingTakesRook[lastMove]} {
		if token == "" {
			continue
		}
		m, err := positions.DecodeUCI(b.game.Position(), token)
		if err != nil {
			continue
		}
		if err := b.game.Move(m); err != nil {
			break
		}
		if pos := b.game.Position(); pos.Board().String() == fields[0] {
			return pos.String()
		}
		break
	}
	return b.reset(fen, lastMove)
}

// completeFEN turns the board-only FEN of a feed message into a full one.
// The side to move is the opposite of the piece that made the last move and
// castling rights are assumed wherever king and rook stand on their squares.
func completeFEN(fen, lastMove string) string {
	fields := strings.Fields(fen)
	switch len(fields) {
	case 0:
		return ""
	case 1:
		fields = append(fields, sideToMove(fields[0], lastMove))
	}
	if len(fields) == 2 {
		fields = append(fields, castling(fields[0]))
	}
	defaults := []string{"-", "0", "1"}
	for len(fields) < 6 {
		fields = append(fields, defaults[len(fields)-3])
	}
	return strings.Join(fields, " ")
}

func sideToMove(placement, lastMove string) string {
	if len(lastMove) < 4 {
		return "w"
	}
	c := pieceAt(placement, lastMove[2:4])
	switch {
	case c >= 'A' && c <= 'Z':
		return "b"
	default:
		return "w"
	}
}

func castling(placement string) string {
	var rights string
	if pieceAt(placement, "e1") == 'K' {
		if pieceAt(placement, "h1") == 'R' {
			rights += "K"
		}
		if pieceAt(placement, "a1") == 'R' {
			rights += "Q"
		}
	}
	if pieceAt(placement, "e8") == 'k' {
		if pieceAt(placement, "h8") == 'r' {
			rights += "k"
		}
		if pieceAt(placement, "a8") == 'r' {
			rights += "q"
		}
	}
	if rights == "" {
		return "-"
	}
	return rights
}

// pieceAt returns the FEN letter on square, or 0 for an empty or invalid
// square.
func pieceAt(placement, square string) byte {
	file := int(square[0] - 'a')
	rank := int(square[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0
	}
	rows := strings.Split(placement, "/")
	if len(rows) != 8 {
		return 0
	}
	col := 0
	for i := 0; i < len(rows[7-rank]); i++ {
		c := rows[7-rank][i]
		if c >= '1' && c <= '8' {
			col += int(c - '0')
			if col > file {
				return 0
			}
			continue
		}
		if col == file {
			return c
		}
		col++
	}
	return 0
}
