// Package display converts engine scores into what an evaluation bar and a
// move list show.
package display

import (
	"fmt"
	"math"

	"github.com/gmkornilov/chess-analysis-backend/pkg/protocol"
)

// BarClamp is the centipawn value at which the evaluation bar is full.
const BarClamp = 500

// WhitePOV turns a side-to-move score into one from White's point of view.
func WhitePOV(s protocol.Score, whiteToMove bool) protocol.Score {
	if !whiteToMove {
		s.Value = -s.Value
	}
	return s
}

// Label formats a score: pawns with one decimal for centipawns ("+0.3",
// "-1.5", "0.0"), "M3"/"-M3" for mates.
func Label(s protocol.Score) string {
	if s.Kind == protocol.MateIn {
		if s.Value < 0 {
			return fmt.Sprintf("-M%d", -s.Value)
		}
		return fmt.Sprintf("M%d", s.Value)
	}
	pawns := math.Round(float64(s.Value)/10) / 10
	if pawns > 0 {
		return fmt.Sprintf("+%.1f", pawns)
	}
	if pawns == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", pawns)
}

// WhiteShare is White's share of an evaluation bar, 0 to 100, for a score
// given from the side to move's point of view.
func WhiteShare(s protocol.Score, whiteToMove bool) float64 {
	s = WhitePOV(s, whiteToMove)
	if s.Kind == protocol.MateIn {
		switch {
		case s.Value > 0:
			return 100
		case s.Value < 0:
			return 0
		}
		// mate 0: the side to move is already mated
		if whiteToMove {
			return 0
		}
		return 100
	}
	cp := math.Max(-BarClamp, math.Min(BarClamp, float64(s.Value)))
	return 50 + cp/BarClamp*50
}

// Evaluation is the display block attached to API responses.
type Evaluation struct {
	Label      string  `json:"label"`
	WhiteShare float64 `json:"white_share"`
}

// Describe builds the display block for a side-to-move score.
func Describe(s protocol.Score, whiteToMove bool) Evaluation {
	return Evaluation{
		Label:      Label(WhitePOV(s, whiteToMove)),
		WhiteShare: WhiteShare(s, whiteToMove),
	}
}
