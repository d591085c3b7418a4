package report

import "github.com/gmkornilov/chess-analysis-backend/pkg/protocol"

type Judgement string

const (
	Best       Judgement = "best"
	Good       Judgement = "good"
	Inaccuracy Judgement = "inaccuracy"
	Mistake    Judgement = "mistake"
	Blunder    Judgement = "blunder"
)

// Centipawn loss limits for each judgement.
const (
	goodLoss       = 50
	inaccuracyLoss = 100
	mistakeLoss    = 300
)

// evalCap bounds centipawn scores so that a won position that stays won is
// not judged by the size of the advantage. Mates rank above it.
const evalCap = 1000

func value(s protocol.Score) int {
	if s.Kind == protocol.MateIn {
		if s.Value > 0 {
			return evalCap + 100 - min(s.Value, 99)
		}
		return -(evalCap + 100 - min(-s.Value, 99))
	}
	return max(-evalCap, min(evalCap, s.Value))
}

// Judge rates a move from the side-to-move scores before and after it. The
// move is best when it is the engine's choice; otherwise the rating follows
// how much of the mover's evaluation it lost. A move that walks into a
// forced mate is a blunder.
func Judge(before, after protocol.Score, played, best string) (Judgement, int) {
	if played != "" && played == best {
		return Best, 0
	}
	moverBefore := value(before)
	moverAfter := -value(after)
	loss := max(0, moverBefore-moverAfter)

	matedBefore := before.Kind == protocol.MateIn && before.Value <= 0
	matedAfter := after.Kind == protocol.MateIn && after.Value > 0
	switch {
	case matedAfter && !matedBefore:
		return Blunder, loss
	case loss <= goodLoss:
		return Good, loss
	case loss <= inaccuracyLoss:
		return Inaccuracy, loss
	case loss <= mistakeLoss:
		return Mistake, loss
	}
	return Blunder, loss
}

// WhitePOV flips a side-to-move score to White's point of view.
func WhitePOV(s protocol.Score, whiteToMove bool) protocol.Score {
	if !whiteToMove {
		s.Value = -s.Value
	}
	return s
}
