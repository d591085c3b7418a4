package analysis

import "github.com/gmkornilov/chess-analysis-backend/pkg/protocol"

const (
	mated = iota
	centipawns
	mating
)

func class(s protocol.Score) int {
	if s.Kind != protocol.MateIn {
		return centipawns
	}
	if s.Value > 0 {
		return mating
	}
	return mated
}

// Compare orders two side-to-move scores. It is positive when a is better
// than b, negative when worse and zero when equal. A forced mate beats every
// centipawn score and a shorter mate beats a longer one; being mated is worse
// than any centipawn score and being mated later is better.
func Compare(a, b protocol.Score) int {
	ca, cb := class(a), class(b)
	if ca != cb {
		return ca - cb
	}
	if ca == centipawns {
		return a.Value - b.Value
	}
	return b.Value - a.Value
}
