// Package report evaluates every position of a game and judges each move.
package report

import (
	"encoding/json"

	"github.com/gmkornilov/chess-analysis-backend/pkg/analysis"
	"github.com/gmkornilov/chess-analysis-backend/pkg/positions"
	"github.com/gmkornilov/chess-analysis-backend/pkg/protocol"
)

type Report struct {
	Tags  map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Depth int               `json:"depth" yaml:"depth"`
	Plies []Ply             `json:"plies" yaml:"plies"`
}

func (r Report) String() string {
	j, _ := json.MarshalIndent(r, "", "\t")
	return string(j)
}

// Summary counts judgements per side.
func (r Report) Summary() map[string]map[Judgement]int {
	res := map[string]map[Judgement]int{"white": {}, "black": {}}
	for i, p := range r.Plies {
		if i == 0 || p.Judgement == "" {
			continue
		}
		side := "black"
		if (positions.Position{FEN: r.Plies[i-1].FEN}).WhiteToMove() {
			side = "white"
		}
		res[side][p.Judgement]++
	}
	return res
}

// Ply is the evaluation of the position reached after one move. Score is
// the engine's side-to-move score, WhiteScore the same from White's side.
type Ply struct {
	Ply        int             `json:"ply" yaml:"ply"`
	SAN        string          `json:"san,omitempty" yaml:"san,omitempty"`
	Move       string          `json:"move,omitempty" yaml:"move,omitempty"`
	FEN        string          `json:"fen" yaml:"fen"`
	BestMove   string          `json:"best_move,omitempty" yaml:"best_move,omitempty"`
	BestSAN    string          `json:"best_san,omitempty" yaml:"best_san,omitempty"`
	Score      protocol.Score  `json:"score" yaml:"score"`
	WhiteScore protocol.Score  `json:"white_score" yaml:"white_score"`
	Lines      []analysis.Line `json:"lines,omitempty" yaml:"lines,omitempty"`
	Judgement  Judgement       `json:"judgement,omitempty" yaml:"judgement,omitempty"`
	Loss       int             `json:"loss,omitempty" yaml:"loss,omitempty"`
}

func (p Ply) String() string {
	j, _ := json.MarshalIndent(p, "", "\t")
	return string(j)
}
