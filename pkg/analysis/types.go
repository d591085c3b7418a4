// Package analysis turns "analyze this position" requests into live line
// updates and one terminal result, on top of a single engine session.
package analysis

import (
	"sort"
	"time"

	"github.com/gmkornilov/chess-analysis-backend/pkg/protocol"
)

// State of the coordinator. Idle and the terminal states are quiescent.
type State int

const (
	Idle State = iota
	Requested
	Streaming
	Completed
	Cancelled
	TimedOut
	Failed
)

var stateNames = map[State]string{
	Idle:      "idle",
	Requested: "requested",
	Streaming: "streaming",
	Completed: "completed",
	Cancelled: "cancelled",
	TimedOut:  "timed_out",
	Failed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a request is outstanding in this state.
func (s State) Active() bool {
	return s == Requested || s == Streaming
}

// Request is one accepted analysis call.
type Request struct {
	ID       uint64
	FEN      string
	Depth    int
	Lines    int
	Deadline time.Time
}

// Line is the latest evaluation reported for one principal variation rank.
type Line struct {
	Rank  int            `json:"rank" yaml:"rank"`
	Score protocol.Score `json:"score" yaml:"score"`
	PV    []string       `json:"pv" yaml:"pv"`
	Depth int            `json:"depth" yaml:"depth"`
	Nodes int64          `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// Snapshot is the full set of lines of one request at a point in time.
type Snapshot struct {
	RequestID uint64 `json:"request_id"`
	FEN       string `json:"fen"`
	State     State  `json:"state"`
	Lines     []Line `json:"lines"`
}

// Best returns the line with the best score for the side to move.
func (s Snapshot) Best() (Line, bool) {
	return bestLine(s.Lines)
}

// Result is the terminal value of a completed request. BestMove is empty
// when the engine reported no legal move.
type Result struct {
	RequestID uint64 `json:"request_id" yaml:"request_id"`
	FEN       string `json:"fen" yaml:"fen"`
	BestMove  string `json:"best_move" yaml:"best_move"`
	Ponder    string `json:"ponder,omitempty" yaml:"ponder,omitempty"`
	Lines     []Line `json:"lines" yaml:"lines"`
	Depth     int    `json:"depth" yaml:"depth"`
}

func (r Result) Best() (Line, bool) {
	return bestLine(r.Lines)
}

// Outcome records how the last finished request ended.
type Outcome struct {
	RequestID uint64
	State     State
	Err       error
}

func sortedLines(byRank map[int]Line) []Line {
	lines := make([]Line, 0, len(byRank))
	for _, l := range byRank {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Rank < lines[j].Rank })
	return lines
}

func bestLine(lines []Line) (Line, bool) {
	if len(lines) == 0 {
		return Line{}, false
	}
	best := lines[0]
	for _, l := range lines[1:] {
		if c := Compare(l.Score, best.Score); c > 0 || (c == 0 && l.Rank < best.Rank) {
			best = l
		}
	}
	return best, true
}
