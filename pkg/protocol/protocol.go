// Package protocol parses the line-oriented output of a UCI chess engine and
// builds the commands sent to it.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies what a single engine output line carries.
type Kind int

const (
	Unrecognized Kind = iota
	Handshake
	Info
	BestMove
)

func (k Kind) String() string {
	switch k {
	case Handshake:
		return "handshake"
	case Info:
		return "info"
	case BestMove:
		return "bestmove"
	default:
		return "unrecognized"
	}
}

// Handshake acknowledgements. Both must be observed before a session is ready.
const (
	TagUCIOK   = "uciok"
	TagReadyOK = "readyok"
)

// NoMove is what engines report as best move when the side to move has none.
const NoMove = "(none)"

// ScoreKind tells how Score.Value is measured.
type ScoreKind int

const (
	Centipawns ScoreKind = iota
	MateIn
)

func (k ScoreKind) String() string {
	if k == MateIn {
		return "mate"
	}
	return "cp"
}

// MarshalText encodes the kind as "cp" or "mate".
func (k ScoreKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ScoreKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "cp":
		*k = Centipawns
	case "mate":
		*k = MateIn
	default:
		return fmt.Errorf("unknown score kind %q", text)
	}
	return nil
}

// Score is an evaluation from the side to move's point of view. Centipawn
// values are kept as integer centipawns. Mate values are signed moves to mate:
// positive when the side to move mates, negative when it gets mated.
type Score struct {
	Kind  ScoreKind `json:"kind" yaml:"kind"`
	Value int       `json:"value" yaml:"value"`
}

// Bound is set when the engine reports a score as a lower or upper bound.
type Bound int

const (
	Exact Bound = iota
	LowerBound
	UpperBound
)

// InfoLine is one parsed "info" line that carries an evaluation.
type InfoLine struct {
	Depth    int
	SelDepth int
	LineRank int
	Score    Score
	Bound    Bound
	PV       []string
	Nodes    int64
	HasNodes bool
	NPS      int64
	TimeMs   int64
}

// Event is the tagged result of parsing one raw line. Only the field matching
// Kind is meaningful.
type Event struct {
	Kind   Kind
	Tag    string
	Info   InfoLine
	Move   string
	Ponder string
	Raw    string
}

// Parse turns one raw engine line into an Event. It never fails: lines that do
// not carry anything the coordinator can use come back as Unrecognized with the
// original text in Raw.
func Parse(raw string) Event {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Event{Kind: Unrecognized, Raw: raw}
	}
	switch fields[0] {
	case TagUCIOK, TagReadyOK:
		return Event{Kind: Handshake, Tag: fields[0], Raw: raw}
	case "bestmove":
		return parseBestMove(fields, raw)
	case "info":
		info, ok := parseInfo(fields[1:])
		if !ok {
			return Event{Kind: Unrecognized, Raw: raw}
		}
		return Event{Kind: Info, Info: info, Raw: raw}
	}
	return Event{Kind: Unrecognized, Raw: raw}
}

func parseBestMove(fields []string, raw string) Event {
	if len(fields) < 2 {
		return Event{Kind: Unrecognized, Raw: raw}
	}
	e := Event{Kind: BestMove, Move: fields[1], Raw: raw}
	if e.Move == NoMove {
		e.Move = ""
	}
	for i := 2; i+1 < len(fields); i++ {
		if fields[i] == "ponder" {
			e.Ponder = fields[i+1]
			break
		}
	}
	return e
}

// parseInfo locates markers by name. Everything after "pv" up to the end of
// the line is the principal variation. A line without both a score and a
// non-empty pv is rejected.
func parseInfo(tokens []string) (InfoLine, bool) {
	info := InfoLine{LineRank: 1}
	haveScore := false

	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "depth":
			v, ok := intAt(tokens, i+1)
			if !ok {
				return InfoLine{}, false
			}
			info.Depth = int(v)
			i++
		case "seldepth":
			if v, ok := intAt(tokens, i+1); ok {
				info.SelDepth = int(v)
				i++
			}
		case "multipv":
			v, ok := intAt(tokens, i+1)
			if !ok {
				return InfoLine{}, false
			}
			info.LineRank = int(v)
			i++
		case "nodes":
			if v, ok := intAt(tokens, i+1); ok {
				info.Nodes = v
				info.HasNodes = true
				i++
			}
		case "nps":
			if v, ok := intAt(tokens, i+1); ok {
				info.NPS = v
				i++
			}
		case "time":
			if v, ok := intAt(tokens, i+1); ok {
				info.TimeMs = v
				i++
			}
		case "score":
			if i+2 >= len(tokens) {
				return InfoLine{}, false
			}
			v, err := strconv.Atoi(tokens[i+2])
			if err != nil {
				return InfoLine{}, false
			}
			switch tokens[i+1] {
			case "cp":
				info.Score = Score{Kind: Centipawns, Value: v}
			case "mate":
				info.Score = Score{Kind: MateIn, Value: v}
			default:
				return InfoLine{}, false
			}
			haveScore = true
			i += 2
			if i+1 < len(tokens) {
				switch tokens[i+1] {
				case "lowerbound":
					info.Bound = LowerBound
					i++
				case "upperbound":
					info.Bound = UpperBound
					i++
				}
			}
		case "pv":
			info.PV = append([]string(nil), tokens[i+1:]...)
			i = len(tokens)
		case "string":
			// free text to end of line
			return InfoLine{}, false
		}
	}

	if !haveScore || len(info.PV) == 0 {
		return InfoLine{}, false
	}
	return info, true
}

func intAt(tokens []string, i int) (int64, bool) {
	if i >= len(tokens) {
		return 0, false
	}
	v, err := strconv.ParseInt(tokens[i], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
