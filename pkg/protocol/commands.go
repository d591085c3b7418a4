package protocol

import (
	"fmt"
	"strconv"
)

const (
	CmdUCI        = "uci"
	CmdIsReady    = "isready"
	CmdStop       = "stop"
	CmdQuit       = "quit"
	CmdUCINewGame = "ucinewgame"
)

// SetOption builds "setoption name <name> value <value>".
func SetOption(name, value string) string {
	return fmt.Sprintf("setoption name %s value %s", name, value)
}

// SetMultiPV configures the number of parallel principal variations.
func SetMultiPV(lines int) string {
	return SetOption("MultiPV", strconv.Itoa(lines))
}

func PositionFEN(fen string) string {
	return "position fen " + fen
}

// GoDepth builds the search command. The multipv parameter is only emitted
// when more than one line is requested.
func GoDepth(depth, lines int) string {
	if lines > 1 {
		return fmt.Sprintf("go multipv %d depth %d", lines, depth)
	}
	return fmt.Sprintf("go depth %d", depth)
}
