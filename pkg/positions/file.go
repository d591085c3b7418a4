package positions

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/dsnet/compress/bzip2"
	"github.com/notnil/chess"
	"golang.org/x/text/encoding/charmap"
)

// Tags kept from a game's tag pair section.
var knownTags = []string{"Event", "Site", "Date", "Round", "White", "Black", "Result", "WhiteElo", "BlackElo", "ECO"}

// Game is one game read from a PGN file.
type Game struct {
	Tags      map[string]string `json:"tags" yaml:"tags"`
	Positions []Position        `json:"positions" yaml:"positions"`
}

// Tag returns the value of a tag pair or "" when it is absent.
func (g Game) Tag(key string) string {
	return g.Tags[key]
}

// ReadFile reads every game of a PGN file. Files ending in .bz2 are
// decompressed on the fly.
func ReadFile(path string) ([]Game, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		bz, err := bzip2.NewReader(f, nil)
		if err != nil {
			return nil, fmt.Errorf("opening bzip2 stream %s: %w", path, err)
		}
		defer bz.Close()
		r = bz
	}
	return ReadGames(r)
}

// ReadGames reads every game of a PGN stream. Input that is not valid UTF-8
// is decoded as Latin-1, which is what most older PGN databases use.
func ReadGames(r io.Reader) ([]Game, error) {
	data, err := Decode(r)
	if err != nil {
		return nil, err
	}

	res := make([]Game, 0)
	for _, text := range splitGames(string(data)) {
		pgn, err := chess.PGN(strings.NewReader(text))
		if err != nil {
			return nil, &ParseError{Index: -1, Err: fmt.Errorf("game %d: %w", len(res)+1, err)}
		}
		g := chess.NewGame(pgn)
		positions, err := DeriveGame(g)
		if err != nil {
			return nil, fmt.Errorf("game %d: %w", len(res)+1, err)
		}
		res = append(res, Game{Tags: tagsOf(g), Positions: positions})
	}
	return res, nil
}

// splitGames cuts a PGN database into single games. A game ends where the
// next tag section starts or at the end of input, blank lines or not.
func splitGames(data string) []string {
	var games []string
	var cur strings.Builder
	inMoves := false
	flush := func() {
		if strings.TrimSpace(cur.String()) != "" {
			games = append(games, cur.String())
		}
		cur.Reset()
		inMoves = false
	}
	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		isTag := strings.HasPrefix(trimmed, "[")
		if isTag && inMoves {
			flush()
		}
		if trimmed != "" && !isTag {
			inMoves = true
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()
	return games
}

// Decode reads the whole stream and returns it as UTF-8.
func Decode(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return data, nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding latin-1 input: %w", err)
	}
	return decoded, nil
}

func tagsOf(g *chess.Game) map[string]string {
	tags := make(map[string]string)
	for _, key := range knownTags {
		if tp := g.GetTagPair(key); tp != nil {
			tags[key] = tp.Value
		}
	}
	return tags
}
