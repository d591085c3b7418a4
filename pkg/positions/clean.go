package positions

import (
	"regexp"
	"strings"
)

var (
	tagPairRe    = regexp.MustCompile(`\[\s*([A-Za-z0-9_]+)\s+"((?:[^"\\]|\\.)*)"\s*\]`)
	moveNumberRe = regexp.MustCompile(`^\d+\.+`)
	nagRe        = regexp.MustCompile(`^\$\d+$`)
)

var resultTokens = map[string]bool{
	"1-0":     true,
	"0-1":     true,
	"1/2-1/2": true,
	"½-½":     true,
	"*":       true,
}

type record struct {
	tags  map[string]string
	fen   string
	moves []string
}

// clean strips everything from a game record that is not a move: tag pairs,
// comments, variations, NAGs, annotations, move numbers and results.
func clean(text string) record {
	rec := record{tags: map[string]string{}}

	text = strings.TrimPrefix(text, "\ufeff")
	for _, m := range tagPairRe.FindAllStringSubmatch(text, -1) {
		rec.tags[m[1]] = strings.ReplaceAll(m[2], `\"`, `"`)
	}
	text = tagPairRe.ReplaceAllString(text, " ")
	if fen, ok := rec.tags["FEN"]; ok {
		rec.fen = strings.TrimSpace(fen)
	}

	for _, tok := range strings.Fields(stripComments(text)) {
		if mv := normalizeToken(tok); mv != "" {
			rec.moves = append(rec.moves, mv)
		}
	}
	return rec
}

// stripComments removes {...} and ; comments and (possibly nested) variations.
func stripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	depth := 0
	inBrace := false
	inLine := false
	for _, r := range text {
		switch {
		case inLine:
			if r == '\n' {
				inLine = false
				b.WriteRune(' ')
			}
		case inBrace:
			if r == '}' {
				inBrace = false
				b.WriteRune(' ')
			}
		case r == '{':
			inBrace = true
		case r == ';':
			inLine = true
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
			b.WriteRune(' ')
		case depth > 0:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeToken(tok string) string {
	if resultTokens[tok] || nagRe.MatchString(tok) {
		return ""
	}
	tok = moveNumberRe.ReplaceAllString(tok, "")
	tok = strings.TrimSuffix(tok, "e.p.")
	tok = strings.TrimRight(tok, "!?+#")
	switch tok {
	case "0-0", "O-O":
		return "O-O"
	case "0-0-0", "O-O-O":
		return "O-O-O"
	case "", "..":
		return ""
	}
	if resultTokens[tok] || strings.Trim(tok, ".") == "" {
		return ""
	}
	return tok
}
