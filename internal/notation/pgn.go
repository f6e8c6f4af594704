package notation

import (
	"fmt"
	"strings"
	"time"
)

// PGN result tokens.
const (
	ResultWhite   = "1-0"
	ResultBlack   = "0-1"
	ResultDraw    = "1/2-1/2"
	ResultUnknown = "*"
)

// ResultToken maps "white", "black" or "draw" to the PGN result token.
func ResultToken(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return ResultWhite
	case "black":
		return ResultBlack
	case "draw":
		return ResultDraw
	default:
		return ResultUnknown
	}
}

// Header holds the PGN tag pairs written before the movetext.
type Header struct {
	Event       string
	Site        string
	Date        time.Time
	White       string
	Black       string
	TimeControl string
	Termination string
	Result      string // PGN token; empty means "*"
	FEN         string // non-standard start position, if any
}

// PGN renders a game from its SAN moves.
func PGN(h Header, san []string) string {
	var b strings.Builder
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	result := h.Result
	if result == "" {
		result = ResultUnknown
	}
	event := h.Event
	if strings.TrimSpace(event) == "" {
		event = "Casual game"
	}
	site := h.Site
	if strings.TrimSpace(site) == "" {
		site = "?"
	}

	// seven tag roster
	fmt.Fprintf(&b, "[Event \"%s\"]\n", sanitize(event))
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitize(site))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitize(h.White))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitize(h.Black))
	if strings.TrimSpace(h.TimeControl) != "" {
		fmt.Fprintf(&b, "[TimeControl \"%s\"]\n", sanitize(h.TimeControl))
	}
	if strings.TrimSpace(h.Termination) != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitize(strings.ToLower(h.Termination)))
	}
	if strings.TrimSpace(h.FEN) != "" {
		b.WriteString("[SetUp \"1\"]\n")
		fmt.Fprintf(&b, "[FEN \"%s\"]\n", sanitize(h.FEN))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(san); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(san[i]))
		if i+1 < len(san) {
			b.WriteByte(' ')
			b.WriteString(strings.TrimSpace(san[i+1]))
		}
		b.WriteByte(' ')
	}
	b.WriteString(result)
	return b.String()
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
