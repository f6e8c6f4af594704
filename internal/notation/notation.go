package notation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/duelchess/internal/board"
	"github.com/park285/duelchess/internal/rules"
)

var ErrUnknownNotation = errors.New("unrecognised move notation")

// chessMu serialises calls into corentings/chess, whose FEN decoder writes
// package-level buffers.
var chessMu sync.Mutex

// position must be called with chessMu held.
func position(s board.State) (*nchess.Position, error) {
	opt, err := nchess.FEN(s.FEN())
	if err != nil {
		return nil, fmt.Errorf("load fen: %w", err)
	}
	return nchess.NewGame(opt).Position(), nil
}

// SAN encodes m in standard algebraic notation relative to the position
// before it was played (e.g. "Nf3", "exd6", "O-O", "e8=Q+").
func SAN(before board.State, m board.Move) (string, error) {
	chessMu.Lock()
	defer chessMu.Unlock()
	pos, err := position(before)
	if err != nil {
		return "", err
	}
	mv, err := nchess.UCINotation{}.Decode(pos, m.UCI())
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", m.UCI(), err)
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv), nil
}

// ParseMove reads a player's move text in the context of s. Coordinate
// notation is tried first, then SAN.
func ParseMove(s board.State, text string) (rules.Candidate, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return rules.Candidate{}, ErrUnknownNotation
	}
	if c, err := rules.ParseCandidate(raw); err == nil {
		return c, nil
	}
	uci, err := decodeSAN(s, raw)
	if err != nil {
		return rules.Candidate{}, err
	}
	// UCI round trip keeps square and promotion parsing in one place.
	return rules.ParseCandidate(uci)
}

func decodeSAN(s board.State, raw string) (string, error) {
	chessMu.Lock()
	defer chessMu.Unlock()
	pos, err := position(s)
	if err != nil {
		return "", err
	}
	mv, err := nchess.AlgebraicNotation{}.Decode(pos, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownNotation, raw)
	}
	return mv.String(), nil
}

// SANList encodes a sequence of coordinate moves played from start.
func SANList(start board.State, uci []string) ([]string, error) {
	out := make([]string, 0, len(uci))
	s := start
	for i, text := range uci {
		c, err := rules.ParseCandidate(text)
		if err != nil {
			return nil, fmt.Errorf("move %d: %w", i+1, err)
		}
		res, err := rules.Validate(s, c)
		if err != nil {
			return nil, fmt.Errorf("move %d (%s): %w", i+1, text, err)
		}
		san, err := SAN(s, res.Move)
		if err != nil {
			return nil, err
		}
		out = append(out, san)
		s = res.State
	}
	return out, nil
}
