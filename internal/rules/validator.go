package rules

import (
	"fmt"
	"strings"

	"github.com/park285/duelchess/internal/board"
)

// Candidate is a move as submitted by a player: coordinates plus an
// optional promotion choice.
type Candidate struct {
	From      board.Square
	To        board.Square
	Promotion board.Kind
}

func (c Candidate) String() string {
	s := c.From.String() + c.To.String()
	if l := c.Promotion.Letter(); l != 0 {
		s += string(l)
	}
	return s
}

// ParseCandidate reads coordinate notation such as "e2e4" or "e7e8q".
func ParseCandidate(text string) (Candidate, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if len(text) != 4 && len(text) != 5 {
		return Candidate{}, fmt.Errorf("%w: %q", ErrMalformedMove, text)
	}
	from, err := board.ParseSquare(text[0:2])
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrMalformedMove, err)
	}
	to, err := board.ParseSquare(text[2:4])
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrMalformedMove, err)
	}
	c := Candidate{From: from, To: to}
	if len(text) == 5 {
		c.Promotion = board.KindFromLetter(text[4])
		if c.Promotion == board.NoKind {
			return Candidate{}, fmt.Errorf("%w: promotion %q", ErrMalformedMove, text[4:])
		}
	}
	return c, nil
}

// Result is an accepted move together with the position it produces.
type Result struct {
	Move  board.Move
	State board.State
}

// Validate decides whether c is legal in s. On success it returns the fully
// specified move and the resulting state; otherwise a *MoveError.
func Validate(s board.State, c Candidate) (Result, error) {
	fail := func(r Reason) (Result, error) {
		return Result{}, &MoveError{Reason: r, Candidate: c}
	}
	if !c.From.Valid() || !c.To.Valid() {
		return fail(ReasonInvalidSquare)
	}
	p := s.PieceAt(c.From)
	if p.IsZero() {
		return fail(ReasonNoPieceAtSource)
	}
	if p.Color != s.Turn() {
		return fail(ReasonWrongTurn)
	}
	if c.From == c.To {
		return fail(ReasonWrongPattern)
	}
	if dest := s.PieceAt(c.To); !dest.IsZero() && dest.Color == p.Color {
		return fail(ReasonDestinationOccupied)
	}

	var matches []board.Move
	for _, m := range board.PseudoLegalMoves(s, c.From) {
		if m.To == c.To {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return fail(classify(s, c, p))
	}

	m := matches[0]
	switch {
	case m.IsPromotion() && c.Promotion == board.NoKind:
		return fail(ReasonPromotionRequired)
	case m.IsPromotion():
		found := false
		for _, pm := range matches {
			if pm.Promotion == c.Promotion {
				m, found = pm, true
				break
			}
		}
		if !found {
			return fail(ReasonInvalidPromotion)
		}
	case c.Promotion != board.NoKind:
		return fail(ReasonInvalidPromotion)
	}

	next, err := board.ApplyMove(s, m)
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: %w", m, err)
	}
	if board.InCheck(next, p.Color) {
		return fail(ReasonExposesKing)
	}
	return Result{Move: m, State: next}, nil
}

// classify explains why no pseudo-legal move of p reaches c.To.
func classify(s board.State, c Candidate, p board.Piece) Reason {
	df := c.To.File() - c.From.File()
	dr := c.To.Rank() - c.From.Rank()
	switch {
	case p.Kind == board.King && dr == 0 && (df == 2 || df == -2):
		side := board.KingSide
		if df < 0 {
			side = board.QueenSide
		}
		if from, _ := board.CastlePath(p.Color, side); from != c.From {
			return ReasonWrongPattern
		}
		switch board.CastleCheck(s, p.Color, side) {
		case board.CastleNoRights:
			return ReasonCastlingUnavailable
		case board.CastleBlocked:
			return ReasonBlockedPath
		case board.CastleInCheck, board.CastleThroughCheck:
			return ReasonCastleThroughCheck
		}
	case p.Kind == board.Pawn:
		dir, start := 1, 1
		if p.Color == board.Black {
			dir, start = -1, 6
		}
		if df == 0 && (dr == dir || (dr == 2*dir && c.From.Rank() == start)) {
			return ReasonBlockedPath
		}
	case p.Kind.Slides() && p.Kind.OnRay(df, dr):
		return ReasonBlockedPath
	}
	return ReasonWrongPattern
}

// LegalMoves lists every legal move for the side to move.
func LegalMoves(s board.State) []board.Move {
	var out []board.Move
	for _, m := range board.AllPseudoLegalMoves(s) {
		if keepsKingSafe(s, m) {
			out = append(out, m)
		}
	}
	return out
}

// LegalMovesFrom lists the legal moves of the piece on from. It is empty
// when from holds no piece of the side to move.
func LegalMovesFrom(s board.State, from board.Square) []board.Move {
	p := s.PieceAt(from)
	if p.IsZero() || p.Color != s.Turn() {
		return nil
	}
	var out []board.Move
	for _, m := range board.PseudoLegalMoves(s, from) {
		if keepsKingSafe(s, m) {
			out = append(out, m)
		}
	}
	return out
}

// HasLegalMove reports whether the side to move has at least one legal move.
func HasLegalMove(s board.State) bool {
	for _, m := range board.AllPseudoLegalMoves(s) {
		if keepsKingSafe(s, m) {
			return true
		}
	}
	return false
}

func keepsKingSafe(s board.State, m board.Move) bool {
	next, err := board.ApplyMove(s, m)
	return err == nil && !board.InCheck(next, m.Piece.Color)
}
