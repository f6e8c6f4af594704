package board

import (
	"fmt"
	"strings"
)

// MoveFlag marks the special move kinds.
type MoveFlag uint8

const (
	FlagCastle MoveFlag = 1 << iota
	FlagEnPassant
	FlagPromotion
	FlagDoublePush
)

// Move fully determines a transition between two states.
type Move struct {
	From      Square
	To        Square
	Piece     Piece
	Captured  Piece // zero when nothing is captured
	Promotion Kind  // NoKind unless FlagPromotion
	Flags     MoveFlag
}

func (m Move) IsCastle() bool    { return m.Flags&FlagCastle != 0 }
func (m Move) IsEnPassant() bool { return m.Flags&FlagEnPassant != 0 }
func (m Move) IsPromotion() bool { return m.Flags&FlagPromotion != 0 }
func (m Move) IsCapture() bool   { return !m.Captured.IsZero() }

// CastleSide reports which side a castle move goes to.
func (m Move) CastleSide() CastleSide {
	if m.To.File() < m.From.File() {
		return QueenSide
	}
	return KingSide
}

// UCI renders the move as coordinate notation, e.g. "e2e4" or "e7e8q".
func (m Move) UCI() string {
	var b strings.Builder
	b.WriteString(m.From.String())
	b.WriteString(m.To.String())
	if l := m.Promotion.Letter(); l != 0 {
		b.WriteByte(l)
	}
	return b.String()
}

func (m Move) String() string { return m.UCI() }

// ApplyMove returns the state after m. The input state is never modified.
// It fails with ErrInvalidTransition when m does not fit s: wrong mover,
// captured piece mismatch, own-piece destination, missing castling rook,
// or inconsistent promotion data. Pattern legality is the caller's concern.
func ApplyMove(s State, m Move) (State, error) {
	invalid := func(format string, args ...any) (State, error) {
		return State{}, fmt.Errorf("%w: %s: %s", ErrInvalidTransition, m.UCI(), fmt.Sprintf(format, args...))
	}
	if !m.From.Valid() || !m.To.Valid() || m.From == m.To {
		return invalid("bad squares")
	}
	p := s.squares[m.From]
	if p.IsZero() || p != m.Piece {
		return invalid("expected %s on %s, found %s", m.Piece, m.From, p)
	}
	if p.Color != s.turn {
		return invalid("%s to move", s.turn)
	}
	dest := s.squares[m.To]
	if !dest.IsZero() && dest.Color == p.Color {
		return invalid("destination holds own %s", dest)
	}
	if dest.Kind == King {
		return invalid("king cannot be captured")
	}

	next := s
	switch {
	case m.IsEnPassant():
		victimSq := NewSquare(m.To.File(), m.From.Rank())
		victim := Piece{Kind: Pawn, Color: p.Color.Opponent()}
		if p.Kind != Pawn || m.To != s.ep || !dest.IsZero() || s.squares[victimSq] != victim || m.Captured != victim {
			return invalid("en passant not available")
		}
		next.squares[victimSq] = Piece{}
	case m.IsCastle():
		if p.Kind != King || m.IsCapture() {
			return invalid("castle must be a quiet king move")
		}
		side := m.CastleSide()
		r := castleRoutes[p.Color][side]
		rook := Piece{Kind: Rook, Color: p.Color}
		if m.From != r.kingFrom || m.To != r.kingTo || !dest.IsZero() || s.squares[r.rookFrom] != rook || !s.castling.Has(Right(p.Color, side)) {
			return invalid("castle %s not available", side)
		}
		next.squares[r.rookFrom] = Piece{}
		next.squares[r.rookTo] = rook
	default:
		if m.Captured != dest {
			return invalid("captured %s but square holds %s", m.Captured, dest)
		}
	}

	placed := p
	_, _, lastRank := pawnGeometry(p.Color)
	if p.Kind == Pawn && m.To.Rank() == lastRank {
		if !m.IsPromotion() || !promotable(m.Promotion) {
			return invalid("promotion required")
		}
		placed = Piece{Kind: m.Promotion, Color: p.Color}
	} else if m.IsPromotion() || m.Promotion != NoKind {
		return invalid("promotion not allowed")
	}

	next.squares[m.From] = Piece{}
	next.squares[m.To] = placed
	next.castling = s.castling &^ (rightsLostAt(m.From) | rightsLostAt(m.To))

	next.ep = NoSquare
	if p.Kind == Pawn && abs(m.To.Rank()-m.From.Rank()) == 2 {
		next.ep = NewSquare(m.From.File(), (m.From.Rank()+m.To.Rank())/2)
	}

	if p.Kind == Pawn || m.IsCapture() {
		next.halfmove = 0
	} else {
		next.halfmove = s.halfmove + 1
	}
	if p.Color == Black {
		next.fullmove = s.fullmove + 1
	}
	next.turn = s.turn.Opponent()
	return next, nil
}

func promotable(k Kind) bool {
	for _, pk := range PromotionKinds {
		if pk == k {
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
