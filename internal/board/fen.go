package board

import (
	"fmt"
	"strconv"
	"strings"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// ParseFEN builds a State from Forsyth-Edwards Notation. The halfmove and
// fullmove fields are optional and default to 0 and 1. Castling rights whose
// king or rook is not on its home square are dropped.
func ParseFEN(fen string) (State, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 || len(fields) > 6 {
		return State{}, fmt.Errorf("%w: expected 4-6 fields, got %d", ErrInvalidFEN, len(fields))
	}

	var s State
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return State{}, fmt.Errorf("%w: expected 8 ranks, got %d", ErrInvalidFEN, len(ranks))
	}
	for i, row := range ranks {
		rank := 7 - i
		file := 0
		for j := 0; j < len(row); j++ {
			c := row[j]
			if c >= '1' && c <= '8' {
				file += int(c - '0')
				continue
			}
			p, ok := PieceFromFEN(c)
			if !ok {
				return State{}, fmt.Errorf("%w: bad piece letter %q", ErrInvalidFEN, c)
			}
			if file > 7 {
				return State{}, fmt.Errorf("%w: rank %d overflows", ErrInvalidFEN, rank+1)
			}
			if p.Kind == Pawn && (rank == 0 || rank == 7) {
				return State{}, fmt.Errorf("%w: pawn on back rank", ErrInvalidFEN)
			}
			s.squares[NewSquare(file, rank)] = p
			file++
		}
		if file != 8 {
			return State{}, fmt.Errorf("%w: rank %d has %d files", ErrInvalidFEN, rank+1, file)
		}
	}

	switch fields[1] {
	case "w":
		s.turn = White
	case "b":
		s.turn = Black
	default:
		return State{}, fmt.Errorf("%w: side to move %q", ErrInvalidFEN, fields[1])
	}

	if fields[2] != "-" {
		for i := 0; i < len(fields[2]); i++ {
			switch fields[2][i] {
			case 'K':
				s.castling |= WhiteKingSide
			case 'Q':
				s.castling |= WhiteQueenSide
			case 'k':
				s.castling |= BlackKingSide
			case 'q':
				s.castling |= BlackQueenSide
			default:
				return State{}, fmt.Errorf("%w: castling field %q", ErrInvalidFEN, fields[2])
			}
		}
	}
	for _, c := range [...]Color{White, Black} {
		for _, side := range [...]CastleSide{KingSide, QueenSide} {
			r := castleRoutes[c][side]
			if s.squares[r.kingFrom] != (Piece{Kind: King, Color: c}) || s.squares[r.rookFrom] != (Piece{Kind: Rook, Color: c}) {
				s.castling &^= Right(c, side)
			}
		}
	}

	s.ep = NoSquare
	if fields[3] != "-" {
		sq, err := ParseSquare(fields[3])
		if err != nil {
			return State{}, fmt.Errorf("%w: en passant %q", ErrInvalidFEN, fields[3])
		}
		if (s.turn == White && sq.Rank() != 5) || (s.turn == Black && sq.Rank() != 2) {
			return State{}, fmt.Errorf("%w: en passant square %s on wrong rank", ErrInvalidFEN, sq)
		}
		s.ep = sq
	}

	s.fullmove = 1
	if len(fields) > 4 {
		n, err := strconv.Atoi(fields[4])
		if err != nil || n < 0 {
			return State{}, fmt.Errorf("%w: halfmove clock %q", ErrInvalidFEN, fields[4])
		}
		s.halfmove = n
	}
	if len(fields) > 5 {
		n, err := strconv.Atoi(fields[5])
		if err != nil || n < 1 {
			return State{}, fmt.Errorf("%w: fullmove number %q", ErrInvalidFEN, fields[5])
		}
		s.fullmove = n
	}

	for _, c := range [...]Color{White, Black} {
		if n := len(s.findAll(Piece{Kind: King, Color: c})); n != 1 {
			return State{}, fmt.Errorf("%w: %s has %d kings", ErrInvalidFEN, c, n)
		}
	}
	if InCheck(s, s.turn.Opponent()) {
		return State{}, fmt.Errorf("%w: side not to move is in check", ErrInvalidFEN)
	}
	return s, nil
}

// MustParseFEN is ParseFEN for literals known to be valid.
func MustParseFEN(fen string) State {
	s, err := ParseFEN(fen)
	if err != nil {
		panic(err)
	}
	return s
}

// FEN renders the position in Forsyth-Edwards Notation.
func (s State) FEN() string {
	var b strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			p := s.squares[NewSquare(file, rank)]
			if p.IsZero() {
				empty++
				continue
			}
			if empty > 0 {
				b.WriteByte(byte('0' + empty))
				empty = 0
			}
			b.WriteByte(p.FEN())
		}
		if empty > 0 {
			b.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			b.WriteByte('/')
		}
	}
	if s.turn == White {
		b.WriteString(" w ")
	} else {
		b.WriteString(" b ")
	}
	b.WriteString(s.castling.String())
	b.WriteByte(' ')
	b.WriteString(s.ep.String())
	fmt.Fprintf(&b, " %d %d", s.halfmove, s.fullmove)
	return b.String()
}

func (s State) findAll(p Piece) []Square {
	var out []Square
	for sq := Square(0); sq < 64; sq++ {
		if s.squares[sq] == p {
			out = append(out, sq)
		}
	}
	return out
}
