package board

import (
	"fmt"
	"strings"
)

// Square indexes the board as file + 8*rank, so A1 = 0 and H8 = 63.
type Square int8

// NoSquare marks an absent square (e.g. no en-passant target).
const NoSquare Square = -1

const (
	A1 Square = iota
	B1
	C1
	D1
	E1
	F1
	G1
	H1
	A2
	B2
	C2
	D2
	E2
	F2
	G2
	H2
	A3
	B3
	C3
	D3
	E3
	F3
	G3
	H3
	A4
	B4
	C4
	D4
	E4
	F4
	G4
	H4
	A5
	B5
	C5
	D5
	E5
	F5
	G5
	H5
	A6
	B6
	C6
	D6
	E6
	F6
	G6
	H6
	A7
	B7
	C7
	D7
	E7
	F7
	G7
	H7
	A8
	B8
	C8
	D8
	E8
	F8
	G8
	H8
)

// NewSquare returns the square for 0-based file and rank, or NoSquare when off-board.
func NewSquare(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare
	}
	return Square(rank*8 + file)
}

func (s Square) File() int   { return int(s) % 8 }
func (s Square) Rank() int   { return int(s) / 8 }
func (s Square) Valid() bool { return s >= 0 && s < 64 }

// Offset moves the square by df files and dr ranks; NoSquare if it leaves the board.
func (s Square) Offset(df, dr int) Square {
	if !s.Valid() {
		return NoSquare
	}
	return NewSquare(s.File()+df, s.Rank()+dr)
}

// Light reports whether s is a light square.
func (s Square) Light() bool { return (s.File()+s.Rank())%2 == 1 }

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{'a' + byte(s.File()), '1' + byte(s.Rank())})
}

// ParseSquare parses algebraic coordinates such as "e4".
func ParseSquare(str string) (Square, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	if len(str) != 2 {
		return NoSquare, fmt.Errorf("%w: %q", ErrInvalidSquare, str)
	}
	f, r := int(str[0])-'a', int(str[1])-'1'
	sq := NewSquare(f, r)
	if sq == NoSquare {
		return NoSquare, fmt.Errorf("%w: %q", ErrInvalidSquare, str)
	}
	return sq, nil
}

// MarshalText encodes the square as "e4" ("-" for NoSquare).
func (s Square) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Square) UnmarshalText(b []byte) error {
	if string(b) == "-" || len(b) == 0 {
		*s = NoSquare
		return nil
	}
	sq, err := ParseSquare(string(b))
	if err != nil {
		return err
	}
	*s = sq
	return nil
}
