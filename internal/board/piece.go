package board

import (
	"fmt"
	"strings"
)

// Color identifies chess side.
type Color uint8

const (
	White Color = iota
	Black
)

// Opponent returns the other side.
func (c Color) Opponent() Color { return c ^ 1 }

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// ParseColor accepts "white"/"black" and the FEN letters "w"/"b".
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return White, fmt.Errorf("unknown color %q", s)
	}
}

// Kind is the piece type. The zero value means "no piece".
type Kind uint8

const (
	NoKind Kind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

// PromotionKinds lists the kinds a pawn may promote to, strongest first.
var PromotionKinds = [...]Kind{Queen, Rook, Bishop, Knight}

var kindNames = [...]string{NoKind: "", Pawn: "pawn", Knight: "knight", Bishop: "bishop", Rook: "rook", Queen: "queen", King: "king"}

func (k Kind) String() string {
	if int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Letter returns the lowercase FEN letter, or 0 for NoKind.
func (k Kind) Letter() byte {
	const letters = " pnbrqk"
	if k == NoKind || int(k) >= len(letters) {
		return 0
	}
	return letters[k]
}

// KindFromLetter maps a FEN/UCI letter (either case) to a Kind.
func KindFromLetter(b byte) Kind {
	switch b | 0x20 {
	case 'p':
		return Pawn
	case 'n':
		return Knight
	case 'b':
		return Bishop
	case 'r':
		return Rook
	case 'q':
		return Queen
	case 'k':
		return King
	default:
		return NoKind
	}
}

// ParseKind accepts names ("queen") and letters ("q").
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return NoKind, nil
	}
	if len(s) == 1 {
		if k := KindFromLetter(s[0]); k != NoKind {
			return k, nil
		}
	}
	for k, name := range kindNames {
		if name != "" && name == s {
			return Kind(k), nil
		}
	}
	return NoKind, fmt.Errorf("unknown piece kind %q", s)
}

// Piece is an immutable (kind, color) pair. The zero value is an empty square.
type Piece struct {
	Kind  Kind
	Color Color
}

// IsZero reports whether p represents an empty square.
func (p Piece) IsZero() bool { return p.Kind == NoKind }

// FEN returns the FEN letter: uppercase for white, lowercase for black.
func (p Piece) FEN() byte {
	l := p.Kind.Letter()
	if l == 0 {
		return 0
	}
	if p.Color == White {
		return l - ('a' - 'A')
	}
	return l
}

// PieceFromFEN parses a single FEN piece letter.
func PieceFromFEN(b byte) (Piece, bool) {
	k := KindFromLetter(b)
	if k == NoKind {
		return Piece{}, false
	}
	c := Black
	if b >= 'A' && b <= 'Z' {
		c = White
	}
	return Piece{Kind: k, Color: c}, true
}

func (p Piece) String() string {
	if p.IsZero() {
		return "empty"
	}
	return p.Color.String() + " " + p.Kind.String()
}
