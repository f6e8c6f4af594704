package board

import (
	"errors"
	"strings"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidSquare     = errors.New("invalid square")
	ErrInvalidFEN        = errors.New("invalid fen")
)

// CastlingRights is a bit set of the four castling permissions.
type CastlingRights uint8

const (
	WhiteKingSide CastlingRights = 1 << iota
	WhiteQueenSide
	BlackKingSide
	BlackQueenSide

	NoCastling  CastlingRights = 0
	AllCastling                = WhiteKingSide | WhiteQueenSide | BlackKingSide | BlackQueenSide
)

// Has reports whether every right in x is present.
func (r CastlingRights) Has(x CastlingRights) bool { return r&x == x }

// String renders the FEN castling field.
func (r CastlingRights) String() string {
	if r == NoCastling {
		return "-"
	}
	var b strings.Builder
	if r.Has(WhiteKingSide) {
		b.WriteByte('K')
	}
	if r.Has(WhiteQueenSide) {
		b.WriteByte('Q')
	}
	if r.Has(BlackKingSide) {
		b.WriteByte('k')
	}
	if r.Has(BlackQueenSide) {
		b.WriteByte('q')
	}
	return b.String()
}

// CastleSide selects the king-side or queen-side castle.
type CastleSide uint8

const (
	KingSide CastleSide = iota
	QueenSide
)

func (s CastleSide) String() string {
	if s == QueenSide {
		return "queenside"
	}
	return "kingside"
}

// Right returns the castling permission bit for c on side s.
func Right(c Color, s CastleSide) CastlingRights {
	switch {
	case c == White && s == KingSide:
		return WhiteKingSide
	case c == White:
		return WhiteQueenSide
	case s == KingSide:
		return BlackKingSide
	default:
		return BlackQueenSide
	}
}

type castleRoute struct {
	kingFrom, kingTo Square
	rookFrom, rookTo Square
	empty            []Square // must be vacant
	safe             []Square // king start, transit and landing; none may be attacked
}

var castleRoutes = [2][2]castleRoute{
	White: {
		KingSide:  {kingFrom: E1, kingTo: G1, rookFrom: H1, rookTo: F1, empty: []Square{F1, G1}, safe: []Square{E1, F1, G1}},
		QueenSide: {kingFrom: E1, kingTo: C1, rookFrom: A1, rookTo: D1, empty: []Square{B1, C1, D1}, safe: []Square{E1, D1, C1}},
	},
	Black: {
		KingSide:  {kingFrom: E8, kingTo: G8, rookFrom: H8, rookTo: F8, empty: []Square{F8, G8}, safe: []Square{E8, F8, G8}},
		QueenSide: {kingFrom: E8, kingTo: C8, rookFrom: A8, rookTo: D8, empty: []Square{B8, C8, D8}, safe: []Square{E8, D8, C8}},
	},
}

// CastlePath returns the king's start and landing squares for a castle.
func CastlePath(c Color, side CastleSide) (from, to Square) {
	r := castleRoutes[c][side]
	return r.kingFrom, r.kingTo
}

// rightsLostAt lists the rights revoked when a piece leaves or lands on sq.
func rightsLostAt(sq Square) CastlingRights {
	switch sq {
	case E1:
		return WhiteKingSide | WhiteQueenSide
	case H1:
		return WhiteKingSide
	case A1:
		return WhiteQueenSide
	case E8:
		return BlackKingSide | BlackQueenSide
	case H8:
		return BlackKingSide
	case A8:
		return BlackQueenSide
	default:
		return NoCastling
	}
}

// State is an immutable snapshot of a position. Values are safe to copy and
// compare with ==; no operation mutates a State in place.
type State struct {
	squares  [64]Piece
	turn     Color
	castling CastlingRights
	ep       Square
	halfmove int
	fullmove int
}

var backRank = [8]Kind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// Initial returns the standard starting position.
func Initial() State {
	var s State
	for f := 0; f < 8; f++ {
		s.squares[NewSquare(f, 0)] = Piece{Kind: backRank[f], Color: White}
		s.squares[NewSquare(f, 1)] = Piece{Kind: Pawn, Color: White}
		s.squares[NewSquare(f, 6)] = Piece{Kind: Pawn, Color: Black}
		s.squares[NewSquare(f, 7)] = Piece{Kind: backRank[f], Color: Black}
	}
	s.turn = White
	s.castling = AllCastling
	s.ep = NoSquare
	s.fullmove = 1
	return s
}

// PieceAt returns the piece on sq; the zero Piece when empty or off-board.
func (s State) PieceAt(sq Square) Piece {
	if !sq.Valid() {
		return Piece{}
	}
	return s.squares[sq]
}

func (s State) Turn() Color              { return s.turn }
func (s State) Castling() CastlingRights { return s.castling }
func (s State) EnPassant() Square        { return s.ep }
func (s State) HalfmoveClock() int       { return s.halfmove }
func (s State) FullmoveNumber() int      { return s.fullmove }
func (s State) String() string           { return s.FEN() }

// Occupied reports whether a piece stands on sq.
func (s State) Occupied(sq Square) bool { return !s.PieceAt(sq).IsZero() }

// Ply counts half-moves played since the position's move 1 with white to move.
func (s State) Ply() int { return (s.fullmove-1)*2 + int(s.turn) }

// KingSquare locates c's king, or NoSquare when it is missing.
func (s State) KingSquare(c Color) Square { return s.find(Piece{Kind: King, Color: c}) }

// Squares lists the squares occupied by c in index order.
func (s State) Squares(c Color) []Square { return s.occupiedBy(c) }

func (s State) find(p Piece) Square {
	for sq := Square(0); sq < 64; sq++ {
		if s.squares[sq] == p {
			return sq
		}
	}
	return NoSquare
}

func (s State) occupiedBy(c Color) []Square {
	out := make([]Square, 0, 16)
	for sq := Square(0); sq < 64; sq++ {
		if p := s.squares[sq]; !p.IsZero() && p.Color == c {
			out = append(out, sq)
		}
	}
	return out
}

// Material counts every piece on the board by (kind, color).
func (s State) Material() map[Piece]int {
	out := make(map[Piece]int)
	for _, p := range s.squares {
		if !p.IsZero() {
			out[p]++
		}
	}
	return out
}
