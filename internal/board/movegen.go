package board

// mover is the behaviour of one piece kind: the moves it may make ignoring
// king safety, and the squares it attacks. Each Kind has exactly one mover.
type mover interface {
	moves(s *State, from Square, p Piece, dst []Move) []Move
	attacks(s *State, from Square, p Piece, dst []Square) []Square
}

type step struct{ df, dr int }

var (
	knightSteps  = []step{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps    = []step{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	straightDirs = []step{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	diagonalDirs = []step{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
	queenDirs    = []step{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func (k Kind) mover() mover {
	switch k {
	case Pawn:
		return pawnMover{}
	case Knight:
		return leaperMover{steps: knightSteps}
	case Bishop:
		return sliderMover{dirs: diagonalDirs}
	case Rook:
		return sliderMover{dirs: straightDirs}
	case Queen:
		return sliderMover{dirs: queenDirs}
	case King:
		return kingMover{leaperMover{steps: kingSteps}}
	default:
		return nil
	}
}

// Slides reports whether the kind moves along rays (bishop, rook, queen).
func (k Kind) Slides() bool {
	_, ok := k.mover().(sliderMover)
	return ok
}

// OnRay reports whether a (df, dr) displacement lies along one of k's rays.
// Only meaningful for sliding kinds.
func (k Kind) OnRay(df, dr int) bool {
	sl, ok := k.mover().(sliderMover)
	if !ok || (df == 0 && dr == 0) {
		return false
	}
	for _, d := range sl.dirs {
		for n := 1; n < 8; n++ {
			if d.df*n == df && d.dr*n == dr {
				return true
			}
		}
	}
	return false
}

type leaperMover struct{ steps []step }

func (l leaperMover) moves(s *State, from Square, p Piece, dst []Move) []Move {
	for _, st := range l.steps {
		to := from.Offset(st.df, st.dr)
		if to == NoSquare {
			continue
		}
		target := s.squares[to]
		if !target.IsZero() && target.Color == p.Color {
			continue
		}
		dst = append(dst, Move{From: from, To: to, Piece: p, Captured: target})
	}
	return dst
}

func (l leaperMover) attacks(_ *State, from Square, _ Piece, dst []Square) []Square {
	for _, st := range l.steps {
		if to := from.Offset(st.df, st.dr); to != NoSquare {
			dst = append(dst, to)
		}
	}
	return dst
}

type sliderMover struct{ dirs []step }

func (sl sliderMover) moves(s *State, from Square, p Piece, dst []Move) []Move {
	for _, d := range sl.dirs {
		for to := from.Offset(d.df, d.dr); to != NoSquare; to = to.Offset(d.df, d.dr) {
			target := s.squares[to]
			if target.IsZero() {
				dst = append(dst, Move{From: from, To: to, Piece: p})
				continue
			}
			if target.Color != p.Color {
				dst = append(dst, Move{From: from, To: to, Piece: p, Captured: target})
			}
			break
		}
	}
	return dst
}

func (sl sliderMover) attacks(s *State, from Square, _ Piece, dst []Square) []Square {
	for _, d := range sl.dirs {
		for to := from.Offset(d.df, d.dr); to != NoSquare; to = to.Offset(d.df, d.dr) {
			dst = append(dst, to)
			if !s.squares[to].IsZero() {
				break
			}
		}
	}
	return dst
}

type kingMover struct{ leaperMover }

func (k kingMover) moves(s *State, from Square, p Piece, dst []Move) []Move {
	dst = k.leaperMover.moves(s, from, p, dst)
	for _, side := range [...]CastleSide{KingSide, QueenSide} {
		r := castleRoutes[p.Color][side]
		if from == r.kingFrom && CastleCheck(*s, p.Color, side) == CastleOK {
			dst = append(dst, Move{From: from, To: r.kingTo, Piece: p, Flags: FlagCastle})
		}
	}
	return dst
}

type pawnMover struct{}

func pawnGeometry(c Color) (dir, startRank, lastRank int) {
	if c == Black {
		return -1, 6, 0
	}
	return 1, 1, 7
}

func (pawnMover) moves(s *State, from Square, p Piece, dst []Move) []Move {
	dir, startRank, lastRank := pawnGeometry(p.Color)

	if one := from.Offset(0, dir); one != NoSquare && s.squares[one].IsZero() {
		dst = appendPawnMove(dst, Move{From: from, To: one, Piece: p}, lastRank)
		if from.Rank() == startRank {
			if two := from.Offset(0, 2*dir); s.squares[two].IsZero() {
				dst = append(dst, Move{From: from, To: two, Piece: p, Flags: FlagDoublePush})
			}
		}
	}

	for _, df := range [...]int{-1, 1} {
		to := from.Offset(df, dir)
		if to == NoSquare {
			continue
		}
		target := s.squares[to]
		switch {
		case !target.IsZero() && target.Color != p.Color:
			dst = appendPawnMove(dst, Move{From: from, To: to, Piece: p, Captured: target}, lastRank)
		case target.IsZero() && to == s.ep:
			victim := Piece{Kind: Pawn, Color: p.Color.Opponent()}
			if s.squares[NewSquare(to.File(), from.Rank())] == victim {
				dst = append(dst, Move{From: from, To: to, Piece: p, Captured: victim, Flags: FlagEnPassant})
			}
		}
	}
	return dst
}

func (pawnMover) attacks(_ *State, from Square, p Piece, dst []Square) []Square {
	dir, _, _ := pawnGeometry(p.Color)
	for _, df := range [...]int{-1, 1} {
		if to := from.Offset(df, dir); to != NoSquare {
			dst = append(dst, to)
		}
	}
	return dst
}

// appendPawnMove expands a move onto the last rank into one move per promotion kind.
func appendPawnMove(dst []Move, m Move, lastRank int) []Move {
	if m.To.Rank() != lastRank {
		return append(dst, m)
	}
	for _, k := range PromotionKinds {
		pm := m
		pm.Promotion = k
		pm.Flags |= FlagPromotion
		dst = append(dst, pm)
	}
	return dst
}

// PseudoLegalMoves lists the moves of the piece on from without checking
// whether they leave its own king attacked. Castling moves are only listed
// when fully available (see CastleCheck).
func PseudoLegalMoves(s State, from Square) []Move {
	p := s.PieceAt(from)
	if p.IsZero() {
		return nil
	}
	return p.Kind.mover().moves(&s, from, p, nil)
}

// AllPseudoLegalMoves lists pseudo-legal moves for every piece of the side to move.
func AllPseudoLegalMoves(s State) []Move {
	out := make([]Move, 0, 48)
	for from := Square(0); from < 64; from++ {
		p := s.squares[from]
		if p.IsZero() || p.Color != s.turn {
			continue
		}
		out = p.Kind.mover().moves(&s, from, p, out)
	}
	return out
}

// IsSquareAttacked reports whether any piece of color by attacks sq, by
// collecting each such piece's attack set and testing membership.
func IsSquareAttacked(s State, sq Square, by Color) bool {
	if !sq.Valid() {
		return false
	}
	var buf [32]Square
	for from := Square(0); from < 64; from++ {
		p := s.squares[from]
		if p.IsZero() || p.Color != by {
			continue
		}
		for _, t := range p.Kind.mover().attacks(&s, from, p, buf[:0]) {
			if t == sq {
				return true
			}
		}
	}
	return false
}

// InCheck reports whether c's king is attacked.
func InCheck(s State, c Color) bool {
	k := s.KingSquare(c)
	if k == NoSquare {
		return false
	}
	return IsSquareAttacked(s, k, c.Opponent())
}

// CastleObstacle explains why a castle is unavailable.
type CastleObstacle uint8

const (
	CastleOK CastleObstacle = iota
	CastleNoRights
	CastleBlocked
	CastleInCheck
	CastleThroughCheck
)

// CastleCheck evaluates castling for c on side: rights intact, king and rook
// at home, the squares between them empty, and the king neither in check nor
// passing through or landing on an attacked square.
func CastleCheck(s State, c Color, side CastleSide) CastleObstacle {
	r := castleRoutes[c][side]
	if !s.castling.Has(Right(c, side)) ||
		s.squares[r.kingFrom] != (Piece{Kind: King, Color: c}) ||
		s.squares[r.rookFrom] != (Piece{Kind: Rook, Color: c}) {
		return CastleNoRights
	}
	for _, sq := range r.empty {
		if !s.squares[sq].IsZero() {
			return CastleBlocked
		}
	}
	opp := c.Opponent()
	if IsSquareAttacked(s, r.kingFrom, opp) {
		return CastleInCheck
	}
	for _, sq := range r.safe[1:] {
		if IsSquareAttacked(s, sq, opp) {
			return CastleThroughCheck
		}
	}
	return CastleOK
}
