package rules

import "github.com/park285/duelchess/internal/board"

// Termination is the automatic end condition of a position, if any.
type Termination uint8

const (
	Ongoing Termination = iota
	Checkmate
	Stalemate
	InsufficientMaterial
	SeventyFiveMoveRule
)

func (t Termination) String() string {
	switch t {
	case Checkmate:
		return "checkmate"
	case Stalemate:
		return "stalemate"
	case InsufficientMaterial:
		return "insufficient_material"
	case SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	default:
		return "ongoing"
	}
}

// IsDraw reports whether t ends the game without a winner.
func (t Termination) IsDraw() bool {
	return t == Stalemate || t == InsufficientMaterial || t == SeventyFiveMoveRule
}

// seventyFiveMoves is the halfmove clock value that ends the game automatically.
const seventyFiveMoves = 150

// Verdict summarises a position for the side to move.
type Verdict struct {
	Termination Termination
	InCheck     bool
	Winner      board.Color // meaningful only for Checkmate
}

// Evaluate reports checkmate (in check, no legal move), stalemate (not in
// check, no legal move) and the automatic draws by material or the 75-move rule.
func Evaluate(s board.State) Verdict {
	v := Verdict{InCheck: board.InCheck(s, s.Turn())}
	canMove := HasLegalMove(s)
	switch {
	case !canMove && v.InCheck:
		v.Termination = Checkmate
		v.Winner = s.Turn().Opponent()
	case !canMove:
		v.Termination = Stalemate
	case HasInsufficientMaterial(s):
		v.Termination = InsufficientMaterial
	case s.HalfmoveClock() >= seventyFiveMoves:
		v.Termination = SeventyFiveMoveRule
	}
	return v
}

// HasInsufficientMaterial reports positions where neither side can mate:
// bare kings, a single minor piece, or only bishops all on one square colour.
func HasInsufficientMaterial(s board.State) bool {
	minors := 0
	bishopsLight, bishopsDark := 0, 0
	for _, c := range [...]board.Color{board.White, board.Black} {
		for _, sq := range s.Squares(c) {
			switch s.PieceAt(sq).Kind {
			case board.King:
			case board.Knight:
				minors++
			case board.Bishop:
				minors++
				if sq.Light() {
					bishopsLight++
				} else {
					bishopsDark++
				}
			default:
				return false
			}
		}
	}
	if minors <= 1 {
		return true
	}
	return bishopsLight+bishopsDark == minors && (bishopsLight == 0 || bishopsDark == 0)
}
