package rules

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalMove       = errors.New("illegal move")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrPromotionRequired = errors.New("promotion required")
	ErrNoPieceAtSource   = errors.New("no piece at source square")
	ErrMalformedMove     = errors.New("malformed move")
)

// Reason classifies a rejected candidate so clients can tell apart
// "not your turn", "square unreachable" and "would expose king".
type Reason string

const (
	ReasonInvalidSquare       Reason = "invalid_square"
	ReasonNoPieceAtSource     Reason = "no_piece_at_source"
	ReasonWrongTurn           Reason = "wrong_turn"
	ReasonDestinationOccupied Reason = "destination_occupied"
	ReasonWrongPattern        Reason = "wrong_pattern"
	ReasonBlockedPath         Reason = "blocked_path"
	ReasonCastlingUnavailable Reason = "castling_unavailable"
	ReasonCastleThroughCheck  Reason = "castle_through_check"
	ReasonPromotionRequired   Reason = "promotion_required"
	ReasonInvalidPromotion    Reason = "invalid_promotion"
	ReasonExposesKing         Reason = "exposes_king"
)

// MoveError reports why a candidate was rejected. Every MoveError matches
// ErrIllegalMove; some reasons also match a narrower sentinel.
type MoveError struct {
	Reason    Reason
	Candidate Candidate
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("illegal move %s: %s", e.Candidate, e.Reason)
}

func (e *MoveError) Is(target error) bool {
	switch target {
	case ErrIllegalMove:
		return true
	case ErrNotYourTurn:
		return e.Reason == ReasonWrongTurn
	case ErrPromotionRequired:
		return e.Reason == ReasonPromotionRequired
	case ErrNoPieceAtSource:
		return e.Reason == ReasonNoPieceAtSource
	default:
		return false
	}
}

// ReasonOf extracts the rejection reason from err, if it carries one.
func ReasonOf(err error) (Reason, bool) {
	var me *MoveError
	if errors.As(err, &me) {
		return me.Reason, true
	}
	return "", false
}
