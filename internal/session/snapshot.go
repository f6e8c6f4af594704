package session

import (
	"time"

	"github.com/park285/duelchess/internal/board"
)

// ClockView is the clock as seen at snapshot time.
type ClockView struct {
	White    time.Duration
	Black    time.Duration
	Deadline time.Time
	Expiry   Expiry
}

// Snapshot is an immutable copy of a session. It shares no memory with the
// session it was taken from.
type Snapshot struct {
	ID          string
	Seq         uint64
	Status      Status
	Reason      string
	Winner      string
	White       Participant
	Black       Participant
	State       board.State
	StartFEN    string
	InCheck     bool
	MovesUCI    []string
	MovesSAN    []string
	DrawOfferBy string
	TimeControl string
	Clock       *ClockView
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Session) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		ID:          s.id,
		Seq:         s.seq,
		Status:      s.status,
		White:       s.white,
		Black:       s.black,
		State:       s.state,
		StartFEN:    s.startFEN,
		InCheck:     board.InCheck(s.state, s.state.Turn()),
		MovesUCI:    make([]string, len(s.history)),
		MovesSAN:    make([]string, len(s.history)),
		TimeControl: s.tc.String(),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
	for i, r := range s.history {
		snap.MovesUCI[i] = r.UCI
		snap.MovesSAN[i] = r.SAN
	}
	if s.ending != nil {
		snap.Reason = s.ending.Reason
		snap.Winner = s.ending.WinnerName()
	}
	if c, ok := s.DrawOffer(); ok {
		snap.DrawOfferBy = c.String()
	}
	if s.clock != nil {
		at, kind := s.Deadline()
		snap.Clock = &ClockView{
			White:    s.clock.Remaining(board.White, now),
			Black:    s.clock.Remaining(board.Black, now),
			Deadline: at,
			Expiry:   kind,
		}
	}
	return snap
}

// Turn is the side to move.
func (s Snapshot) Turn() board.Color { return s.State.Turn() }

// FEN of the current position.
func (s Snapshot) FEN() string { return s.State.FEN() }

// ColorOf maps a participant id to its colour.
func (s Snapshot) ColorOf(pid string) (board.Color, bool) {
	switch pid {
	case s.White.ID:
		return board.White, pid != ""
	case s.Black.ID:
		return board.Black, pid != ""
	}
	return board.White, false
}
