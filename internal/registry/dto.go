package registry

import (
	"github.com/park285/duelchess/internal/board"
	"github.com/park285/duelchess/internal/session"
	"github.com/park285/duelchess/pkg/chessdto"
)

// SnapshotDTO converts a session snapshot to its wire form.
func SnapshotDTO(s session.Snapshot) chessdto.GameSnapshot {
	return chessdto.GameSnapshot{
		GameID:      s.ID,
		Seq:         s.Seq,
		Status:      string(s.Status),
		Reason:      s.Reason,
		Winner:      s.Winner,
		White:       chessdto.Participant{ID: s.White.ID, Name: s.White.Name},
		Black:       chessdto.Participant{ID: s.Black.ID, Name: s.Black.Name},
		Turn:        s.Turn().String(),
		FEN:         s.FEN(),
		InCheck:     s.InCheck,
		MovesUCI:    s.MovesUCI,
		MovesSAN:    s.MovesSAN,
		DrawOfferBy: s.DrawOfferBy,
		TimeControl: s.TimeControl,
		Clock:       clockDTO(s.Clock),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func clockDTO(c *session.ClockView) *chessdto.Clock {
	if c == nil {
		return nil
	}
	out := &chessdto.Clock{WhiteMs: c.White.Milliseconds(), BlackMs: c.Black.Milliseconds()}
	if !c.Deadline.IsZero() {
		out.DeadlineUnixMs = c.Deadline.UnixMilli()
	}
	return out
}

// MoveDTO describes m for clients.
func MoveDTO(m board.Move, san string) chessdto.Move {
	out := chessdto.Move{
		From:      m.From.String(),
		To:        m.To.String(),
		Piece:     m.Piece.Kind.String(),
		Color:     m.Piece.Color.String(),
		UCI:       m.UCI(),
		SAN:       san,
		Castle:    m.IsCastle(),
		EnPassant: m.IsEnPassant(),
	}
	if m.IsCapture() {
		out.Captured = m.Captured.Kind.String()
	}
	if m.IsPromotion() {
		out.Promotion = m.Promotion.String()
	}
	return out
}

func moveAccepted(gameID string, rec session.Record, snap session.Snapshot) chessdto.MoveAccepted {
	return chessdto.MoveAccepted{
		GameID:        gameID,
		Seq:           rec.Seq,
		Ply:           rec.Ply,
		Move:          MoveDTO(rec.Move, rec.SAN),
		ResultingTurn: rec.Color.Opponent().String(),
		FEN:           rec.FEN,
		Check:         rec.Check,
		Clock:         clockDTO(snap.Clock),
	}
}

func gameEnded(gameID string, end session.Ending, snap session.Snapshot) chessdto.GameEnded {
	out := chessdto.GameEnded{
		GameID: gameID,
		Seq:    end.Seq,
		Status: string(end.Status),
		Reason: end.Reason,
		Winner: end.WinnerName(),
	}
	if end.HasWinner {
		if end.Winner == board.White {
			out.WinnerID = snap.White.ID
		} else {
			out.WinnerID = snap.Black.ID
		}
	}
	return out
}

func drawOffer(gameID string, ev session.DrawEvent, snap session.Snapshot) chessdto.DrawOffer {
	by := snap.White.ID
	if ev.By == board.Black {
		by = snap.Black.ID
	}
	return chessdto.DrawOffer{GameID: gameID, Seq: ev.Seq, By: ev.By.String(), ByID: by}
}

// LegalMovesDTO groups legal moves from one square for highlighting.
func LegalMovesDTO(gameID string, from board.Square, moves []board.Move) chessdto.LegalMoves {
	out := chessdto.LegalMoves{GameID: gameID, From: from.String(), To: []string{}}
	seen := make(map[board.Square]bool, len(moves))
	for _, m := range moves {
		if seen[m.To] {
			continue
		}
		seen[m.To] = true
		out.To = append(out.To, m.To.String())
		if m.IsPromotion() {
			out.Promotion = append(out.Promotion, m.To.String())
		}
	}
	return out
}
