package chessdto

import "time"

// Event type names shared by publishers and clients.
const (
	EventMoveAccepted   = "move.accepted"
	EventMoveRejected   = "move.rejected"
	EventGameEnded      = "game.ended"
	EventGameSnapshot   = "game.snapshot"
	EventDrawOffered    = "draw.offered"
	EventDrawDeclined   = "draw.declined"
	EventInviteSent     = "invite.sent"
	EventInviteAccepted = "invite.accepted"
	EventInviteDeclined = "invite.declined"
	EventPresenceJoined = "presence.joined"
	EventPresenceLeft   = "presence.left"
	EventReply          = "reply"
)

type MoveAccepted struct {
	GameID        string `json:"game_id"`
	Seq           uint64 `json:"seq"`
	Ply           int    `json:"ply"`
	Move          Move   `json:"move"`
	ResultingTurn string `json:"resulting_turn"`
	FEN           string `json:"fen"`
	Check         bool   `json:"check,omitempty"`
	Clock         *Clock `json:"clock,omitempty"`
}

// MoveRejected is delivered to the submitter only.
type MoveRejected struct {
	GameID    string `json:"game_id"`
	RequestID string `json:"request_id,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	Reason    string `json:"reason"`
	Message   string `json:"message,omitempty"`
}

type GameEnded struct {
	GameID   string `json:"game_id"`
	Seq      uint64 `json:"seq"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	Winner   string `json:"winner,omitempty"`
	WinnerID string `json:"winner_id,omitempty"`
}

type DrawOffer struct {
	GameID string `json:"game_id"`
	Seq    uint64 `json:"seq"`
	By     string `json:"by"`
	ByID   string `json:"by_id"`
}

type Invite struct {
	InviteID    string    `json:"invite_id"`
	FromID      string    `json:"from_id"`
	FromName    string    `json:"from_name,omitempty"`
	ToID        string    `json:"to_id"`
	ToName      string    `json:"to_name,omitempty"`
	Color       string    `json:"color,omitempty"`
	TimeControl string    `json:"time_control,omitempty"`
	GameID      string    `json:"game_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Presence struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	GameID string `json:"game_id,omitempty"`
}
