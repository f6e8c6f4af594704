package chessdto

import "encoding/json"

// Command types accepted from clients.
const (
	CmdJoin          = "join"
	CmdLeave         = "leave"
	CmdMove          = "move"
	CmdResign        = "resign"
	CmdDrawOffer     = "draw.offer"
	CmdDrawAccept    = "draw.accept"
	CmdDrawDecline   = "draw.decline"
	CmdLegalMoves    = "moves"
	CmdInvite        = "invite"
	CmdInviteAccept  = "invite.accept"
	CmdInviteDecline = "invite.decline"
	CmdInvites       = "invites"
)

// Command is one inbound frame. Fields not used by Type are ignored.
type Command struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	GameID    string `json:"game_id,omitempty"`

	// move: either From/To(/Promotion) or Notation ("e2e4", "Nf3").
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Notation  string `json:"notation,omitempty"`

	// moves
	Square string `json:"square,omitempty"`

	// invite
	InviteID    string `json:"invite_id,omitempty"`
	TargetID    string `json:"target_id,omitempty"`
	TargetName  string `json:"target_name,omitempty"`
	Color       string `json:"color,omitempty"`
	TimeControl string `json:"time_control,omitempty"`
}

// Reply acknowledges a command on the submitting connection.
type Reply struct {
	RequestID string          `json:"request_id,omitempty"`
	Command   string          `json:"command"`
	OK        bool            `json:"ok"`
	Error     *DomainError    `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}
