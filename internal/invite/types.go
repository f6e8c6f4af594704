package invite

import (
	"strings"
	"time"

	"github.com/park285/duelchess/pkg/chessdto"
)

// Status of an invitation. Expired invitations are simply gone from Redis.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
)

// ColorChoice is the color the sender asks to play.
type ColorChoice string

const (
	ColorWhite  ColorChoice = "white"
	ColorBlack  ColorChoice = "black"
	ColorRandom ColorChoice = "random"
)

// ParseColor maps free text to a choice; anything unknown is random.
func ParseColor(s string) ColorChoice {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w", "백":
		return ColorWhite
	case "black", "b", "흑":
		return ColorBlack
	default:
		return ColorRandom
	}
}

// Invite is stored as JSON under invite:<id>.
type Invite struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	FromID      string      `json:"from_id"`
	FromName    string      `json:"from_name,omitempty"`
	ToID        string      `json:"to_id"`
	ToName      string      `json:"to_name,omitempty"`
	Color       ColorChoice `json:"color"`
	TimeControl string      `json:"time_control,omitempty"`
	GameID      string      `json:"game_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// DTO is the wire form carried by invite.* events.
func (inv Invite) DTO() chessdto.Invite {
	return chessdto.Invite{
		InviteID:    inv.ID,
		FromID:      inv.FromID,
		FromName:    inv.FromName,
		ToID:        inv.ToID,
		ToName:      inv.ToName,
		Color:       string(inv.Color),
		TimeControl: inv.TimeControl,
		GameID:      inv.GameID,
		ExpiresAt:   inv.ExpiresAt,
	}
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrInvalidArgs     error = staticErr("invalid invite arguments")
	ErrSelfInvite      error = staticErr("cannot invite yourself")
	ErrInviteExpired   error = staticErr("invite not found or expired")
	ErrNotInvitee      error = staticErr("invite is addressed to someone else")
	ErrAlreadyAnswered error = staticErr("invite already answered")
)
