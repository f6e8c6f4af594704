package gateway

import (
	"errors"

	"github.com/park285/duelchess/internal/identity"
	"github.com/park285/duelchess/internal/invite"
	"github.com/park285/duelchess/internal/msgcat"
	"github.com/park285/duelchess/internal/notation"
	"github.com/park285/duelchess/internal/realtime"
	"github.com/park285/duelchess/internal/registry"
	"github.com/park285/duelchess/internal/rules"
	"github.com/park285/duelchess/internal/session"
	"github.com/park285/duelchess/pkg/chessdto"
)

var errUnknownCommand = errors.New("unknown command")

type errorClass struct {
	target    error
	code      string
	key       string
	retryable bool
}

// Checked in order; the first match wins.
var errorClasses = []errorClass{
	{rules.ErrMalformedMove, "malformed_move", "error.malformed_move", false},
	{notation.ErrUnknownNotation, "malformed_move", "error.unknown_notation", false},
	{registry.ErrSessionNotFound, "session_not_found", "error.session_not_found", false},
	{registry.ErrTimeout, "timeout", "error.timeout", true},
	{registry.ErrCapacity, "capacity", "error.capacity", true},
	{registry.ErrRegistryClosed, "unavailable", "error.timeout", true},
	{session.ErrClockExpired, "clock_expired", "error.clock_expired", false},
	{session.ErrSessionClosed, "session_closed", "error.session_closed", false},
	{session.ErrNotAParticipant, "not_a_participant", "error.not_a_participant", false},
	{session.ErrNoDrawOffer, "no_draw_offer", "error.no_draw_offer", false},
	{session.ErrDrawOfferPending, "draw_offer_pending", "error.draw_offer_pending", false},
	{session.ErrNotExpired, "not_expired", "error.not_expired", false},
	{invite.ErrInviteExpired, "invite_expired", "error.invite_expired", false},
	{invite.ErrAlreadyAnswered, "invite_answered", "error.invite_answered", false},
	{invite.ErrNotInvitee, "not_invitee", "error.not_invitee", false},
	{invite.ErrSelfInvite, "self_invite", "error.self_invite", false},
	{invite.ErrInvalidArgs, "invalid_args", "error.invalid_args", false},
	{identity.ErrUnauthenticated, "unauthorized", "error.unauthorized", false},
	{identity.ErrUnknownUser, "unauthorized", "error.unauthorized", false},
	{realtime.ErrTransportUnavailable, "unavailable", "error.timeout", true},
	{errUnknownCommand, "unknown_command", "error.invalid_args", false},
}

// describe maps err to its wire form. Rejected moves carry their reason as
// the code so clients can tell "not your turn" from "would expose king".
func describe(cat *msgcat.Catalog, err error, data map[string]string) chessdto.DomainError {
	if data == nil {
		data = map[string]string{}
	}
	for _, k := range []string{"Move", "From", "To"} {
		if _, ok := data[k]; !ok {
			data[k] = ""
		}
	}
	if reason, ok := rules.ReasonOf(err); ok {
		return chessdto.DomainError{
			Code:    string(reason),
			Message: cat.Text("reject."+string(reason), data, err.Error()),
		}
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return chessdto.DomainError{Code: c.code, Message: cat.Text(c.key, data, err.Error()), Retryable: c.retryable}
		}
	}
	return chessdto.DomainError{Code: "internal", Message: cat.Text("error.internal", data, "internal error")}
}
