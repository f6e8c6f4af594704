package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/duelchess/internal/board"
	"github.com/park285/duelchess/internal/invite"
	"github.com/park285/duelchess/internal/realtime"
	"github.com/park285/duelchess/internal/registry"
	"github.com/park285/duelchess/internal/rules"
	"github.com/park285/duelchess/internal/session"
	"github.com/park285/duelchess/pkg/chessdto"
)

var (
	errMissingGameID   = fmt.Errorf("%w: game_id is required", invite.ErrInvalidArgs)
	errInvitesDisabled = fmt.Errorf("invites: %w", realtime.ErrTransportUnavailable)
)

func (c *conn) handle(ctx context.Context, cmd chessdto.Command) {
	cctx, cancel := context.WithTimeout(ctx, c.srv.cfg.CommandTimeout)
	defer cancel()
	data, err := c.dispatch(cctx, cmd)
	if err != nil {
		c.logger.Debug("ws_command_error", zap.String("command", cmd.Type), zap.String("game_id", cmd.GameID), zap.Error(err))
	}
	c.reply(ctx, cmd, data, err)
}

func (c *conn) dispatch(ctx context.Context, cmd chessdto.Command) (any, error) {
	cmd.GameID = strings.TrimSpace(cmd.GameID)
	switch cmd.Type {
	case chessdto.CmdJoin:
		return c.join(ctx, cmd.GameID)
	case chessdto.CmdLeave:
		return nil, c.leave(ctx, cmd.GameID)
	case chessdto.CmdMove:
		return c.move(ctx, cmd)
	case chessdto.CmdResign:
		end, err := c.srv.reg.Resign(ctx, cmd.GameID, c.user.ID)
		return endingData(cmd.GameID, end), err
	case chessdto.CmdDrawAccept:
		end, err := c.srv.reg.AcceptDraw(ctx, cmd.GameID, c.user.ID)
		return endingData(cmd.GameID, end), err
	case chessdto.CmdDrawOffer:
		ev, err := c.srv.reg.OfferDraw(ctx, cmd.GameID, c.user.ID)
		return drawData(cmd.GameID, ev, c.user.ID), err
	case chessdto.CmdDrawDecline:
		ev, err := c.srv.reg.DeclineDraw(ctx, cmd.GameID, c.user.ID)
		return drawData(cmd.GameID, ev, c.user.ID), err
	case chessdto.CmdLegalMoves:
		return c.legalMoves(cmd)
	case chessdto.CmdInvite:
		return c.invite(ctx, cmd)
	case chessdto.CmdInviteAccept:
		return c.acceptInvite(ctx, cmd)
	case chessdto.CmdInvites:
		return c.invites(ctx, cmd)
	case chessdto.CmdInviteDecline:
		if c.srv.inv == nil {
			return nil, errInvitesDisabled
		}
		inv, err := c.srv.inv.Decline(ctx, cmd.InviteID, c.user.ID)
		if err != nil {
			return nil, err
		}
		return inv.DTO(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownCommand, cmd.Type)
	}
}

func (c *conn) join(ctx context.Context, gameID string) (any, error) {
	if gameID == "" {
		return nil, errMissingGameID
	}
	snap, err := c.srv.reg.Snapshot(gameID)
	if errors.Is(err, registry.ErrSessionNotFound) {
		snap, err = c.srv.reg.Restore(ctx, gameID)
	}
	if err != nil {
		return nil, err
	}
	if err := c.follow(ctx, gameID); err != nil {
		return nil, err
	}
	return registry.SnapshotDTO(snap), nil
}

// follow subscribes to a game's events and queues a snapshot so the
// follower starts from the current sequence number.
func (c *conn) follow(ctx context.Context, gameID string) error {
	key := realtime.GameKey(gameID)
	_, already := c.subs[key]
	if err := c.subscribe(ctx, key); err != nil {
		return err
	}
	c.enqueue(ctx, outbound{sync: gameID})
	if !already {
		c.presence(chessdto.EventPresenceJoined, gameID)
	}
	return nil
}

func (c *conn) leave(ctx context.Context, gameID string) error {
	if gameID == "" {
		return errMissingGameID
	}
	if c.unsubscribe(realtime.GameKey(gameID)) {
		c.enqueue(ctx, outbound{forget: gameID})
		c.presence(chessdto.EventPresenceLeft, gameID)
	}
	return nil
}

func (c *conn) move(ctx context.Context, cmd chessdto.Command) (any, error) {
	var (
		rec  session.Record
		err  error
		text = strings.TrimSpace(cmd.Notation)
	)
	if text != "" {
		rec, err = c.srv.reg.SubmitNotation(ctx, cmd.GameID, c.user.ID, text)
	} else {
		var cand rules.Candidate
		cand, err = candidateOf(cmd)
		text = strings.TrimSpace(cmd.From) + strings.TrimSpace(cmd.To) + strings.TrimSpace(cmd.Promotion)
		if err == nil {
			text = cand.String()
			rec, err = c.srv.reg.SubmitMove(ctx, cmd.GameID, c.user.ID, cand)
		}
	}
	if err != nil {
		de := describe(c.srv.cat, err, moveData(cmd, text))
		ev, encErr := realtime.NewEvent(chessdto.EventMoveRejected, cmd.GameID, 0, chessdto.MoveRejected{
			GameID:    cmd.GameID,
			RequestID: cmd.RequestID,
			Candidate: text,
			Reason:    de.Code,
			Message:   de.Message,
		}, time.Now())
		if encErr == nil {
			c.send(ctx, ev)
		}
		return nil, err
	}
	return chessdto.MoveAccepted{
		GameID:        cmd.GameID,
		Seq:           rec.Seq,
		Ply:           rec.Ply,
		Move:          registry.MoveDTO(rec.Move, rec.SAN),
		ResultingTurn: rec.Color.Opponent().String(),
		FEN:           rec.FEN,
		Check:         rec.Check,
	}, nil
}

func candidateOf(cmd chessdto.Command) (rules.Candidate, error) {
	from, err := board.ParseSquare(strings.ToLower(strings.TrimSpace(cmd.From)))
	if err != nil {
		return rules.Candidate{}, fmt.Errorf("%w: %v", rules.ErrMalformedMove, err)
	}
	to, err := board.ParseSquare(strings.ToLower(strings.TrimSpace(cmd.To)))
	if err != nil {
		return rules.Candidate{}, fmt.Errorf("%w: %v", rules.ErrMalformedMove, err)
	}
	promo, err := board.ParseKind(cmd.Promotion)
	if err != nil {
		return rules.Candidate{}, fmt.Errorf("%w: %v", rules.ErrMalformedMove, err)
	}
	return rules.Candidate{From: from, To: to, Promotion: promo}, nil
}

func moveData(cmd chessdto.Command, text string) map[string]string {
	from, to := strings.TrimSpace(cmd.From), strings.TrimSpace(cmd.To)
	if from == "" && len(text) >= 4 {
		from, to = text[0:2], text[2:4]
	}
	return map[string]string{"Move": text, "From": from, "To": to}
}

func endingData(gameID string, end session.Ending) chessdto.GameEnded {
	return chessdto.GameEnded{GameID: gameID, Seq: end.Seq, Status: string(end.Status), Reason: end.Reason, Winner: end.WinnerName()}
}

func drawData(gameID string, ev session.DrawEvent, by string) chessdto.DrawOffer {
	return chessdto.DrawOffer{GameID: gameID, Seq: ev.Seq, By: ev.By.String(), ByID: by}
}

func (c *conn) legalMoves(cmd chessdto.Command) (any, error) {
	from, err := board.ParseSquare(strings.ToLower(strings.TrimSpace(cmd.Square)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rules.ErrMalformedMove, err)
	}
	moves, err := c.srv.reg.LegalMoves(cmd.GameID, from)
	if err != nil {
		return nil, err
	}
	return registry.LegalMovesDTO(cmd.GameID, from, moves), nil
}

func (c *conn) invite(ctx context.Context, cmd chessdto.Command) (any, error) {
	if c.srv.inv == nil {
		return nil, errInvitesDisabled
	}
	target := session.Participant{ID: strings.TrimSpace(cmd.TargetID), Name: strings.TrimSpace(cmd.TargetName)}
	inv, err := c.srv.inv.Send(ctx, c.user, target, invite.ParseColor(cmd.Color), cmd.TimeControl)
	if err != nil {
		return nil, err
	}
	return inv.DTO(), nil
}

func (c *conn) acceptInvite(ctx context.Context, cmd chessdto.Command) (any, error) {
	if c.srv.inv == nil {
		return nil, errInvitesDisabled
	}
	_, snap, err := c.srv.inv.Accept(ctx, cmd.InviteID, c.user.ID)
	if err != nil {
		return nil, err
	}
	if err := c.follow(ctx, snap.ID); err != nil {
		return nil, err
	}
	return registry.SnapshotDTO(snap), nil
}

// invites returns one invite by id, or the caller's pending inbox.
func (c *conn) invites(ctx context.Context, cmd chessdto.Command) (any, error) {
	if c.srv.inv == nil {
		return nil, errInvitesDisabled
	}
	if id := strings.TrimSpace(cmd.InviteID); id != "" {
		inv, err := c.srv.inv.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv.FromID != c.user.ID && inv.ToID != c.user.ID {
			return nil, invite.ErrNotInvitee
		}
		return inv.DTO(), nil
	}
	pending, err := c.srv.inv.Pending(ctx, c.user.ID)
	if err != nil {
		return nil, err
	}
	out := make([]chessdto.Invite, 0, len(pending))
	for _, inv := range pending {
		out = append(out, inv.DTO())
	}
	return out, nil
}

func (c *conn) reply(ctx context.Context, cmd chessdto.Command, data any, err error) {
	r := chessdto.Reply{RequestID: cmd.RequestID, Command: cmd.Type, OK: err == nil}
	if err != nil {
		de := describe(c.srv.cat, err, moveData(cmd, strings.TrimSpace(cmd.Notation)))
		r.Error = &de
	} else if data != nil {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			c.logger.Error("ws_reply_encode_error", zap.String("command", cmd.Type), zap.Error(mErr))
		} else {
			r.Data = raw
		}
	}
	ev, encErr := realtime.NewEvent(chessdto.EventReply, cmd.GameID, 0, r, time.Now())
	if encErr != nil {
		return
	}
	c.send(ctx, ev)
}
