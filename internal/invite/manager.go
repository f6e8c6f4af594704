package invite

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/duelchess/internal/realtime"
	"github.com/park285/duelchess/internal/registry"
	"github.com/park285/duelchess/internal/session"
	"github.com/park285/duelchess/pkg/chessdto"
)

// GameStarter creates the session once an invite is accepted.
type GameStarter interface {
	Create(ctx context.Context, white, black session.Participant, opts registry.CreateOptions) (session.Snapshot, error)
}

type Manager struct {
	store  *RedisStore
	games  GameStarter
	bus    *realtime.Broadcaster
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store *RedisStore, games GameStarter, bus *realtime.Broadcaster, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, games: games, bus: bus, ttl: ttl, logger: logger, now: time.Now}
}

// Send invites to to play from. timeControl may be empty for the server
// default.
func (m *Manager) Send(ctx context.Context, from, to session.Participant, color ColorChoice, timeControl string) (Invite, error) {
	from.ID, to.ID = strings.TrimSpace(from.ID), strings.TrimSpace(to.ID)
	if from.ID == "" || to.ID == "" {
		return Invite{}, ErrInvalidArgs
	}
	if from.ID == to.ID {
		return Invite{}, ErrSelfInvite
	}
	if tc := strings.TrimSpace(timeControl); tc != "" {
		parsed, err := session.ParseTimeControl(tc)
		if err != nil {
			return Invite{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
		timeControl = parsed.String()
	}
	if color == "" {
		color = ColorRandom
	}
	now := m.now()
	inv := &Invite{
		Status:      StatusPending,
		FromID:      from.ID,
		FromName:    from.Name,
		ToID:        to.ID,
		ToName:      to.Name,
		Color:       color,
		TimeControl: timeControl,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, inv, m.ttl); err != nil {
		return Invite{}, err
	}
	m.notify(chessdto.EventInviteSent, *inv, now, inv.ToID, inv.FromID)
	m.logger.Info("invite_send",
		zap.String("invite_id", inv.ID),
		zap.String("from_id", inv.FromID),
		zap.String("to_id", inv.ToID),
		zap.String("color", string(inv.Color)),
	)
	return *inv, nil
}

// Accept answers an invite as its invitee and starts the game. When the
// game cannot start the invite goes back to pending.
func (m *Manager) Accept(ctx context.Context, id, by string) (Invite, session.Snapshot, error) {
	by = strings.TrimSpace(by)
	inv, err := m.store.Transition(ctx, id, StatusAccepted, func(inv *Invite) error {
		if inv.ToID != by {
			return ErrNotInvitee
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("invite_accept_error", zap.String("invite_id", id), zap.String("user_id", by), zap.Error(err))
		return Invite{}, session.Snapshot{}, err
	}

	sender := session.Participant{ID: inv.FromID, Name: inv.FromName}
	invitee := session.Participant{ID: inv.ToID, Name: inv.ToName}
	white, black := sender, invitee
	if senderPlaysBlack(inv.Color) {
		white, black = invitee, sender
	}
	opts := registry.CreateOptions{}
	if inv.TimeControl != "" {
		if tc, err := session.ParseTimeControl(inv.TimeControl); err == nil {
			opts.TimeControl = &tc
		}
	}
	snap, err := m.games.Create(ctx, white, black, opts)
	if err != nil {
		if rerr := m.store.Reopen(context.WithoutCancel(ctx), inv); rerr != nil {
			m.logger.Warn("invite_reopen_error", zap.String("invite_id", inv.ID), zap.Error(rerr))
		}
		return Invite{}, session.Snapshot{}, fmt.Errorf("start game: %w", err)
	}
	inv.GameID = snap.ID
	if err := m.store.Update(ctx, inv); err != nil {
		m.logger.Warn("invite_update_error", zap.String("invite_id", inv.ID), zap.Error(err))
	}
	m.notify(chessdto.EventInviteAccepted, *inv, m.now(), inv.FromID, inv.ToID)
	m.logger.Info("invite_accept",
		zap.String("invite_id", inv.ID),
		zap.String("game_id", snap.ID),
		zap.String("white_id", snap.White.ID),
		zap.String("black_id", snap.Black.ID),
	)
	return *inv, snap, nil
}

// Decline answers an invite without starting a game. The sender may also
// withdraw a pending invite this way.
func (m *Manager) Decline(ctx context.Context, id, by string) (Invite, error) {
	by = strings.TrimSpace(by)
	inv, err := m.store.Transition(ctx, id, StatusDeclined, func(inv *Invite) error {
		if inv.ToID != by && inv.FromID != by {
			return ErrNotInvitee
		}
		return nil
	})
	if err != nil {
		return Invite{}, err
	}
	m.notify(chessdto.EventInviteDeclined, *inv, m.now(), inv.FromID, inv.ToID)
	m.logger.Info("invite_decline", zap.String("invite_id", inv.ID), zap.String("by", by))
	return *inv, nil
}

func (m *Manager) Get(ctx context.Context, id string) (Invite, error) {
	inv, err := m.store.Load(ctx, id)
	if err != nil {
		return Invite{}, err
	}
	if inv == nil {
		return Invite{}, ErrInviteExpired
	}
	return *inv, nil
}

// Pending lists the unanswered invites addressed to user.
func (m *Manager) Pending(ctx context.Context, user string) ([]Invite, error) {
	return m.store.Inbox(ctx, user)
}

func (m *Manager) notify(typ string, inv Invite, at time.Time, users ...string) {
	for _, u := range users {
		m.bus.SendPayload(realtime.UserKey(u), typ, inv.GameID, 0, inv.DTO(), at)
	}
}

func senderPlaysBlack(c ColorChoice) bool {
	switch c {
	case ColorWhite:
		return false
	case ColorBlack:
		return true
	}
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return false
	}
	return b[0]&1 == 1
}
