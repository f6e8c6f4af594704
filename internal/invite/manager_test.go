package invite

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/duelchess/internal/realtime"
	"github.com/park285/duelchess/internal/registry"
	"github.com/park285/duelchess/internal/session"
	"github.com/park285/duelchess/pkg/chessdto"
)

var (
	u1 = session.Participant{ID: "u1", Name: "Alice"}
	u2 = session.Participant{ID: "u2", Name: "Bob"}
)

type fixture struct {
	mr  *miniredis.Miniredis
	m   *Manager
	reg *registry.Registry
	ch  *realtime.MemoryChannel
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ch := realtime.NewMemoryChannel(32)
	bus := realtime.NewBroadcaster(ch, time.Second, nil)
	reg := registry.New(registry.Config{}, bus)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	return &fixture{mr: mr, m: NewManager(NewRedisStore(rdb, ""), reg, bus, ttl, nil), reg: reg, ch: ch}
}

func (f *fixture) inbox(t *testing.T, user string) realtime.Subscription {
	t.Helper()
	sub, err := f.ch.Subscribe(context.Background(), realtime.UserKey(user))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func expectEvent(t *testing.T, sub realtime.Subscription, typ string) chessdto.Invite {
	t.Helper()
	select {
	case ev := <-sub.Events():
		if ev.Type != typ {
			t.Fatalf("event type = %s, want %s", ev.Type, typ)
		}
		var inv chessdto.Invite
		if err := ev.Decode(&inv); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		return inv
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s event", typ)
	}
	return chessdto.Invite{}
}

func TestSendAcceptStartsGame(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	aliceInbox, bobInbox := f.inbox(t, "u1"), f.inbox(t, "u2")

	inv, err := f.m.Send(ctx, u1, u2, ColorBlack, "5+3")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if inv.ID == "" || inv.Status != StatusPending || inv.TimeControl != "5+3" {
		t.Fatalf("invite = %+v", inv)
	}
	if got := expectEvent(t, bobInbox, chessdto.EventInviteSent); got.InviteID != inv.ID || got.FromName != "Alice" {
		t.Fatalf("invitee saw %+v", got)
	}
	expectEvent(t, aliceInbox, chessdto.EventInviteSent)

	pending, err := f.m.Pending(ctx, "u2")
	if err != nil || len(pending) != 1 || pending[0].ID != inv.ID {
		t.Fatalf("Pending = %+v, %v", pending, err)
	}

	accepted, snap, err := f.m.Accept(ctx, inv.ID, "u2")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if snap.White.ID != "u2" || snap.Black.ID != "u1" || snap.TimeControl != "5+3" {
		t.Fatalf("game = white %s black %s tc %s", snap.White.ID, snap.Black.ID, snap.TimeControl)
	}
	if accepted.GameID != snap.ID || accepted.Status != StatusAccepted {
		t.Fatalf("accepted = %+v", accepted)
	}
	if got := expectEvent(t, aliceInbox, chessdto.EventInviteAccepted); got.GameID != snap.ID {
		t.Fatalf("sender saw %+v", got)
	}
	if _, err := f.reg.Snapshot(snap.ID); err != nil {
		t.Fatalf("registry has no game: %v", err)
	}
	if stored, _ := f.m.Get(ctx, inv.ID); stored.GameID != snap.ID {
		t.Fatalf("stored invite = %+v", stored)
	}
	if pending, _ := f.m.Pending(ctx, "u2"); len(pending) != 0 {
		t.Fatalf("answered invite still pending: %+v", pending)
	}
}

func TestAcceptOnlyOnce(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	inv, err := f.m.Send(ctx, u1, u2, ColorWhite, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, _, err := f.m.Accept(ctx, inv.ID, "u1"); !errors.Is(err, ErrNotInvitee) {
		t.Fatalf("sender accept err = %v", err)
	}
	if _, _, err := f.m.Accept(ctx, inv.ID, "u2"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, _, err := f.m.Accept(ctx, inv.ID, "u2"); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("second accept err = %v", err)
	}
	if f.reg.Len() != 1 {
		t.Fatalf("games = %d, want 1", f.reg.Len())
	}
}

func TestInviteExpires(t *testing.T) {
	f := newFixture(t, 30*time.Second)
	ctx := context.Background()
	inv, err := f.m.Send(ctx, u1, u2, ColorRandom, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	f.mr.FastForward(31 * time.Second)

	if _, _, err := f.m.Accept(ctx, inv.ID, "u2"); !errors.Is(err, ErrInviteExpired) {
		t.Fatalf("err = %v, want ErrInviteExpired", err)
	}
	if pending, err := f.m.Pending(ctx, "u2"); err != nil || len(pending) != 0 {
		t.Fatalf("Pending = %+v, %v", pending, err)
	}
	if f.reg.Len() != 0 {
		t.Fatalf("expired invite started a game")
	}
}

func TestDecline(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	aliceInbox := f.inbox(t, "u1")
	inv, err := f.m.Send(ctx, u1, u2, ColorRandom, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	expectEvent(t, aliceInbox, chessdto.EventInviteSent)

	if _, err := f.m.Decline(ctx, inv.ID, "u3"); !errors.Is(err, ErrNotInvitee) {
		t.Fatalf("stranger decline err = %v", err)
	}
	declined, err := f.m.Decline(ctx, inv.ID, "u2")
	if err != nil || declined.Status != StatusDeclined {
		t.Fatalf("Decline = %+v, %v", declined, err)
	}
	expectEvent(t, aliceInbox, chessdto.EventInviteDeclined)
	if _, _, err := f.m.Accept(ctx, inv.ID, "u2"); !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("accept after decline err = %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	if _, err := f.m.Send(ctx, u1, u1, ColorRandom, ""); !errors.Is(err, ErrSelfInvite) {
		t.Fatalf("self invite err = %v", err)
	}
	if _, err := f.m.Send(ctx, u1, session.Participant{}, ColorRandom, ""); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("empty invitee err = %v", err)
	}
	if _, err := f.m.Send(ctx, u1, u2, ColorRandom, "fast"); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("bad time control err = %v", err)
	}
}

type failingStarter struct{}

func (failingStarter) Create(context.Context, session.Participant, session.Participant, registry.CreateOptions) (session.Snapshot, error) {
	return session.Snapshot{}, registry.ErrCapacity
}

func TestAcceptReopensWhenGameCannotStart(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.m.games = failingStarter{}
	inv, err := f.m.Send(ctx, u1, u2, ColorRandom, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, _, err := f.m.Accept(ctx, inv.ID, "u2"); !errors.Is(err, registry.ErrCapacity) {
		t.Fatalf("err = %v, want ErrCapacity", err)
	}
	got, err := f.m.Get(ctx, inv.ID)
	if err != nil || got.Status != StatusPending || got.GameID != "" {
		t.Fatalf("after failed start = %+v, %v", got, err)
	}
	pending, err := f.m.Pending(ctx, "u2")
	if err != nil || len(pending) != 1 || pending[0].ID != inv.ID {
		t.Fatalf("Pending = %+v, %v", pending, err)
	}
	if ttl := f.mr.TTL("duelchess:invite:" + inv.ID); ttl <= 0 {
		t.Fatalf("reopened invite lost its ttl: %v", ttl)
	}

	f.m.games = f.reg
	_, snap, err := f.m.Accept(ctx, inv.ID, "u2")
	if err != nil {
		t.Fatalf("Accept after reopen: %v", err)
	}
	if snap.White.ID == "" || snap.Black.ID == "" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string]ColorChoice{"White": ColorWhite, "b": ColorBlack, "흑": ColorBlack, "": ColorRandom, "any": ColorRandom}
	for in, want := range cases {
		if got := ParseColor(in); got != want {
			t.Fatalf("ParseColor(%q) = %s, want %s", in, got, want)
		}
	}
}
