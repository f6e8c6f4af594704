package session

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/duelchess/internal/board"
	"github.com/park285/duelchess/internal/rules"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Now.IsZero() {
		opts.Now = t0
	}
	s, err := New("g1", Participant{ID: "alice", Name: "Alice"}, Participant{ID: "bob", Name: "Bob"}, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func play(t *testing.T, s *Session, pid, uci string, at time.Time) (Record, *Ending) {
	t.Helper()
	c, err := rules.ParseCandidate(uci)
	if err != nil {
		t.Fatalf("ParseCandidate(%q): %v", uci, err)
	}
	rec, end, err := s.Submit(pid, c, at)
	if err != nil {
		t.Fatalf("Submit(%s, %s): %v", pid, uci, err)
	}
	return rec, end
}

func TestNewRejectsBadParticipants(t *testing.T) {
	for _, tc := range []struct{ white, black string }{{"", "b"}, {"a", ""}, {"a", "a"}} {
		_, err := New("g", Participant{ID: tc.white}, Participant{ID: tc.black}, Options{})
		if !errors.Is(err, ErrInvalidPlayers) {
			t.Fatalf("New(%q,%q) err = %v, want ErrInvalidPlayers", tc.white, tc.black, err)
		}
	}
}

func TestSubmitSequenceAndHistory(t *testing.T) {
	s := newTestSession(t, Options{})
	rec, end := play(t, s, "alice", "e2e4", t0)
	if end != nil {
		t.Fatalf("unexpected ending %+v", end)
	}
	if rec.Seq != 1 || rec.Ply != 1 || rec.Color != board.White || rec.SAN != "e4" {
		t.Fatalf("record = %+v", rec)
	}
	rec, _ = play(t, s, "bob", "e7e5", t0)
	if rec.Seq != 2 || rec.SAN != "e5" {
		t.Fatalf("record = %+v", rec)
	}
	if got := s.State().FullmoveNumber(); got != 2 {
		t.Fatalf("fullmove = %d, want 2", got)
	}
	if diff := cmp.Diff([]string{"e2e4", "e7e5"}, s.MovesUCI()); diff != "" {
		t.Fatalf("moves (-want +got):\n%s", diff)
	}
}

func TestSubmitRejections(t *testing.T) {
	s := newTestSession(t, Options{})
	c := rules.Candidate{From: board.E7, To: board.E5}
	if _, _, err := s.Submit("bob", c, t0); !errors.Is(err, rules.ErrNotYourTurn) {
		t.Fatalf("err = %v, want ErrNotYourTurn", err)
	}
	if _, _, err := s.Submit("mallory", c, t0); !errors.Is(err, ErrNotAParticipant) {
		t.Fatalf("err = %v, want ErrNotAParticipant", err)
	}
	bad := rules.Candidate{From: board.E2, To: board.E5}
	if _, _, err := s.Submit("alice", bad, t0); !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("err = %v, want ErrIllegalMove", err)
	}
	if s.Seq() != 0 || len(s.History()) != 0 {
		t.Fatalf("rejections must not change state: seq=%d", s.Seq())
	}
}

func TestMover(t *testing.T) {
	s := newTestSession(t, Options{})
	if c, err := s.Mover("alice"); err != nil || c != board.White {
		t.Fatalf("Mover(alice) = %s, %v", c, err)
	}
	if _, err := s.Mover("bob"); !errors.Is(err, rules.ErrNotYourTurn) {
		t.Fatalf("Mover(bob) err = %v, want ErrNotYourTurn", err)
	}
	if _, err := s.Mover("carol"); !errors.Is(err, ErrNotAParticipant) {
		t.Fatalf("Mover(carol) err = %v, want ErrNotAParticipant", err)
	}
	if _, err := s.Resign("bob", t0); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if _, err := s.Mover("alice"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Mover after end err = %v, want ErrSessionClosed", err)
	}
}

func TestCheckmateEndsSession(t *testing.T) {
	s := newTestSession(t, Options{})
	play(t, s, "alice", "f2f3", t0)
	play(t, s, "bob", "e7e5", t0)
	play(t, s, "alice", "g2g4", t0)
	rec, end := play(t, s, "bob", "d8h4", t0)
	if end == nil || end.Status != StatusCheckmate || end.WinnerName() != "black" {
		t.Fatalf("ending = %+v, want black checkmate", end)
	}
	if rec.SAN != "Qh4#" || !rec.Check {
		t.Fatalf("record = %+v", rec)
	}
	if end.Seq != rec.Seq+1 {
		t.Fatalf("ending seq = %d, want %d", end.Seq, rec.Seq+1)
	}
	c := rules.Candidate{From: board.A2, To: board.A3}
	if _, _, err := s.Submit("alice", c, t0); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

func TestStalemateAndInsufficientMaterial(t *testing.T) {
	s := newTestSession(t, Options{StartFEN: "7k/8/6K1/8/8/8/8/5Q2 w - - 0 1"})
	_, end := play(t, s, "alice", "f1f7", t0)
	if end == nil || end.Status != StatusStalemate || end.HasWinner {
		t.Fatalf("ending = %+v, want stalemate", end)
	}

	s = newTestSession(t, Options{StartFEN: "8/8/8/4k3/8/8/3q4/4K3 w - - 0 1"})
	_, end = play(t, s, "alice", "e1d2", t0)
	if end == nil || end.Status != StatusDrawn || end.Reason != ReasonInsufficientMaterial {
		t.Fatalf("ending = %+v, want insufficient material draw", end)
	}
}

func TestResign(t *testing.T) {
	s := newTestSession(t, Options{})
	end, err := s.Resign("alice", t0)
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if end.Status != StatusResigned || end.WinnerName() != "black" || end.Seq != 1 {
		t.Fatalf("ending = %+v", end)
	}
	if _, err := s.Resign("bob", t0); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("second resign err = %v, want ErrSessionClosed", err)
	}
}

func TestDrawHandshake(t *testing.T) {
	s := newTestSession(t, Options{})
	if _, err := s.AcceptDraw("bob", t0); !errors.Is(err, ErrNoDrawOffer) {
		t.Fatalf("accept without offer err = %v", err)
	}
	ev, err := s.OfferDraw("alice", t0)
	if err != nil || ev.By != board.White || ev.Seq != 1 {
		t.Fatalf("OfferDraw = %+v, %v", ev, err)
	}
	if _, err := s.OfferDraw("bob", t0); !errors.Is(err, ErrDrawOfferPending) {
		t.Fatalf("second offer err = %v", err)
	}
	if _, err := s.AcceptDraw("alice", t0); !errors.Is(err, ErrNoDrawOffer) {
		t.Fatalf("self accept err = %v", err)
	}
	dec, err := s.DeclineDraw("bob", t0)
	if err != nil || dec.By != board.White || dec.Seq != 2 {
		t.Fatalf("DeclineDraw = %+v, %v", dec, err)
	}
	if _, err := s.OfferDraw("bob", t0); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	end, err := s.AcceptDraw("alice", t0)
	if err != nil || end.Status != StatusDrawn || end.Reason != ReasonAgreement || end.HasWinner {
		t.Fatalf("AcceptDraw = %+v, %v", end, err)
	}
}

func TestOpponentMoveClearsDrawOffer(t *testing.T) {
	s := newTestSession(t, Options{})
	if _, err := s.OfferDraw("alice", t0); err != nil {
		t.Fatalf("OfferDraw: %v", err)
	}
	play(t, s, "alice", "e2e4", t0)
	if _, ok := s.DrawOffer(); !ok {
		t.Fatalf("offerer's own move must keep the offer")
	}
	play(t, s, "bob", "e7e5", t0)
	if _, ok := s.DrawOffer(); ok {
		t.Fatalf("opponent's move must clear the offer")
	}
}

func TestMoveTimeout(t *testing.T) {
	s := newTestSession(t, Options{MoveTimeout: 30 * time.Second, MoveGrace: 2 * time.Second})
	if _, err := s.Expire(t0.Add(31 * time.Second)); !errors.Is(err, ErrNotExpired) {
		t.Fatalf("Expire inside grace err = %v", err)
	}
	play(t, s, "alice", "e2e4", t0.Add(10*time.Second))
	at, kind := s.Deadline()
	if kind != ExpiryMove || !at.Equal(t0.Add(42*time.Second)) {
		t.Fatalf("Deadline = %v %s", at, kind)
	}
	end, err := s.Expire(t0.Add(43 * time.Second))
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if end.Status != StatusTimedOut || end.Reason != "move_timeout" || end.WinnerName() != "white" {
		t.Fatalf("ending = %+v", end)
	}
}

func TestLateMoveEndsOnTime(t *testing.T) {
	s := newTestSession(t, Options{TimeControl: TimeControl{Base: time.Minute}})
	c := rules.Candidate{From: board.E2, To: board.E4}
	_, end, err := s.Submit("alice", c, t0.Add(61*time.Second))
	if !errors.Is(err, ErrClockExpired) || !errors.Is(err, ErrSessionClosed) || end == nil {
		t.Fatalf("Submit = %+v, %v", end, err)
	}
	if end.Reason != "game_timeout" || end.WinnerName() != "black" {
		t.Fatalf("ending = %+v", end)
	}
}

func TestTimeoutWithoutClockTrustsCaller(t *testing.T) {
	s := newTestSession(t, Options{})
	end, err := s.TimeoutGame(t0)
	if err != nil || end.Status != StatusTimedOut || end.WinnerName() != "black" {
		t.Fatalf("TimeoutGame = %+v, %v", end, err)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := newTestSession(t, Options{TimeControl: TimeControl{Base: 5 * time.Minute, Increment: 3 * time.Second}})
	play(t, s, "alice", "e2e4", t0.Add(10*time.Second))
	snap := s.Snapshot(t0.Add(15 * time.Second))
	play(t, s, "bob", "e7e5", t0.Add(20*time.Second))

	if snap.Seq != 1 || len(snap.MovesUCI) != 1 || snap.Turn() != board.Black {
		t.Fatalf("snapshot changed after later move: %+v", snap)
	}
	if snap.Clock == nil {
		t.Fatalf("expected clock view")
	}
	if snap.Clock.White != 4*time.Minute+53*time.Second || snap.Clock.Black != 4*time.Minute+55*time.Second {
		t.Fatalf("clock = %+v", *snap.Clock)
	}
	if snap.TimeControl != "5+3" {
		t.Fatalf("time control = %q", snap.TimeControl)
	}
}

func TestReplay(t *testing.T) {
	moves := []string{"e2e4", "e7e5", "g1f3", "b8c6"}
	s, err := Replay("g1", Participant{ID: "alice"}, Participant{ID: "bob"}, Options{Now: t0}, moves)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if s.Seq() != 4 || s.State().Turn() != board.White {
		t.Fatalf("seq=%d turn=%s", s.Seq(), s.State().Turn())
	}
	if _, err := Replay("g1", Participant{ID: "alice"}, Participant{ID: "bob"}, Options{Now: t0}, []string{"e2e5"}); !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("Replay illegal err = %v", err)
	}
}

func TestReplayKeepsPublishedSeq(t *testing.T) {
	moves := []string{"e2e4"}
	s, err := Replay("g1", Participant{ID: "alice"}, Participant{ID: "bob"}, Options{Now: t0, Seq: 3}, moves)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if s.Seq() != 3 {
		t.Fatalf("seq = %d, want 3", s.Seq())
	}
	rec, _ := play(t, s, "bob", "e7e5", t0)
	if rec.Seq != 4 {
		t.Fatalf("next seq = %d, want 4", rec.Seq)
	}

	// a stale floor never lowers the replayed count
	s, err = Replay("g1", Participant{ID: "alice"}, Participant{ID: "bob"}, Options{Now: t0, Seq: 1}, []string{"e2e4", "e7e5"})
	if err != nil || s.Seq() != 2 {
		t.Fatalf("seq = %d, %v; want 2", s.Seq(), err)
	}
}
