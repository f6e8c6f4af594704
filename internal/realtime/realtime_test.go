package realtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb, err := OpenRedis(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("OpenRedis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func exerciseChannel(t *testing.T, ch Channel) {
	t.Helper()
	ctx := context.Background()
	sub, err := ch.Subscribe(ctx, GameKey("g1"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	other, err := ch.Subscribe(ctx, GameKey("g2"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer other.Close()

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var want []Event
	for seq := uint64(1); seq <= 3; seq++ {
		ev, err := NewEvent("move.accepted", "g1", seq, map[string]int{"ply": int(seq)}, at)
		if err != nil {
			t.Fatalf("NewEvent: %v", err)
		}
		if err := ch.Publish(ctx, GameKey("g1"), ev); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		want = append(want, ev)
	}
	var got []Event
	for range want {
		got = append(got, receive(t, sub))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	var payload struct{ Ply int }
	if err := got[2].Decode(&payload); err != nil || payload.Ply != 3 {
		t.Fatalf("Decode = %+v, %v", payload, err)
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("unrelated key received %+v", ev)
	default:
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatalf("Events must be closed after Close")
	}
}

func TestMemoryChannel(t *testing.T) {
	ch := NewMemoryChannel(8)
	exerciseChannel(t, ch)
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Publish(context.Background(), "k", Event{}); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Publish after close err = %v", err)
	}
}

func TestMemoryChannelCloseUnblocksPublisher(t *testing.T) {
	ch := NewMemoryChannel(1)
	sub, err := ch.Subscribe(context.Background(), "k")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := ch.Publish(context.Background(), "k", Event{Type: "a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- ch.Publish(context.Background(), "k", Event{Type: "b"}) }()
	time.Sleep(20 * time.Millisecond)
	_ = sub.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher still blocked after subscriber closed")
	}
}

func TestRedisChannel(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseChannel(t, NewRedisChannel(rdb, "test:", nil))
}

func TestRedisChannelUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ch := NewRedisChannel(rdb, "", nil)
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ch.Publish(ctx, "k", Event{Type: "x"}); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("Publish err = %v, want ErrTransportUnavailable", err)
	}
}

func TestOpenRedisRejectsScheme(t *testing.T) {
	if _, err := OpenRedis(context.Background(), "http://localhost:6379"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestFollower(t *testing.T) {
	f := NewFollower()
	ev := func(seq uint64) Event { return Event{GameID: "g", Seq: seq} }

	steps := []struct {
		seq  uint64
		want Verdict
	}{
		{1, Apply},
		{1, Duplicate},
		{2, Apply},
		{4, Gap},
		{3, Apply},
		{2, Duplicate},
		{4, Apply},
	}
	for i, s := range steps {
		if got := f.Accept(ev(s.seq)); got != s.want {
			t.Fatalf("step %d: Accept(%d) = %s, want %s", i, s.seq, got, s.want)
		}
	}
	if got := f.Accept(Event{Type: "presence.joined"}); got != Apply {
		t.Fatalf("unsequenced event = %s, want apply", got)
	}

	f.Reset("h", 10)
	if got := f.Accept(Event{GameID: "h", Seq: 9}); got != Duplicate {
		t.Fatalf("after reset: %s", got)
	}
	if got := f.Accept(Event{GameID: "new", Seq: 5}); got != Gap {
		t.Fatalf("untracked game mid-stream = %s, want gap", got)
	}
}

func TestBroadcasterLogsFailure(t *testing.T) {
	ch := NewMemoryChannel(1)
	_ = ch.Close()
	b := NewBroadcaster(ch, 50*time.Millisecond, nil)
	if b.SendPayload("k", "game.ended", "g", 1, map[string]string{"a": "b"}, time.Now()) {
		t.Fatalf("Send on closed channel reported success")
	}
}
