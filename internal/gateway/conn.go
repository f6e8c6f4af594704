package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/duelchess/internal/realtime"
	"github.com/park285/duelchess/internal/registry"
	"github.com/park285/duelchess/internal/session"
	"github.com/park285/duelchess/pkg/chessdto"
)

// Items handed to the writer goroutine, which alone writes to the socket
// and owns the follower.
type outbound struct {
	ev     *realtime.Event
	sync   string
	forget string
}

type conn struct {
	srv    *Server
	ws     *websocket.Conn
	user   session.Participant
	id     string
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	out    chan outbound
	events chan realtime.Event
	done   chan struct{}

	// owned by the reader goroutine
	subs map[string]realtime.Subscription

	// owned by the writer goroutine
	follower *realtime.Follower

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newConn(parent context.Context, s *Server, ws *websocket.Conn, user session.Participant) *conn {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	return &conn{
		ctx:      ctx,
		cancel:   cancel,
		srv:      s,
		ws:       ws,
		user:     user,
		id:       id,
		logger:   s.logger.With(zap.String("conn_id", id), zap.String("user_id", user.ID)),
		out:      make(chan outbound, s.cfg.SendBuffer),
		events:   make(chan realtime.Event, s.cfg.SendBuffer),
		done:     make(chan struct{}),
		subs:     make(map[string]realtime.Subscription),
		follower: realtime.NewFollower(),
	}
}

func (c *conn) run() {
	ctx := c.ctx
	defer c.cancel()
	c.logger.Info("ws_connect", zap.String("name", c.user.Name))

	if err := c.subscribe(ctx, realtime.UserKey(c.user.ID)); err != nil {
		c.logger.Error("ws_subscribe_error", zap.Error(err))
		c.shutdown(websocket.StatusInternalError, "realtime transport unavailable")
		return
	}

	c.wg.Add(2)
	go c.writeLoop(ctx)
	go c.pingLoop(ctx)

	c.readLoop(ctx)

	for key, sub := range c.subs {
		_ = sub.Close()
		if gameID, ok := gameOf(key); ok {
			c.presence(chessdto.EventPresenceLeft, gameID)
		}
	}
	c.shutdown(websocket.StatusNormalClosure, "bye")
	c.wg.Wait()
	c.logger.Info("ws_disconnect")
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		typ, raw, err := c.ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
				c.logger.Debug("ws_read_error", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var cmd chessdto.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.reply(ctx, chessdto.Command{Type: "invalid"}, nil, errUnknownCommand)
			continue
		}
		c.handle(ctx, cmd)
	}
}

// shutdown closes the socket once; the reader then returns.
func (c *conn) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		defer c.cancel()
		_ = c.ws.Close(code, reason)
	})
}

func (c *conn) subscribe(ctx context.Context, key string) error {
	if _, ok := c.subs[key]; ok {
		return nil
	}
	sub, err := c.srv.ch.Subscribe(ctx, key)
	if err != nil {
		return err
	}
	c.subs[key] = sub
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for ev := range sub.Events() {
			select {
			case c.events <- ev:
			case <-c.done:
				return
			}
		}
	}()
	return nil
}

func (c *conn) unsubscribe(key string) bool {
	sub, ok := c.subs[key]
	if !ok {
		return false
	}
	delete(c.subs, key)
	_ = sub.Close()
	return true
}

func (c *conn) enqueue(ctx context.Context, o outbound) {
	select {
	case c.out <- o:
	case <-c.done:
	case <-ctx.Done():
	}
}

func (c *conn) send(ctx context.Context, ev realtime.Event) { c.enqueue(ctx, outbound{ev: &ev}) }

func (c *conn) writeLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case o := <-c.out:
			switch {
			case o.ev != nil:
				err = c.write(ctx, *o.ev)
			case o.sync != "":
				_, err = c.resync(ctx, o.sync)
			case o.forget != "":
				c.follower.Forget(o.forget)
			}
		case ev := <-c.events:
			err = c.deliver(ctx, ev)
		}
		if err != nil {
			c.logger.Debug("ws_write_error", zap.Error(err))
			c.shutdown(websocket.StatusGoingAway, "write failed")
			return
		}
	}
}

// deliver filters channel events through the follower. A gap is repaired by
// sending a fresh snapshot in place of the missing events.
func (c *conn) deliver(ctx context.Context, ev realtime.Event) error {
	switch c.follower.Accept(ev) {
	case realtime.Duplicate:
		return nil
	case realtime.Gap:
		last, _ := c.follower.Last(ev.GameID)
		c.logger.Debug("ws_event_gap", zap.String("game_id", ev.GameID), zap.Uint64("seq", ev.Seq), zap.Uint64("last", last))
		found, err := c.resync(ctx, ev.GameID)
		if found || err != nil {
			return err
		}
		// evicted: nothing to resync against, pass the event through
		c.follower.Reset(ev.GameID, ev.Seq)
		return c.write(ctx, ev)
	default:
		return c.write(ctx, ev)
	}
}

// resync writes the current snapshot of gameID and moves the follower to
// it. found is false when the registry no longer holds the game.
func (c *conn) resync(ctx context.Context, gameID string) (found bool, err error) {
	snap, err := c.srv.reg.Snapshot(gameID)
	if err != nil {
		return false, nil
	}
	ev, err := realtime.NewEvent(chessdto.EventGameSnapshot, snap.ID, snap.Seq, registry.SnapshotDTO(snap), time.Now())
	if err != nil {
		return true, err
	}
	c.follower.Reset(snap.ID, snap.Seq)
	return true, c.write(ctx, ev)
}

func (c *conn) write(ctx context.Context, ev realtime.Event) error {
	wctx, cancel := context.WithTimeout(ctx, c.srv.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, c.ws, ev)
}

func (c *conn) pingLoop(ctx context.Context) {
	defer c.wg.Done()
	t := time.NewTicker(c.srv.cfg.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, c.srv.cfg.PingTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= c.srv.cfg.MaxPingFailures {
				c.logger.Info("ws_ping_timeout", zap.Int("failures", failures))
				c.shutdown(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (c *conn) presence(typ, gameID string) {
	c.srv.bus.SendPayload(realtime.GameKey(gameID), typ, gameID, 0,
		chessdto.Presence{UserID: c.user.ID, Name: c.user.Name, GameID: gameID}, time.Now())
}

func gameOf(key string) (string, bool) {
	const prefix = "game:"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):], true
	}
	return "", false
}
