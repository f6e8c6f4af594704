package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/duelchess/internal/archive"
	"github.com/park285/duelchess/internal/identity"
	"github.com/park285/duelchess/internal/invite"
	"github.com/park285/duelchess/internal/msgcat"
	"github.com/park285/duelchess/internal/realtime"
	"github.com/park285/duelchess/internal/registry"
)

type Config struct {
	// HandshakeTimeout bounds identity resolution and the upgrade.
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	MaxPingFailures  int
	WriteTimeout     time.Duration
	CommandTimeout   time.Duration
	AllowedOrigins   []string
	SendBuffer       int
}

func (c *Config) defaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 3 * time.Second
	}
	if c.MaxPingFailures <= 0 {
		c.MaxPingFailures = 2
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

// Deps are the collaborators a Server needs. Invites and Archive are
// optional.
type Deps struct {
	Registry *registry.Registry
	Invites  *invite.Manager
	Archive  archive.Repository
	Channel  realtime.Channel
	Bus      *realtime.Broadcaster
	Identity identity.Provider
	Catalog  *msgcat.Catalog
	Logger   *zap.Logger
}

// Server accepts websocket clients, turns their frames into registry and
// invite operations and streams channel events back.
type Server struct {
	cfg    Config
	reg    *registry.Registry
	inv    *invite.Manager
	repo   archive.Repository
	ch     realtime.Channel
	bus    *realtime.Broadcaster
	ident  identity.Provider
	cat    *msgcat.Catalog
	logger *zap.Logger

	mu     sync.Mutex
	conns  map[*conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config, d Deps) *Server {
	cfg.defaults()
	s := &Server{
		cfg:    cfg,
		reg:    d.Registry,
		inv:    d.Invites,
		repo:   d.Archive,
		ch:     d.Channel,
		bus:    d.Bus,
		ident:  d.Identity,
		cat:    d.Catalog,
		logger: d.Logger,
		conns:  make(map[*conn]struct{}),
	}
	if s.ident == nil {
		s.ident = identity.HeaderProvider{}
	}
	if s.cat == nil {
		s.cat = msgcat.MustDefault()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// client goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hsCtx, cancel := context.WithTimeout(r.Context(), s.cfg.HandshakeTimeout)
	user, err := s.ident.Identify(hsCtx, r)
	cancel()
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, identity.ErrUnauthenticated) && !errors.Is(err, identity.ErrUnknownUser) {
			status = http.StatusBadGateway
		}
		s.logger.Warn("ws_identify_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		writeJSON(w, status, describe(s.cat, err, nil))
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.cfg.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("ws_accept_error", zap.String("user_id", user.ID), zap.Error(err))
		return
	}

	c := newConn(r.Context(), s, ws, user)
	if !s.track(c) {
		c.cancel()
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.untrack(c)
	c.run()
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Connections reports the number of live websocket clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client and waits for their handlers to return.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		go c.shutdown(websocket.StatusGoingAway, "server shutting down")
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
