package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/duelchess/internal/archive"
	"github.com/park285/duelchess/internal/board"
	"github.com/park285/duelchess/internal/notation"
	"github.com/park285/duelchess/internal/realtime"
	"github.com/park285/duelchess/internal/rules"
	"github.com/park285/duelchess/internal/session"
	"github.com/park285/duelchess/pkg/chessdto"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrRegistryClosed  = errors.New("registry closed")
	ErrCapacity        = errors.New("too many concurrent games")
	ErrGameExists      = errors.New("game id already in use")
)

type Config struct {
	TimeControl     session.TimeControl
	MoveTimeout     time.Duration
	MoveGrace       time.Duration
	ClosedRetention time.Duration
	MaxGames        int
	QueueSize       int
	PersistTimeout  time.Duration
}

type Option func(*Registry)

func WithArchive(repo archive.Repository) Option { return func(r *Registry) { r.repo = repo } }

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces time.Now; timers still run on wall time.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// Registry owns every live session. Each game is driven by its own actor
// goroutine, so operations on one game are applied one at a time in arrival
// order while different games proceed in parallel. The map lock is held
// only for lookup, insert and removal.
type Registry struct {
	cfg    Config
	bus    *realtime.Broadcaster
	repo   archive.Repository
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	games  map[string]*entry
	closed bool

	actors sync.WaitGroup
	saves  sync.WaitGroup
}

func New(cfg Config, bus *realtime.Broadcaster, opts ...Option) *Registry {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if cfg.ClosedRetention < 0 {
		cfg.ClosedRetention = 0
	}
	r := &Registry{
		cfg:    cfg,
		bus:    bus,
		logger: zap.NewNop(),
		now:    time.Now,
		games:  make(map[string]*entry),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type result struct {
	val any
	err error
}

type op struct {
	ctx   context.Context
	apply func(now time.Time) (any, error)
	reply chan result
}

type entry struct {
	id       string
	ops      chan op
	quit     chan struct{}
	exited   chan struct{}
	quitOnce sync.Once
	snap     atomic.Pointer[session.Snapshot]

	// owned by the actor goroutine
	sess  *session.Session
	timer *time.Timer
	evict *time.Timer
}

func (e *entry) stop() { e.quitOnce.Do(func() { close(e.quit) }) }

func (r *Registry) run(e *entry) {
	defer r.actors.Done()
	defer close(e.exited)
	for {
		select {
		case <-e.quit:
			if e.timer != nil {
				e.timer.Stop()
			}
			for {
				select {
				case o := <-e.ops:
					o.reply <- result{err: ErrSessionNotFound}
				default:
					return
				}
			}
		case o := <-e.ops:
			// skipped ops never touch the session
			if o.ctx != nil && o.ctx.Err() != nil {
				o.reply <- result{err: fmt.Errorf("%w: %v", ErrTimeout, o.ctx.Err())}
				continue
			}
			v, err := o.apply(r.now())
			o.reply <- result{val: v, err: err}
		}
	}
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.games[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// exec runs fn on e's actor and waits for its result. Once queued, the op
// either runs or is answered by the drain, so a returned ErrTimeout means
// the session was not touched.
func (r *Registry) exec(ctx context.Context, id string, fn func(e *entry, now time.Time) (any, error)) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	o := op{ctx: ctx, reply: make(chan result, 1)}
	o.apply = func(now time.Time) (any, error) { return fn(e, now) }
	select {
	case e.ops <- o:
	case <-e.exited:
		return nil, ErrSessionNotFound
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
	select {
	case res := <-o.reply:
		return res.val, res.err
	case <-e.exited:
		select {
		case res := <-o.reply:
			return res.val, res.err
		default:
			return nil, ErrSessionNotFound
		}
	}
}

// post queues an internal op without waiting for it.
func (r *Registry) post(e *entry, fn func(now time.Time)) {
	o := op{reply: make(chan result, 1), apply: func(now time.Time) (any, error) {
		fn(now)
		return nil, nil
	}}
	select {
	case e.ops <- o:
	case <-e.exited:
	}
}

type CreateOptions struct {
	ID          string
	StartFEN    string
	TimeControl *session.TimeControl
}

// Create starts a new game between white and black.
func (r *Registry) Create(ctx context.Context, white, black session.Participant, opts CreateOptions) (session.Snapshot, error) {
	if ctx != nil && ctx.Err() != nil {
		return session.Snapshot{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	tc := r.cfg.TimeControl
	if opts.TimeControl != nil {
		tc = *opts.TimeControl
	}
	sess, err := session.New(id, white, black, session.Options{
		StartFEN:    opts.StartFEN,
		TimeControl: tc,
		MoveTimeout: r.cfg.MoveTimeout,
		MoveGrace:   r.cfg.MoveGrace,
		Now:         r.now(),
	})
	if err != nil {
		return session.Snapshot{}, err
	}
	snap, err := r.insert(sess)
	if err != nil {
		return session.Snapshot{}, err
	}
	r.logger.Info("game_create",
		zap.String("game_id", id),
		zap.String("white_id", snap.White.ID),
		zap.String("black_id", snap.Black.ID),
		zap.String("time_control", snap.TimeControl),
	)
	return snap, nil
}

// Restore brings an unfinished archived game back under management. A game
// that is already live is returned as is.
func (r *Registry) Restore(ctx context.Context, id string) (session.Snapshot, error) {
	if snap, err := r.Snapshot(id); err == nil {
		return snap, nil
	}
	if r.repo == nil {
		return session.Snapshot{}, ErrSessionNotFound
	}
	g, err := r.repo.LoadGame(ctx, id)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("load game %s: %w", id, err)
	}
	if g == nil {
		return session.Snapshot{}, ErrSessionNotFound
	}
	if g.Finished() {
		return session.Snapshot{}, session.ErrSessionClosed
	}
	tc, err := session.ParseTimeControl(g.TimeControl)
	if err != nil {
		tc = r.cfg.TimeControl
	}
	sess, err := session.Replay(g.ID,
		session.Participant{ID: g.WhiteID, Name: g.WhiteName},
		session.Participant{ID: g.BlackID, Name: g.BlackName},
		session.Options{
			StartFEN:    g.StartFEN,
			TimeControl: tc,
			MoveTimeout: r.cfg.MoveTimeout,
			MoveGrace:   r.cfg.MoveGrace,
			Now:         r.now(),
			Seq:         g.Seq,
		},
		g.MovesUCI,
	)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("replay game %s: %w", id, err)
	}
	snap, err := r.insert(sess)
	if errors.Is(err, ErrGameExists) {
		return r.Snapshot(id)
	}
	if err != nil {
		return session.Snapshot{}, err
	}
	r.logger.Info("game_restore", zap.String("game_id", id), zap.Int("plies", len(g.MovesUCI)))
	return snap, nil
}

func (r *Registry) insert(sess *session.Session) (session.Snapshot, error) {
	e := &entry{
		id:     sess.ID(),
		ops:    make(chan op, r.cfg.QueueSize),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
		sess:   sess,
	}
	snap := sess.Snapshot(r.now())
	e.snap.Store(&snap)

	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return session.Snapshot{}, ErrRegistryClosed
	case r.games[e.id] != nil:
		r.mu.Unlock()
		return session.Snapshot{}, ErrGameExists
	case r.cfg.MaxGames > 0 && len(r.games) >= r.cfg.MaxGames:
		r.mu.Unlock()
		return session.Snapshot{}, ErrCapacity
	}
	r.games[e.id] = e
	r.actors.Add(1)
	r.mu.Unlock()

	go r.run(e)
	r.post(e, func(time.Time) { r.rearm(e) })
	return snap, nil
}

// Snapshot returns the last committed view of a game without queueing.
func (r *Registry) Snapshot(id string) (session.Snapshot, error) {
	e, err := r.lookup(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return *e.snap.Load(), nil
}

// GamesOf lists the live games pid takes part in, oldest first.
func (r *Registry) GamesOf(pid string) []session.Snapshot {
	r.mu.RLock()
	out := []session.Snapshot{}
	for _, e := range r.games {
		snap := e.snap.Load()
		if _, ok := snap.ColorOf(pid); ok {
			out = append(out, *snap)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// SubmitMove validates and applies participant pid's candidate move.
func (r *Registry) SubmitMove(ctx context.Context, id, pid string, c rules.Candidate) (session.Record, error) {
	v, err := r.exec(ctx, id, func(e *entry, now time.Time) (any, error) {
		return r.submit(e, pid, c, now)
	})
	if err != nil {
		return session.Record{}, err
	}
	return v.(session.Record), nil
}

// SubmitNotation parses text (coordinate or SAN) against the current
// position inside the game's actor, then submits it. Turn and participant
// checks come first so an out-of-turn move is not reported as unreadable.
func (r *Registry) SubmitNotation(ctx context.Context, id, pid, text string) (session.Record, error) {
	v, err := r.exec(ctx, id, func(e *entry, now time.Time) (any, error) {
		if _, err := e.sess.Mover(pid); err != nil {
			return session.Record{}, err
		}
		c, err := notation.ParseMove(e.sess.State(), text)
		if err != nil {
			return session.Record{}, err
		}
		return r.submit(e, pid, c, now)
	})
	if err != nil {
		return session.Record{}, err
	}
	return v.(session.Record), nil
}

func (r *Registry) submit(e *entry, pid string, c rules.Candidate, now time.Time) (session.Record, error) {
	rec, end, err := e.sess.Submit(pid, c, now)
	if err != nil {
		if end != nil {
			// the mover's flag fell before the move arrived
			r.finish(e, *end, r.store(e, now), now)
		}
		return session.Record{}, err
	}
	snap := r.store(e, now)
	r.bus.SendPayload(realtime.GameKey(e.id), chessdto.EventMoveAccepted, e.id, rec.Seq, moveAccepted(e.id, rec, snap), now)
	r.logger.Debug("move_accepted",
		zap.String("game_id", e.id),
		zap.Uint64("seq", rec.Seq),
		zap.String("uci", rec.UCI),
		zap.String("san", rec.SAN),
	)
	if end != nil {
		r.finish(e, *end, snap, now)
	} else {
		r.rearm(e)
	}
	return rec, nil
}

func (r *Registry) Resign(ctx context.Context, id, pid string) (session.Ending, error) {
	return r.ending(ctx, id, func(s *session.Session, now time.Time) (*session.Ending, error) {
		return s.Resign(pid, now)
	})
}

func (r *Registry) AcceptDraw(ctx context.Context, id, pid string) (session.Ending, error) {
	return r.ending(ctx, id, func(s *session.Session, now time.Time) (*session.Ending, error) {
		return s.AcceptDraw(pid, now)
	})
}

// TimeoutMove ends the game on the per-move limit of the side to move.
func (r *Registry) TimeoutMove(ctx context.Context, id string) (session.Ending, error) {
	return r.ending(ctx, id, func(s *session.Session, now time.Time) (*session.Ending, error) {
		return s.TimeoutMove(now)
	})
}

// TimeoutGame ends the game on the game allowance of the side to move.
func (r *Registry) TimeoutGame(ctx context.Context, id string) (session.Ending, error) {
	return r.ending(ctx, id, func(s *session.Session, now time.Time) (*session.Ending, error) {
		return s.TimeoutGame(now)
	})
}

func (r *Registry) ending(ctx context.Context, id string, fn func(*session.Session, time.Time) (*session.Ending, error)) (session.Ending, error) {
	v, err := r.exec(ctx, id, func(e *entry, now time.Time) (any, error) {
		end, err := fn(e.sess, now)
		if err != nil {
			return session.Ending{}, err
		}
		r.finish(e, *end, r.store(e, now), now)
		return *end, nil
	})
	if err != nil {
		return session.Ending{}, err
	}
	return v.(session.Ending), nil
}

func (r *Registry) OfferDraw(ctx context.Context, id, pid string) (session.DrawEvent, error) {
	return r.draw(ctx, id, chessdto.EventDrawOffered, func(s *session.Session, now time.Time) (session.DrawEvent, error) {
		return s.OfferDraw(pid, now)
	})
}

func (r *Registry) DeclineDraw(ctx context.Context, id, pid string) (session.DrawEvent, error) {
	return r.draw(ctx, id, chessdto.EventDrawDeclined, func(s *session.Session, now time.Time) (session.DrawEvent, error) {
		return s.DeclineDraw(pid, now)
	})
}

func (r *Registry) draw(ctx context.Context, id, typ string, fn func(*session.Session, time.Time) (session.DrawEvent, error)) (session.DrawEvent, error) {
	v, err := r.exec(ctx, id, func(e *entry, now time.Time) (any, error) {
		ev, err := fn(e.sess, now)
		if err != nil {
			return session.DrawEvent{}, err
		}
		snap := r.store(e, now)
		r.bus.SendPayload(realtime.GameKey(e.id), typ, e.id, ev.Seq, drawOffer(e.id, ev, snap), now)
		// the timer is keyed to the old seq
		r.rearm(e)
		return ev, nil
	})
	if err != nil {
		return session.DrawEvent{}, err
	}
	return v.(session.DrawEvent), nil
}

// LegalMoves lists the legal moves of the piece on from in the last
// committed position. Finished games have none.
func (r *Registry) LegalMoves(id string, from board.Square) ([]board.Move, error) {
	snap, err := r.Snapshot(id)
	if err != nil {
		return nil, err
	}
	if snap.Status.Terminal() {
		return nil, nil
	}
	return rules.LegalMovesFrom(snap.State, from), nil
}

// PGN renders a live game, or an archived one once evicted.
func (r *Registry) PGN(ctx context.Context, id string) (string, error) {
	if snap, err := r.Snapshot(id); err == nil {
		return pgnOf(snap), nil
	}
	if r.repo == nil {
		return "", ErrSessionNotFound
	}
	g, err := r.repo.LoadGame(ctx, id)
	if err != nil {
		return "", err
	}
	if g == nil {
		return "", ErrSessionNotFound
	}
	if g.PGN != "" {
		return g.PGN, nil
	}
	sans := g.MovesSAN
	if len(sans) != len(g.MovesUCI) {
		// rows written without SAN; rebuild it from the coordinate moves
		start := board.Initial()
		if g.StartFEN != "" {
			if start, err = board.ParseFEN(g.StartFEN); err != nil {
				return "", fmt.Errorf("game %s start fen: %w", id, err)
			}
		}
		if sans, err = notation.SANList(start, g.MovesUCI); err != nil {
			return "", fmt.Errorf("game %s moves: %w", id, err)
		}
	}
	return notation.PGN(notation.Header{
		Date:        g.StartedAt,
		White:       nameOr(g.WhiteName, g.WhiteID),
		Black:       nameOr(g.BlackName, g.BlackID),
		TimeControl: g.TimeControl,
		FEN:         g.StartFEN,
		Result:      archivedResult(*g),
	}, sans), nil
}

func archivedResult(g archive.Game) string {
	if !g.Finished() {
		return notation.ResultUnknown
	}
	if g.Winner == "" {
		return notation.ResultDraw
	}
	return notation.ResultToken(g.Winner)
}

func (r *Registry) store(e *entry, now time.Time) session.Snapshot {
	snap := e.sess.Snapshot(now)
	e.snap.Store(&snap)
	return snap
}

// rearm replaces the clock timer with one for the current deadline. The
// timer carries the sequence number it was armed at and does nothing if the
// game has moved on.
func (r *Registry) rearm(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	at, kind := e.sess.Deadline()
	if kind == session.ExpiryNone {
		return
	}
	seq := e.sess.Seq()
	delay := at.Sub(r.now())
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() {
		r.post(e, func(now time.Time) { r.expire(e, seq, now) })
	})
}

func (r *Registry) expire(e *entry, seq uint64, now time.Time) {
	if e.sess.Status().Terminal() {
		return
	}
	if e.sess.Seq() != seq {
		// armed before a later commit; re-arm for the current deadline
		r.rearm(e)
		return
	}
	end, err := e.sess.Expire(now)
	if err != nil {
		// fired ahead of the session clock
		r.rearm(e)
		return
	}
	r.finish(e, *end, r.store(e, now), now)
}

// finish publishes the ending, archives the game and schedules eviction.
func (r *Registry) finish(e *entry, end session.Ending, snap session.Snapshot, now time.Time) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	r.bus.SendPayload(realtime.GameKey(e.id), chessdto.EventGameEnded, e.id, end.Seq, gameEnded(e.id, end, snap), now)
	r.logger.Info("game_end",
		zap.String("game_id", e.id),
		zap.String("status", string(end.Status)),
		zap.String("reason", end.Reason),
		zap.String("winner", end.WinnerName()),
		zap.Int("plies", len(snap.MovesUCI)),
	)
	r.persist(snap)
	if e.evict == nil {
		e.evict = time.AfterFunc(r.cfg.ClosedRetention, func() { r.remove(e) })
	}
}

func (r *Registry) remove(e *entry) {
	r.mu.Lock()
	if r.games[e.id] == e {
		delete(r.games, e.id)
	}
	r.mu.Unlock()
	e.stop()
	r.logger.Debug("game_evict", zap.String("game_id", e.id))
}

func (r *Registry) persist(snap session.Snapshot) {
	if r.repo == nil {
		return
	}
	r.saves.Add(1)
	go func() {
		defer r.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
		defer cancel()
		if err := r.repo.SaveGame(ctx, archiveRecord(snap)); err != nil {
			r.logger.Error("archive_save_error", zap.String("game_id", snap.ID), zap.Error(err))
		}
	}()
}

// Close stops every actor and saves unfinished games so they can be
// restored later.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := make([]*entry, 0, len(r.games))
	for _, e := range r.games {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.stop()
	}
	if err := waitGroup(ctx, &r.actors); err != nil {
		return err
	}

	var errs []error
	if r.repo != nil {
		for _, e := range entries {
			snap := e.snap.Load()
			if snap.Status.Terminal() {
				continue
			}
			if err := r.repo.SaveGame(ctx, archiveRecord(*snap)); err != nil {
				errs = append(errs, fmt.Errorf("save %s: %w", snap.ID, err))
			}
		}
	}
	if err := waitGroup(ctx, &r.saves); err != nil {
		errs = append(errs, err)
	}
	r.logger.Info("registry_close", zap.Int("games", len(entries)))
	return errors.Join(errs...)
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func archiveRecord(snap session.Snapshot) archive.Game {
	return archive.Game{
		ID:          snap.ID,
		WhiteID:     snap.White.ID,
		WhiteName:   snap.White.Name,
		BlackID:     snap.Black.ID,
		BlackName:   snap.Black.Name,
		StartFEN:    snap.StartFEN,
		FEN:         snap.FEN(),
		TimeControl: snap.TimeControl,
		Status:      string(snap.Status),
		Reason:      snap.Reason,
		Winner:      snap.Winner,
		MovesUCI:    snap.MovesUCI,
		MovesSAN:    snap.MovesSAN,
		PGN:         pgnOf(snap),
		Seq:         snap.Seq,
		StartedAt:   snap.CreatedAt,
		UpdatedAt:   snap.UpdatedAt,
	}
}

func pgnOf(snap session.Snapshot) string {
	result := notation.ResultUnknown
	if snap.Status.Terminal() {
		result = notation.ResultToken(snap.Winner)
		if snap.Winner == "" {
			result = notation.ResultDraw
		}
	}
	return notation.PGN(notation.Header{
		Site:        "duelchess",
		Date:        snap.CreatedAt,
		White:       nameOr(snap.White.Name, snap.White.ID),
		Black:       nameOr(snap.Black.Name, snap.Black.ID),
		TimeControl: snap.TimeControl,
		Termination: snap.Reason,
		Result:      result,
		FEN:         snap.StartFEN,
	}, snap.MovesSAN)
}

func nameOr(name, id string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return id
}
