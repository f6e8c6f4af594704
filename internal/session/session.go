package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/duelchess/internal/board"
	"github.com/park285/duelchess/internal/notation"
	"github.com/park285/duelchess/internal/rules"
)

var (
	ErrSessionClosed    = errors.New("session closed")
	ErrNotAParticipant  = errors.New("not a participant")
	ErrNoDrawOffer      = errors.New("no pending draw offer")
	ErrDrawOfferPending = errors.New("draw offer already pending")
	ErrNotExpired       = errors.New("clock has not expired")
	ErrClockExpired     = errors.New("clock expired before the move arrived")
	ErrInvalidPlayers   = errors.New("invalid participants")
)

// Status represents a game lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCheckmate Status = "CHECKMATE"
	StatusStalemate Status = "STALEMATE"
	StatusResigned  Status = "RESIGNED"
	StatusTimedOut  Status = "TIMED_OUT"
	StatusDrawn     Status = "DRAWN"
)

func (s Status) Terminal() bool { return s != StatusActive }

// Ending reasons.
const (
	ReasonCheckmate            = "checkmate"
	ReasonStalemate            = "stalemate"
	ReasonInsufficientMaterial = "insufficient_material"
	ReasonSeventyFiveMoves     = "seventy_five_move_rule"
	ReasonResignation          = "resignation"
	ReasonAgreement            = "agreement"
)

type Participant struct {
	ID   string
	Name string
}

// Record is one accepted move.
type Record struct {
	Seq   uint64
	Ply   int
	Color board.Color
	Move  board.Move
	UCI   string
	SAN   string
	FEN   string
	Check bool
	At    time.Time
}

// Ending describes a terminal transition. Winner is meaningful only when
// HasWinner is set.
type Ending struct {
	Seq       uint64
	Status    Status
	Reason    string
	Winner    board.Color
	HasWinner bool
	At        time.Time
}

// WinnerName returns "white", "black" or "" for draws.
func (e Ending) WinnerName() string {
	if !e.HasWinner {
		return ""
	}
	return e.Winner.String()
}

// DrawEvent is a broadcastable change of the draw offer.
type DrawEvent struct {
	Seq uint64
	By  board.Color
}

type Options struct {
	StartFEN    string
	TimeControl TimeControl
	MoveTimeout time.Duration
	MoveGrace   time.Duration
	Now         time.Time
	// Seq is the last sequence number a replayed game had published. Replay
	// continues from it when draw events pushed it past the move count.
	Seq uint64
}

// Session is one game's authoritative state. It is not safe for concurrent
// use; the registry serialises access per game.
type Session struct {
	id        string
	white     Participant
	black     Participant
	start     board.State
	startFEN  string
	state     board.State
	history   []Record
	status    Status
	ending    *Ending
	drawOffer *board.Color
	seq       uint64
	tc        TimeControl
	clock     *Clock
	createdAt time.Time
	updatedAt time.Time
}

func New(id string, white, black Participant, opts Options) (*Session, error) {
	white.ID, black.ID = strings.TrimSpace(white.ID), strings.TrimSpace(black.ID)
	if strings.TrimSpace(id) == "" || white.ID == "" || black.ID == "" || white.ID == black.ID {
		return nil, ErrInvalidPlayers
	}
	start := board.Initial()
	startFEN := ""
	if f := strings.TrimSpace(opts.StartFEN); f != "" && f != board.StartFEN {
		st, err := board.ParseFEN(f)
		if err != nil {
			return nil, err
		}
		start, startFEN = st, f
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Session{
		id:        id,
		white:     white,
		black:     black,
		start:     start,
		startFEN:  startFEN,
		state:     start,
		status:    StatusActive,
		tc:        opts.TimeControl,
		clock:     NewClock(opts.TimeControl, opts.MoveTimeout, opts.MoveGrace, start.Turn(), now),
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Replay rebuilds a session by resubmitting persisted coordinate moves.
func Replay(id string, white, black Participant, opts Options, movesUCI []string) (*Session, error) {
	s, err := New(id, white, black, opts)
	if err != nil {
		return nil, err
	}
	for i, text := range movesUCI {
		c, err := rules.ParseCandidate(text)
		if err != nil {
			return nil, fmt.Errorf("replay move %d: %w", i+1, err)
		}
		mover := s.white.ID
		if s.state.Turn() == board.Black {
			mover = s.black.ID
		}
		if _, _, err := s.Submit(mover, c, s.updatedAt); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, text, err)
		}
	}
	if opts.Seq > s.seq {
		s.seq = opts.Seq
	}
	return s, nil
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Seq() uint64        { return s.seq }
func (s *Session) Status() Status     { return s.status }
func (s *Session) State() board.State { return s.state }
func (s *Session) White() Participant { return s.white }
func (s *Session) Black() Participant { return s.black }

func (s *Session) ColorOf(pid string) (board.Color, error) {
	switch strings.TrimSpace(pid) {
	case "":
		return board.White, ErrNotAParticipant
	case s.white.ID:
		return board.White, nil
	case s.black.ID:
		return board.Black, nil
	default:
		return board.White, ErrNotAParticipant
	}
}

// Ending returns the terminal transition, if any.
func (s *Session) Ending() (Ending, bool) {
	if s.ending == nil {
		return Ending{}, false
	}
	return *s.ending, true
}

func (s *Session) History() []Record {
	out := make([]Record, len(s.history))
	copy(out, s.history)
	return out
}

// MovesUCI lists the accepted moves in coordinate notation.
func (s *Session) MovesUCI() []string {
	out := make([]string, len(s.history))
	for i, r := range s.history {
		out[i] = r.UCI
	}
	return out
}

// Deadline reports when the side to move flags, if a clock runs.
func (s *Session) Deadline() (time.Time, Expiry) {
	if s.status.Terminal() {
		return time.Time{}, ExpiryNone
	}
	return s.clock.Deadline()
}

// Mover returns pid's colour if pid is the side to move of a live game.
func (s *Session) Mover(pid string) (board.Color, error) {
	if s.status.Terminal() {
		return board.White, ErrSessionClosed
	}
	color, err := s.ColorOf(pid)
	if err != nil {
		return board.White, err
	}
	if color != s.state.Turn() {
		return color, &rules.MoveError{Reason: rules.ReasonWrongTurn}
	}
	return color, nil
}

// Submit validates and commits participant pid's candidate. A move that
// arrives after the mover's deadline ends the game on time instead.
func (s *Session) Submit(pid string, c rules.Candidate, now time.Time) (Record, *Ending, error) {
	color, err := s.Mover(pid)
	if err != nil {
		var me *rules.MoveError
		if errors.As(err, &me) {
			me.Candidate = c
		}
		return Record{}, nil, err
	}
	if kind, expired := s.clock.Expired(now); expired {
		end := s.timeout(kind, now)
		return Record{}, end, fmt.Errorf("%w: %w", ErrClockExpired, ErrSessionClosed)
	}
	res, err := rules.Validate(s.state, c)
	if err != nil {
		return Record{}, nil, err
	}
	san, err := notation.SAN(s.state, res.Move)
	if err != nil {
		san = res.Move.UCI()
	}

	s.seq++
	s.state = res.State
	s.updatedAt = now
	s.clock.Punch(color, now)
	if s.drawOffer != nil && *s.drawOffer != color {
		s.drawOffer = nil
	}
	verdict := rules.Evaluate(s.state)
	rec := Record{
		Seq:   s.seq,
		Ply:   len(s.history) + 1,
		Color: color,
		Move:  res.Move,
		UCI:   res.Move.UCI(),
		SAN:   san,
		FEN:   s.state.FEN(),
		Check: verdict.InCheck,
		At:    now,
	}
	s.history = append(s.history, rec)

	switch verdict.Termination {
	case rules.Checkmate:
		return rec, s.end(StatusCheckmate, ReasonCheckmate, &verdict.Winner, now), nil
	case rules.Stalemate:
		return rec, s.end(StatusStalemate, ReasonStalemate, nil, now), nil
	case rules.InsufficientMaterial:
		return rec, s.end(StatusDrawn, ReasonInsufficientMaterial, nil, now), nil
	case rules.SeventyFiveMoveRule:
		return rec, s.end(StatusDrawn, ReasonSeventyFiveMoves, nil, now), nil
	}
	return rec, nil, nil
}

func (s *Session) Resign(pid string, now time.Time) (*Ending, error) {
	if s.status.Terminal() {
		return nil, ErrSessionClosed
	}
	color, err := s.ColorOf(pid)
	if err != nil {
		return nil, err
	}
	winner := color.Opponent()
	return s.end(StatusResigned, ReasonResignation, &winner, now), nil
}

func (s *Session) OfferDraw(pid string, now time.Time) (DrawEvent, error) {
	if s.status.Terminal() {
		return DrawEvent{}, ErrSessionClosed
	}
	color, err := s.ColorOf(pid)
	if err != nil {
		return DrawEvent{}, err
	}
	if s.drawOffer != nil {
		return DrawEvent{}, ErrDrawOfferPending
	}
	s.drawOffer = &color
	s.seq++
	s.updatedAt = now
	return DrawEvent{Seq: s.seq, By: color}, nil
}

// AcceptDraw answers the opponent's pending offer.
func (s *Session) AcceptDraw(pid string, now time.Time) (*Ending, error) {
	if s.status.Terminal() {
		return nil, ErrSessionClosed
	}
	color, err := s.ColorOf(pid)
	if err != nil {
		return nil, err
	}
	if s.drawOffer == nil || *s.drawOffer == color {
		return nil, ErrNoDrawOffer
	}
	return s.end(StatusDrawn, ReasonAgreement, nil, now), nil
}

func (s *Session) DeclineDraw(pid string, now time.Time) (DrawEvent, error) {
	if s.status.Terminal() {
		return DrawEvent{}, ErrSessionClosed
	}
	color, err := s.ColorOf(pid)
	if err != nil {
		return DrawEvent{}, err
	}
	if s.drawOffer == nil || *s.drawOffer == color {
		return DrawEvent{}, ErrNoDrawOffer
	}
	by := *s.drawOffer
	s.drawOffer = nil
	s.seq++
	s.updatedAt = now
	return DrawEvent{Seq: s.seq, By: by}, nil
}

// DrawOffer returns the colour with a pending offer.
func (s *Session) DrawOffer() (board.Color, bool) {
	if s.drawOffer == nil {
		return board.White, false
	}
	return *s.drawOffer, true
}

// Expired reports which allowance of the side to move has run out.
func (s *Session) Expired(now time.Time) (Expiry, bool) {
	if s.status.Terminal() {
		return ExpiryNone, false
	}
	return s.clock.Expired(now)
}

// TimeoutMove ends the game because the side to move exceeded the per-move
// limit. Without a running clock the caller is trusted.
func (s *Session) TimeoutMove(now time.Time) (*Ending, error) {
	return s.forceTimeout(ExpiryMove, now)
}

// TimeoutGame ends the game because the side to move ran out of game time.
func (s *Session) TimeoutGame(now time.Time) (*Ending, error) {
	return s.forceTimeout(ExpiryGame, now)
}

// Expire applies whichever timeout is due at now.
func (s *Session) Expire(now time.Time) (*Ending, error) {
	if s.status.Terminal() {
		return nil, ErrSessionClosed
	}
	kind, ok := s.clock.Expired(now)
	if !ok {
		return nil, ErrNotExpired
	}
	return s.timeout(kind, now), nil
}

func (s *Session) forceTimeout(kind Expiry, now time.Time) (*Ending, error) {
	if s.status.Terminal() {
		return nil, ErrSessionClosed
	}
	if s.clock != nil {
		if _, ok := s.clock.Expired(now); !ok {
			return nil, ErrNotExpired
		}
	}
	return s.timeout(kind, now), nil
}

func (s *Session) timeout(kind Expiry, now time.Time) *Ending {
	winner := s.state.Turn().Opponent()
	return s.end(StatusTimedOut, kind.String(), &winner, now)
}

func (s *Session) end(status Status, reason string, winner *board.Color, now time.Time) *Ending {
	s.seq++
	s.status = status
	s.drawOffer = nil
	s.updatedAt = now
	s.clock.Stop(now)
	e := &Ending{Seq: s.seq, Status: status, Reason: reason, At: now}
	if winner != nil {
		e.Winner, e.HasWinner = *winner, true
	}
	s.ending = e
	cp := *e
	return &cp
}
