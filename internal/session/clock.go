package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/duelchess/internal/board"
)

// TimeControl is a base allowance per side plus a per-move increment.
// The zero value is untimed.
type TimeControl struct {
	Base      time.Duration
	Increment time.Duration
}

func (tc TimeControl) IsZero() bool { return tc.Base <= 0 }

// String renders "<minutes>+<seconds>", or "none" when untimed.
func (tc TimeControl) String() string {
	if tc.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s+%d", strconv.FormatFloat(tc.Base.Minutes(), 'f', -1, 64), int(tc.Increment/time.Second))
}

// ParseTimeControl reads "5+3" (five minutes, three seconds increment),
// "10" (no increment) or "none".
func ParseTimeControl(s string) (TimeControl, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "none" || s == "-" {
		return TimeControl{}, nil
	}
	basePart, incPart, hasInc := strings.Cut(s, "+")
	mins, err := strconv.ParseFloat(strings.TrimSpace(basePart), 64)
	if err != nil || mins <= 0 {
		return TimeControl{}, fmt.Errorf("time control %q: bad base minutes", s)
	}
	tc := TimeControl{Base: time.Duration(mins * float64(time.Minute))}
	if hasInc {
		secs, err := strconv.Atoi(strings.TrimSpace(incPart))
		if err != nil || secs < 0 {
			return TimeControl{}, fmt.Errorf("time control %q: bad increment", s)
		}
		tc.Increment = time.Duration(secs) * time.Second
	}
	return tc, nil
}

// Expiry says which allowance ran out.
type Expiry uint8

const (
	ExpiryNone Expiry = iota
	ExpiryMove
	ExpiryGame
)

func (e Expiry) String() string {
	switch e {
	case ExpiryMove:
		return "move_timeout"
	case ExpiryGame:
		return "game_timeout"
	default:
		return "none"
	}
}

// Clock tracks both sides' remaining time and the optional per-move limit.
// Only the side to move is charged. Deadlines include the grace period.
type Clock struct {
	timed       bool
	remaining   [2]time.Duration
	increment   time.Duration
	perMove     time.Duration
	grace       time.Duration
	turn        board.Color
	turnStarted time.Time
	stopped     bool
}

// NewClock returns nil when neither a time control nor a per-move limit is set.
func NewClock(tc TimeControl, perMove, grace time.Duration, turn board.Color, now time.Time) *Clock {
	if tc.IsZero() && perMove <= 0 {
		return nil
	}
	c := &Clock{
		timed:       !tc.IsZero(),
		increment:   tc.Increment,
		perMove:     perMove,
		grace:       grace,
		turn:        turn,
		turnStarted: now,
	}
	c.remaining[board.White] = tc.Base
	c.remaining[board.Black] = tc.Base
	return c
}

// Remaining returns color's game allowance at now (zero when untimed).
func (c *Clock) Remaining(color board.Color, now time.Time) time.Duration {
	if c == nil || !c.timed {
		return 0
	}
	r := c.remaining[color]
	if !c.stopped && color == c.turn {
		r -= now.Sub(c.turnStarted)
	}
	if r < 0 {
		r = 0
	}
	return r
}

// Deadline returns when the side to move flags and which allowance that is.
func (c *Clock) Deadline() (time.Time, Expiry) {
	if c == nil || c.stopped {
		return time.Time{}, ExpiryNone
	}
	var at time.Time
	kind := ExpiryNone
	if c.timed {
		at, kind = c.turnStarted.Add(c.remaining[c.turn]), ExpiryGame
	}
	if c.perMove > 0 {
		if mv := c.turnStarted.Add(c.perMove); kind == ExpiryNone || mv.Before(at) {
			at, kind = mv, ExpiryMove
		}
	}
	if kind == ExpiryNone {
		return time.Time{}, ExpiryNone
	}
	return at.Add(c.grace), kind
}

// Expired reports whether the side to move has run out of time at now.
func (c *Clock) Expired(now time.Time) (Expiry, bool) {
	at, kind := c.Deadline()
	if kind == ExpiryNone || now.Before(at) {
		return ExpiryNone, false
	}
	return kind, true
}

// Punch charges mover for the elapsed turn, adds the increment and starts
// the opponent's turn.
func (c *Clock) Punch(mover board.Color, now time.Time) {
	if c == nil || c.stopped {
		return
	}
	if c.timed {
		c.remaining[mover] -= now.Sub(c.turnStarted)
		if c.remaining[mover] < 0 {
			c.remaining[mover] = 0
		}
		c.remaining[mover] += c.increment
	}
	c.turn = mover.Opponent()
	c.turnStarted = now
}

// Stop freezes the clock at now.
func (c *Clock) Stop(now time.Time) {
	if c == nil || c.stopped {
		return
	}
	if c.timed {
		c.remaining[c.turn] -= now.Sub(c.turnStarted)
		if c.remaining[c.turn] < 0 {
			c.remaining[c.turn] = 0
		}
	}
	c.stopped = true
}
