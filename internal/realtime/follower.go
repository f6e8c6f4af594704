package realtime

// Verdict is what a Follower decided about an incoming event.
type Verdict uint8

const (
	Apply Verdict = iota
	Duplicate
	Gap
)

func (v Verdict) String() string {
	switch v {
	case Duplicate:
		return "duplicate"
	case Gap:
		return "gap"
	default:
		return "apply"
	}
}

// Follower tracks the last applied sequence number per game. Events with
// Seq <= last are duplicates; Seq > last+1 means something was missed and
// the consumer must resynchronise from a snapshot, then call Reset.
// A Follower is owned by a single consumer goroutine.
type Follower struct {
	last map[string]uint64
}

func NewFollower() *Follower {
	return &Follower{last: make(map[string]uint64)}
}

// Accept classifies ev and advances the cursor when it is applied.
// Unsequenced events always apply.
func (f *Follower) Accept(ev Event) Verdict {
	if ev.Seq == 0 || ev.GameID == "" {
		return Apply
	}
	last, tracked := f.last[ev.GameID]
	switch {
	case tracked && ev.Seq <= last:
		return Duplicate
	case tracked && ev.Seq > last+1:
		return Gap
	case !tracked && ev.Seq > 1:
		return Gap
	}
	f.last[ev.GameID] = ev.Seq
	return Apply
}

// Reset positions the cursor at a snapshot's sequence number.
func (f *Follower) Reset(gameID string, seq uint64) {
	f.last[gameID] = seq
}

func (f *Follower) Last(gameID string) (uint64, bool) {
	seq, ok := f.last[gameID]
	return seq, ok
}

func (f *Follower) Forget(gameID string) {
	delete(f.last, gameID)
}
