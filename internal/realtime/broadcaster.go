package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Broadcaster publishes with a bounded timeout and logs failures instead of
// returning them. Committed game state is never rolled back on a failed
// publish; followers recover through snapshots.
type Broadcaster struct {
	ch      Channel
	timeout time.Duration
	logger  *zap.Logger
}

func NewBroadcaster(ch Channel, timeout time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Broadcaster{ch: ch, timeout: timeout, logger: logger}
}

// Send publishes ev on key. It reports whether the publish succeeded.
func (b *Broadcaster) Send(key string, ev Event) bool {
	if b == nil || b.ch == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.ch.Publish(ctx, key, ev); err != nil {
		b.logger.Warn("publish_error",
			zap.String("key", key),
			zap.String("type", ev.Type),
			zap.String("game_id", ev.GameID),
			zap.Uint64("seq", ev.Seq),
			zap.Error(err),
		)
		return false
	}
	return true
}

// SendPayload builds the envelope and publishes it.
func (b *Broadcaster) SendPayload(key, typ, gameID string, seq uint64, payload any, at time.Time) bool {
	ev, err := NewEvent(typ, gameID, seq, payload, at)
	if err != nil {
		if b != nil {
			b.logger.Error("event_encode_error", zap.String("type", typ), zap.Error(err))
		}
		return false
	}
	return b.Send(key, ev)
}
