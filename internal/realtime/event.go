package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTransportUnavailable = errors.New("realtime transport unavailable")
	ErrChannelClosed        = errors.New("realtime channel closed")
)

// Event is the envelope broadcast on a channel key. Seq is zero for events
// that are not part of a game's ordered stream (invites, presence).
type Event struct {
	Type    string          `json:"type"`
	GameID  string          `json:"game_id,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// NewEvent marshals payload into an envelope.
func NewEvent(typ, gameID string, seq uint64, payload any, at time.Time) (Event, error) {
	ev := Event{Type: typ, GameID: gameID, Seq: seq, At: at.UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

func GameKey(gameID string) string { return "game:" + gameID }
func UserKey(userID string) string { return "user:" + userID }

// Channel carries events between the authoritative core and connected
// clients.
type Channel interface {
	Publish(ctx context.Context, key string, ev Event) error
	Subscribe(ctx context.Context, key string) (Subscription, error)
}

// Subscription delivers events for one key in publish order. Events is
// closed after Close.
type Subscription interface {
	Events() <-chan Event
	Close() error
}
