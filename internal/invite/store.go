package invite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps invitations in Redis. Each invite key carries the
// response TTL, so an unanswered invite expires on its own.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "duelchess:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) keyInvite(id string) string {
	return s.prefix + "invite:" + strings.TrimSpace(id)
}

func (s *RedisStore) keyInbox(user string) string {
	return s.prefix + "invite:inbox:" + strings.TrimSpace(user)
}

// newCode returns a readable id such as "mostly-brave-otter".
func newCode() string { return petname.Generate(3, "-") }

// Create stores inv under a fresh code and indexes it in the invitee's inbox.
func (s *RedisStore) Create(ctx context.Context, inv *Invite, ttl time.Duration) error {
	for i := 0; i < 5; i++ {
		inv.ID = newCode()
		raw, err := json.Marshal(inv)
		if err != nil {
			return err
		}
		ok, err := s.rdb.SetNX(ctx, s.keyInvite(inv.ID), raw, ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		inbox := s.keyInbox(inv.ToID)
		pipe := s.rdb.TxPipeline()
		pipe.SAdd(ctx, inbox, inv.ID)
		pipe.Expire(ctx, inbox, ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("failed to allocate invite code")
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Invite, error) {
	raw, err := s.rdb.Get(ctx, s.keyInvite(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var inv Invite
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Transition atomically moves a pending invite to a new status. check runs
// against the stored invite and may reject the transition.
func (s *RedisStore) Transition(ctx context.Context, id string, to Status, check func(*Invite) error) (*Invite, error) {
	key := s.keyInvite(id)
	var out *Invite
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrInviteExpired
		}
		if err != nil {
			return err
		}
		var inv Invite
		if err := json.Unmarshal(raw, &inv); err != nil {
			return err
		}
		if err := check(&inv); err != nil {
			return err
		}
		if inv.Status != StatusPending {
			return ErrAlreadyAnswered
		}
		inv.Status = to
		next, err := json.Marshal(&inv)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, redis.KeepTTL)
			pipe.SRem(ctx, s.keyInbox(inv.ToID), inv.ID)
			return nil
		})
		if err != nil {
			return err
		}
		out = &inv
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// someone else answered between WATCH and EXEC
		return nil, ErrAlreadyAnswered
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update overwrites inv without touching its TTL.
func (s *RedisStore) Update(ctx context.Context, inv *Invite) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyInvite(inv.ID), raw, redis.KeepTTL).Err()
}

// Reopen returns a claimed invite to pending and puts it back in the
// invitee's inbox. The invite keeps its remaining TTL.
func (s *RedisStore) Reopen(ctx context.Context, inv *Invite) error {
	key, inbox := s.keyInvite(inv.ID), s.keyInbox(inv.ToID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		ttl, err := tx.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}
		if ttl <= 0 {
			return ErrInviteExpired
		}
		inboxTTL, err := tx.PTTL(ctx, inbox).Result()
		if err != nil {
			return err
		}
		inv.Status = StatusPending
		inv.GameID = ""
		raw, err := json.Marshal(inv)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, raw, redis.SetArgs{Mode: "XX", KeepTTL: true})
			pipe.SAdd(ctx, inbox, inv.ID)
			if inboxTTL < ttl {
				pipe.PExpire(ctx, inbox, ttl)
			}
			return nil
		})
		return err
	}, key, inbox)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrAlreadyAnswered
	}
	return err
}

// Inbox lists pending invites addressed to user. Ids whose key expired are
// pruned from the index on the way.
func (s *RedisStore) Inbox(ctx context.Context, user string) ([]Invite, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyInbox(user)).Result()
	if err != nil {
		return nil, err
	}
	var out []Invite
	for _, id := range ids {
		inv, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv == nil || inv.Status != StatusPending {
			_ = s.rdb.SRem(ctx, s.keyInbox(user), id).Err()
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}
