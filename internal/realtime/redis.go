package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPrefix = "duelchess:"

// OpenRedis connects to a redis:// or rediss:// URL and pings it.
func OpenRedis(ctx context.Context, raw string) (*redis.Client, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("REDIS_URL required")
	}
	opts, err := parseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

// RedisChannel fans events out through Redis PUBLISH/SUBSCRIBE. go-redis
// re-subscribes on its own after a dropped connection.
type RedisChannel struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisChannel(rdb *redis.Client, prefix string, logger *zap.Logger) *RedisChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisChannel{rdb: rdb, prefix: prefix, logger: logger}
}

func (c *RedisChannel) channel(key string) string { return c.prefix + key }

func (c *RedisChannel) Publish(ctx context.Context, key string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := c.rdb.Publish(ctx, c.channel(key), data).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrTransportUnavailable, key, err)
	}
	return nil
}

func (c *RedisChannel) Subscribe(ctx context.Context, key string) (Subscription, error) {
	ps := c.rdb.Subscribe(ctx, c.channel(key))
	// wait for the subscribe confirmation so nothing published after
	// Subscribe returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: subscribe %s: %v", ErrTransportUnavailable, key, err)
	}
	sub := &redisSub{
		ps:   ps,
		key:  key,
		out:  make(chan Event, 64),
		done: make(chan struct{}),
		log:  c.logger,
	}
	sub.wg.Add(1)
	go sub.pump()
	return sub, nil
}

type redisSub struct {
	ps   *redis.PubSub
	key  string
	out  chan Event
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	log  *zap.Logger
}

func (s *redisSub) Events() <-chan Event { return s.out }

func (s *redisSub) pump() {
	defer s.wg.Done()
	defer close(s.out)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				s.log.Warn("realtime_decode_error", zap.String("key", s.key), zap.Error(err))
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		s.wg.Wait()
	})
	return err
}
