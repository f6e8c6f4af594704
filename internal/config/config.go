package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/duelchess/internal/session"
)

const (
	IdentityHeader    = "header"
	IdentityDirectory = "directory"
)

type AppConfig struct {
	ListenAddr string

	RedisURL    string
	RedisPrefix string

	DatabaseURL    string
	MigrationsPath string

	IdentityMode    string
	IdentityBaseURL string
	IdentityTimeout time.Duration

	TimeControl     session.TimeControl
	MoveTimeout     time.Duration
	MoveGrace       time.Duration
	ClosedRetention time.Duration

	InviteTTL        time.Duration
	HandshakeTimeout time.Duration
	PublishTimeout   time.Duration

	MessagesDir  string
	MessagesLang string

	MaxConcurrentGames int
	AllowedOrigins     []string
}

// Load reads the process environment after merging an optional .env file.
// Variables already set in the environment win over the file.
func Load() (*AppConfig, error) {
	if err := loadDotEnv(strings.TrimSpace(os.Getenv("ENV_FILE"))); err != nil {
		return nil, err
	}
	return FromEnv()
}

func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv builds the config from environment variables only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		RedisPrefix:        "duelchess:",
		MigrationsPath:     "db/migrations",
		IdentityMode:       IdentityHeader,
		IdentityTimeout:    3 * time.Second,
		MoveGrace:          500 * time.Millisecond,
		ClosedRetention:    5 * time.Minute,
		InviteTTL:          2 * time.Minute,
		HandshakeTimeout:   10 * time.Second,
		PublishTimeout:     2 * time.Second,
		MessagesLang:       "en",
		MaxConcurrentGames: 200,
	}

	if v := env("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	cfg.RedisURL = env("REDIS_URL")
	if v := env("REDIS_PREFIX"); v != "" {
		cfg.RedisPrefix = v
	}
	cfg.DatabaseURL = env("DATABASE_URL")
	if v := env("MIGRATIONS_PATH"); v != "" {
		cfg.MigrationsPath = v
	}
	if v := strings.ToLower(env("IDENTITY_MODE")); v != "" {
		cfg.IdentityMode = v
	}
	cfg.IdentityBaseURL = strings.TrimRight(env("IDENTITY_BASE_URL"), "/")
	cfg.MessagesDir = env("MESSAGES_DIR")
	if v := env("MESSAGES_LANG"); v != "" {
		cfg.MessagesLang = v
	}
	cfg.AllowedOrigins = splitList(env("ALLOWED_ORIGINS"))

	if v := env("MAX_CONCURRENT_GAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentGames = n
		}
	}

	tc, err := session.ParseTimeControl(env("TIME_CONTROL"))
	if err != nil {
		return nil, fmt.Errorf("TIME_CONTROL: %w", err)
	}
	cfg.TimeControl = tc

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"MOVE_TIMEOUT", &cfg.MoveTimeout},
		{"MOVE_GRACE", &cfg.MoveGrace},
		{"CLOSED_RETENTION", &cfg.ClosedRetention},
		{"INVITE_TTL", &cfg.InviteTTL},
		{"HANDSHAKE_TIMEOUT", &cfg.HandshakeTimeout},
		{"PUBLISH_TIMEOUT", &cfg.PublishTimeout},
		{"IDENTITY_TIMEOUT", &cfg.IdentityTimeout},
	}
	for _, d := range durations {
		v := env(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	switch cfg.IdentityMode {
	case IdentityHeader:
	case IdentityDirectory:
		if cfg.IdentityBaseURL == "" {
			return nil, errors.New("IDENTITY_BASE_URL is required when IDENTITY_MODE=directory")
		}
	default:
		return nil, fmt.Errorf("IDENTITY_MODE must be %q or %q", IdentityHeader, IdentityDirectory)
	}
	if cfg.InviteTTL <= 0 {
		return nil, errors.New("INVITE_TTL must be positive")
	}
	return cfg, nil
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

// parseDuration accepts Go durations ("1m30s") or plain seconds ("90").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
