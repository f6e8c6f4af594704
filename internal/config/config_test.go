package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/duelchess/internal/session"
)

var allKeys = []string{
	"ENV_FILE", "LISTEN_ADDR", "REDIS_URL", "REDIS_PREFIX", "DATABASE_URL", "MIGRATIONS_PATH",
	"IDENTITY_MODE", "IDENTITY_BASE_URL", "IDENTITY_TIMEOUT", "TIME_CONTROL", "MOVE_TIMEOUT",
	"MOVE_GRACE", "CLOSED_RETENTION", "INVITE_TTL", "HANDSHAKE_TIMEOUT", "PUBLISH_TIMEOUT",
	"MESSAGES_DIR", "MESSAGES_LANG", "MAX_CONCURRENT_GAMES", "ALLOWED_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.IdentityMode != IdentityHeader || cfg.MaxConcurrentGames != 200 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.TimeControl.IsZero() || cfg.InviteTTL != 2*time.Minute || cfg.MoveGrace != 500*time.Millisecond {
		t.Fatalf("timing defaults = %+v", cfg)
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("TIME_CONTROL", "3+2")
	t.Setenv("MOVE_TIMEOUT", "45")
	t.Setenv("MOVE_GRACE", "250ms")
	t.Setenv("ALLOWED_ORIGINS", " a.example , ,b.example")
	t.Setenv("MAX_CONCURRENT_GAMES", "-1")
	t.Setenv("IDENTITY_MODE", "Directory")
	t.Setenv("IDENTITY_BASE_URL", "http://identity.local/")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	want := session.TimeControl{Base: 3 * time.Minute, Increment: 2 * time.Second}
	if cfg.TimeControl != want {
		t.Fatalf("TimeControl = %+v", cfg.TimeControl)
	}
	if cfg.MoveTimeout != 45*time.Second || cfg.MoveGrace != 250*time.Millisecond {
		t.Fatalf("durations = %v %v", cfg.MoveTimeout, cfg.MoveGrace)
	}
	if diff := cmp.Diff([]string{"a.example", "b.example"}, cfg.AllowedOrigins); diff != "" {
		t.Fatalf("origins (-want +got):\n%s", diff)
	}
	if cfg.MaxConcurrentGames != 200 {
		t.Fatalf("negative limit should keep the default, got %d", cfg.MaxConcurrentGames)
	}
	if cfg.IdentityMode != IdentityDirectory || cfg.IdentityBaseURL != "http://identity.local" {
		t.Fatalf("identity = %s %s", cfg.IdentityMode, cfg.IdentityBaseURL)
	}
}

func TestErrors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"bad time control", "TIME_CONTROL", "blitz", "TIME_CONTROL"},
		{"bad duration", "MOVE_TIMEOUT", "soon", "MOVE_TIMEOUT"},
		{"negative duration", "INVITE_TTL", "-5s", "INVITE_TTL"},
		{"directory without url", "IDENTITY_MODE", "directory", "IDENTITY_BASE_URL"},
		{"unknown identity mode", "IDENTITY_MODE", "oauth", "IDENTITY_MODE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.val)
			_, err := FromEnv()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LISTEN_ADDR=:7000\nTIME_CONTROL=10\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	// godotenv does not override variables that are already set, and an
	// empty value counts as set, so drop them for this test
	os.Unsetenv("LISTEN_ADDR")
	os.Unsetenv("TIME_CONTROL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" || cfg.TimeControl.Base != 10*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadWithoutDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	if _, err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
