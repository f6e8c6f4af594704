package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/duelchess/internal/archive"
	appcfg "github.com/park285/duelchess/internal/config"
	"github.com/park285/duelchess/internal/gateway"
	"github.com/park285/duelchess/internal/identity"
	"github.com/park285/duelchess/internal/invite"
	"github.com/park285/duelchess/internal/msgcat"
	"github.com/park285/duelchess/internal/obslog"
	"github.com/park285/duelchess/internal/realtime"
	"github.com/park285/duelchess/internal/registry"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	syncLog, err := obslog.InitFromEnv()
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = syncLog() }()
	logger := obslog.Named("server")

	cat, err := msgcat.New(cfg.MessagesLang, cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_load_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 실시간 채널: Redis가 없으면 단일 프로세스 메모리 채널 (초대 비활성)
	var (
		ch  realtime.Channel
		rdb *redis.Client
	)
	if cfg.RedisURL != "" {
		octx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err = realtime.OpenRedis(octx, cfg.RedisURL)
		cancel()
		if err != nil {
			logger.Fatal("redis_connect_error", zap.Error(err))
		}
		ch = realtime.NewRedisChannel(rdb, cfg.RedisPrefix, obslog.Named("realtime"))
	} else {
		logger.Warn("redis_disabled", zap.String("reason", "REDIS_URL not set; invites disabled"))
		ch = realtime.NewMemoryChannel(256)
	}
	bus := realtime.NewBroadcaster(ch, cfg.PublishTimeout, obslog.Named("broadcast"))

	var repo archive.Repository = archive.NewMemoryRepository()
	var pg *archive.PostgresRepository
	if cfg.DatabaseURL != "" {
		octx, cancel := context.WithTimeout(ctx, 30*time.Second)
		pg, err = archive.NewPostgresRepository(octx, cfg.DatabaseURL, cfg.MigrationsPath)
		cancel()
		if err != nil {
			logger.Fatal("archive_init_error", zap.Error(err))
		}
		repo = pg
	}

	reg := registry.New(registry.Config{
		TimeControl:     cfg.TimeControl,
		MoveTimeout:     cfg.MoveTimeout,
		MoveGrace:       cfg.MoveGrace,
		ClosedRetention: cfg.ClosedRetention,
		MaxGames:        cfg.MaxConcurrentGames,
	}, bus, registry.WithArchive(repo), registry.WithLogger(obslog.Named("registry")))

	var invites *invite.Manager
	if rdb != nil {
		invites = invite.NewManager(invite.NewRedisStore(rdb, cfg.RedisPrefix), reg, bus, cfg.InviteTTL, obslog.Named("invite"))
	}

	var ident identity.Provider = identity.HeaderProvider{}
	if cfg.IdentityMode == appcfg.IdentityDirectory {
		dir := identity.NewDirectory(cfg.IdentityBaseURL,
			identity.WithTimeout(cfg.IdentityTimeout),
			identity.WithLogger(obslog.Named("identity")))
		ident = identity.DirectoryProvider{Directory: dir}
	}

	gw := gateway.New(gateway.Config{
		HandshakeTimeout: cfg.HandshakeTimeout,
		AllowedOrigins:   cfg.AllowedOrigins,
	}, gateway.Deps{
		Registry: reg,
		Invites:  invites,
		Archive:  repo,
		Channel:  ch,
		Bus:      bus,
		Identity: ident,
		Catalog:  cat,
		Logger:   obslog.Named("gateway"),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.Routes(),
		ReadHeaderTimeout: cfg.HandshakeTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listen", zap.String("addr", cfg.ListenAddr), zap.String("identity", cfg.IdentityMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server_error", zap.Error(err))
		}
	}

	logger.Info("server_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := gw.Close(sctx); err != nil {
		logger.Warn("gateway_close_error", zap.Error(err))
	}
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	// flushes the archive for every game still in memory
	if err := reg.Close(sctx); err != nil {
		logger.Warn("registry_close_error", zap.Error(err))
	}
	if c, ok := ch.(io.Closer); ok {
		_ = c.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if pg != nil {
		_ = pg.Close()
	}
}
