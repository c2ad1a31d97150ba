package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/auth"
	"github.com/akshatjain2002sept/connect-4-multi/internal/cleanup"
	"github.com/akshatjain2002sept/connect-4-multi/internal/config"
	"github.com/akshatjain2002sept/connect-4-multi/internal/game"
	"github.com/akshatjain2002sept/connect-4-multi/internal/httpapi"
	"github.com/akshatjain2002sept/connect-4-multi/internal/leaderboard"
	"github.com/akshatjain2002sept/connect-4-multi/internal/matchmaking"
	"github.com/akshatjain2002sept/connect-4-multi/internal/msgcat"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
	"github.com/akshatjain2002sept/connect-4-multi/internal/store"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		log.Fatalf("database init error: %v", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("migrate error: %v", err)
	}

	eng := game.NewEngine(st, game.WithAbandonThreshold(cfg.AbandonAfter))
	queue := matchmaking.NewQueue(eng, matchmaking.WithStaleAfter(cfg.QueueStaleAfter))

	// Redis is optional; without it the leaderboard is read from Postgres.
	var ranking httpapi.Ranking
	var rebuilder cleanup.Rebuilder
	if cfg.RedisURL != "" {
		rdb, err := leaderboard.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis init error: %v", err)
		}
		defer func() { _ = rdb.Close() }()
		board := leaderboard.New(rdb, leaderboard.DefaultKey)
		eng.AttachResultSink(board)
		ranking, rebuilder = board, board
	} else {
		logger.Info("leaderboard_cache_disabled")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("scheduler init error: %v", err)
	}
	if _, err := queue.RegisterSweeper(sched, cfg.QueueSweepInterval); err != nil {
		log.Fatalf("schedule queue sweep: %v", err)
	}
	janitor := cleanup.New(st, rebuilder, clockwork.NewRealClock(), cleanup.Config{
		Interval:   cfg.CleanupInterval,
		WaitingTTL: cfg.WaitingGameTTL,
		PurgeAfter: cfg.LobbyPurgeAfter,
	})
	if _, err := janitor.Register(ctx, sched); err != nil {
		log.Fatalf("schedule cleanup: %v", err)
	}
	// Rebuild the cache right away instead of waiting a full interval.
	if _, err := janitor.RunOnce(ctx); err != nil {
		logger.Warn("cleanup_failed", zap.Error(err))
	}
	sched.Start()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		log.Fatalf("messages init error: %v", err)
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("auth init error: %v", err)
	}

	srv := httpapi.New(httpapi.Options{
		Engine:          eng,
		Queue:           queue,
		Store:           st,
		Ranking:         ranking,
		Verifier:        verifier,
		Messages:        msgs,
		AllowedOrigins:  cfg.AllowedOrigins,
		LeaderboardSize: cfg.LeaderboardSize,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.Listen(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("http_listen_failed", zap.Error(err))
		}
	}

	logger.Info("shutdown_start")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler_shutdown_failed", zap.Error(err))
	}
	logger.Info("shutdown_done")
}
