package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/beatlive/room-api/internal/config"
	"github.com/beatlive/room-api/internal/handlers"
	httpx "github.com/beatlive/room-api/internal/http"
	"github.com/beatlive/room-api/internal/idgen"
	"github.com/beatlive/room-api/internal/migrations"
	"github.com/beatlive/room-api/internal/repo"
	"github.com/beatlive/room-api/internal/service"
)

type tokenGen struct{}

func (tokenGen) New() string { return idgen.NewToken() }

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx := context.Background()

	// スキーマを最新化してから接続プールを張る
	if err := migrations.Up(cfg.DatabaseURL, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres")

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to redis")

	store := repo.NewPostgresStore(pool, cfg.TxMaxAttempts, logger)
	userSvc := service.NewUserService(store, tokenGen{}, logger)
	hub := handlers.NewRoomHub()
	roomSvc := service.NewRoomService(store, userSvc, hub, cfg.MaxUserCount, logger)

	uh := handlers.NewUserHandler(userSvc, logger)
	rh := handlers.NewRoomHandler(roomSvc, logger)
	wsh := handlers.NewWebSocketHandler(userSvc, hub, logger)
	limiter := httpx.NewRateLimiter(rdb, cfg.RateLimitRPS, cfg.RateLimitRPS)

	router := httpx.NewRouter(uh, rh, wsh, limiter, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown用のシグナルチャネル
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("listening", "addr", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
