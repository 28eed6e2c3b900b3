package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simboard/internal/api"
	"simboard/internal/auth"
	"simboard/internal/config"
	"simboard/internal/db"
	"simboard/internal/game"
	"simboard/internal/realtime"
	"simboard/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	bus := realtime.NewBus(cfg.RedisAddr, cfg.RedisChannelPrefix, logger)
	if err := bus.Start(ctx); err != nil {
		logger.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer bus.Stop()

	authClient := auth.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)

	gateway := store.New(pool, logger, store.NewBreaker(logger))
	gateway.SetNotifier(func(ctx context.Context, sessionID, table, op string, payload any) {
		if err := bus.RowChanged(ctx, sessionID, table, op, payload); err != nil {
			logger.Warn("row-change publish failed", "session", sessionID, "table", table, "err", err)
		}
	})

	settle := game.NewSettlementEngine(gateway, gateway, gateway, logger)
	apply := game.NewApplicationEngine(gateway, gateway, gateway, gateway, gateway, logger)
	dice := game.NewDoubleDownResolver(gateway, gateway, bus, logger)
	dice.RollDwell = cfg.RollDwell
	dice.WaitEvery = cfg.ObserverWaitEvery
	dice.WaitLimit = cfg.ObserverWaitLimit

	server := api.New(cfg, logger, authClient, gateway, settle, apply, dice, bus)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("simboard api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
