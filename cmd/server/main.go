// Command server runs the paper-trading tournament engine: HTTP API,
// WebSocket feed, price simulation and the tournament scheduler.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/tradearena/trading-engine/internal/candle"
	"github.com/tradearena/trading-engine/internal/config"
	"github.com/tradearena/trading-engine/internal/engine"
	"github.com/tradearena/trading-engine/internal/metrics"
	"github.com/tradearena/trading-engine/internal/model"
	"github.com/tradearena/trading-engine/internal/notify"
	"github.com/tradearena/trading-engine/internal/oracle"
	"github.com/tradearena/trading-engine/internal/risk"
	"github.com/tradearena/trading-engine/internal/store"
	"github.com/tradearena/trading-engine/internal/tournament"
	"github.com/tradearena/trading-engine/internal/wallet"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	hub := notify.NewHub(log)
	go hub.Run(ctx)

	sim := oracle.NewSimulator(cfg.SimSymbols, cfg.SimInterval, cfg.SimMaxMovePct, cfg.SimSeed, log)
	builder := candle.NewBuilder(cfg.CandleInterval)
	history := candle.NewHistory(cfg.CandleHistory)

	tournaments := tournament.NewService(st, hub, log)
	ledger := wallet.NewLedger(st, log)
	policy := risk.Policy{
		MaxOrderValue:    cfg.MaxOrderValue,
		MaxPositionValue: cfg.MaxPositionValue,
	}
	eng := engine.NewEngine(st, sim, policy, hub, tournaments, cfg.OracleTimeout, log)

	// Tick pipeline: feed -> candles -> positions and resting orders.
	sim.OnTick(func(t model.Tick) {
		hub.Publish(notify.Event{
			Type: notify.EventTick, Symbol: t.Symbol, Timestamp: t.Timestamp, Payload: t,
		})
		if done := builder.ProcessTick(t); done != nil {
			history.Add(*done)
			metrics.CandlesCompleted.Inc()
			hub.Publish(notify.Event{
				Type: notify.EventCandle, Symbol: done.Symbol, Timestamp: t.Timestamp, Payload: done,
			})
		}
		eng.OnPrice(ctx, t)
	})
	go sim.Run(ctx)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 1m", func() {
		if err := tournaments.SyncStatuses(ctx); err != nil {
			log.Error("tournament status sync failed", "error", err)
		}
	}); err != nil {
		log.Error("schedule status sync", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.AddFunc("@every "+cfg.LeaderboardRefresh.String(), func() {
		tournaments.RefreshActiveLeaderboards(ctx)
	}); err != nil {
		log.Error("schedule leaderboard refresh", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &server{
		cfg:         cfg,
		log:         log,
		engine:      eng,
		tournaments: tournaments,
		ledger:      ledger,
		oracle:      sim,
		candles:     history,
		builder:     builder,
		hub:         hub,
	}
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("server listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

// buildStore picks the persistence stack: PostgreSQL when configured, with
// an optional Redis cache layer, otherwise in-memory.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}

	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Init(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	log.Info("using postgres store")

	if cfg.RedisURL == "" {
		return pg, pg.Close, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pg.Close()
		return nil, nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		pg.Close()
		return nil, nil, err
	}
	log.Info("redis cache enabled")
	cached := store.NewCachedStore(pg, rdb, cfg.CacheTTL, log)
	cleanup := func() {
		rdb.Close()
		pg.Close()
	}
	return cached, cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
