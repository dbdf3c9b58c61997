package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casguard/internal/bot"
	"casguard/internal/classifier"
	"casguard/internal/config"
	"casguard/internal/denylist"
	"casguard/internal/fetcher"
	"casguard/internal/moderation"
	"casguard/internal/reputation"
	"casguard/internal/scheduler"
	"casguard/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cache, err := newReputationCache(ctx, cfg, store)
	if err != nil {
		log.Error("create reputation cache", "backend", cfg.ReputationCache, "error", err)
		os.Exit(1)
	}

	audit, err := moderation.NewAuditLog(cfg.BannedLogPath)
	if err != nil {
		log.Error("open audit log", "path", cfg.BannedLogPath, "error", err)
		os.Exit(1)
	}

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	deny := denylist.NewStore()
	feeds := fetcher.New(fetcher.NewRetryingClient(log, 2), cfg.HTTPTimeout)
	agg := denylist.NewAggregator(deny, feeds, store, cfg.CASExportURL, cfg.LolsURL, log.With("component", "denylist"))

	breaker := reputation.NewBreaker(cfg.CASCooldown)
	cas := reputation.NewClient(fetcher.NewPlainClient(), cfg.CASAPIURL, cfg.HTTPTimeout, breaker, log.With("component", "reputation"))
	cls := classifier.New(store, deny, cache, cas, cfg.CASCacheTTL, log.With("component", "classifier"))

	exec := moderation.NewExecutor(store, b, audit, log.With("component", "executor"))
	guard := moderation.NewGuard(store, cls, exec, cfg.MessageCacheLimit, log.With("component", "guard"))
	rechecker := moderation.NewRechecker(store, cls, exec, b, log.With("component", "recheck"))

	b.Attach(guard, exec, deny)

	// The denylist is loaded before polling starts so the first events
	// are checked against it.
	if _, err := agg.Refresh(ctx); err != nil {
		log.Error("initial denylist refresh failed", "error", err)
	}

	sched := scheduler.New(log)
	sched.AddDelayed("refresh_sources", cfg.SourceRefreshInterval(), func(ctx context.Context) error {
		_, err := agg.Refresh(ctx)
		return err
	})
	sched.Add("recheck_seen", cfg.RecheckInterval, func(ctx context.Context) error {
		_, err := rechecker.Sweep(ctx, cfg.SeenTTL)
		return err
	})

	if cfg.MetricsListen != "" {
		go runMetrics(ctx, cfg.MetricsListen, log)
	}

	log.Info("starting bot",
		"reputation_cache", cfg.ReputationCache,
		"denylist_size", deny.Size(),
	)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	b.Run(ctx)
	<-schedDone

	log.Info("bot stopped")
}

func newReputationCache(ctx context.Context, cfg *config.Config, store *storage.SQLite) (reputation.Cache, error) {
	switch cfg.ReputationCache {
	case config.CacheMemory:
		return reputation.NewMemCache(100_000, cfg.CASCacheTTL), nil
	case config.CacheRedis:
		c, err := reputation.NewRedisCache(ctx, cfg.RedisURL, cfg.CASCacheTTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CacheSQLite, "":
		return store, nil
	}
	return nil, fmt.Errorf("unknown reputation cache %q", cfg.ReputationCache)
}

func runMetrics(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server", "error", err)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
