package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/fonfetch/api"
	"github.com/use-agent/fonfetch/cache"
	"github.com/use-agent/fonfetch/config"
	"github.com/use-agent/fonfetch/portal"
	"github.com/use-agent/fonfetch/scraper"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("fonfetch starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"portal", cfg.Portal.BaseURL,
		"maxSessions", cfg.Browser.MaxSessions,
	)

	// ── 3. Launch browser ───────────────────────────────────────────
	browser, err := scraper.NewBrowser(cfg)
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer browser.Close()

	// ── 4. Wire acquisition client and service ──────────────────────
	client := portal.NewClient(browser, cfg)
	var fetcher portal.Fetcher = client
	if cfg.Cache.TTL > 0 {
		pc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
		defer pc.Close()
		fetcher = portal.NewCachedFetcher(client, pc, cfg.Timing.RequestTimeout)
		slog.Info("payload cache enabled", "ttl", cfg.Cache.TTL, "maxEntries", cfg.Cache.MaxEntries)
	}
	svc := portal.NewService(fetcher)

	// ── 5. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(svc, client, cfg, startTime)

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Acquisitions run for tens of seconds; let in-flight ones finish.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timing.RequestTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// browser.Close() runs via defer and kills Chrome.
	slog.Info("fonfetch stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
