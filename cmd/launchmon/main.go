package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opus-domini/launchmon/internal/api"
	"github.com/opus-domini/launchmon/internal/config"
	"github.com/opus-domini/launchmon/internal/security"
)

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

// notifyContextFn returns a context cancelled on SIGINT/SIGTERM.
var notifyContextFn = func() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serve() int {
	cfg := loadConfigFn()
	initLogger(cfg.LogLevel)

	if err := security.ValidateRemoteExposure(cfg.ListenAddr, cfg.Token); err != nil {
		slog.Error("security baseline check failed",
			"listen", cfg.ListenAddr,
			"token_required", cfg.Token != "",
			"err", err,
		)
		return 1
	}

	a, err := newAppFn(cfg)
	if err != nil {
		slog.Error("init failed", "err", err)
		return 1
	}
	defer a.close()

	ctx, stop := notifyContextFn()
	defer stop()

	a.pruneHistory(ctx)
	bg := a.startBackground(ctx, nil, false)
	defer bg.stop()

	guard := security.New(cfg.Token, cfg.AllowedOrigins)
	mux := http.NewServeMux()
	if a.history != nil {
		api.Register(mux, guard, a.monitor, a.history, currentVersionFn())
	} else {
		api.Register(mux, guard, a.monitor, nil, currentVersionFn())
	}
	return run(ctx, cfg, mux)
}

type commandContext struct {
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, cfg config.Config, mux *http.ServeMux) int {
	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     requestLog(mux),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /api/events streams for the life of the client.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("launchmon started",
		"listen", cfg.ListenAddr,
		"data_dir", cfg.DataDir,
		"token_required", cfg.Token != "",
		"log_level", cfg.LogLevel,
		"refresh_interval", cfg.RefreshInterval.String(),
		"watch_descriptors", cfg.WatchDescriptors,
		"history", cfg.History,
		"webhook", cfg.WebhookURL != "",
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("launchmon stopped")
	return 0
}

func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start).Truncate(time.Millisecond))
	})
}

func initLogger(level string) {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
}
