package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opus-domini/launchmon/internal/config"
	"github.com/opus-domini/launchmon/internal/descriptor"
	"github.com/opus-domini/launchmon/internal/events"
	"github.com/opus-domini/launchmon/internal/launchd"
	"github.com/opus-domini/launchmon/internal/monitor"
	"github.com/opus-domini/launchmon/internal/notify"
	"github.com/opus-domini/launchmon/internal/registry"
	"github.com/opus-domini/launchmon/internal/runner"
	"github.com/opus-domini/launchmon/internal/scheduler"
	"github.com/opus-domini/launchmon/internal/service"
	"github.com/opus-domini/launchmon/internal/store"
	"github.com/opus-domini/launchmon/internal/watcher"
)

const backgroundStopTimeout = 2 * time.Second

// app holds every collaborator wired from one Config.
type app struct {
	cfg      config.Config
	locator  *descriptor.Locator
	registry *registry.Registry
	history  *store.Store // nil when recording is disabled or unavailable
	hub      *events.Hub
	monitor  *monitor.Monitor
	agent    *service.Agent
}

var newAppFn = func(cfg config.Config) (*app, error) {
	return buildApp(cfg, nil)
}

// buildApp wires the control plane. execFn replaces process execution and
// is nil outside tests.
func buildApp(cfg config.Config, execFn runner.ExecFunc) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	r := runner.NewWithExec(cfg.CommandTimeout, execFn)

	var paths []descriptor.SearchPath
	if len(cfg.SearchPaths) > 0 {
		paths = descriptor.SearchPathsFromDirs(cfg.Home, cfg.SearchPaths)
	}
	locator := descriptor.NewLocator(r, cfg.Home, paths)
	resolver := launchd.NewResolver(r)
	controller := launchd.NewController(r, locator, resolver, launchd.ControllerOptions{
		SettleTimeout: cfg.SettleTimeout,
	})

	a := &app{
		cfg:      cfg,
		locator:  locator,
		registry: registry.New(registry.NewFileStore(cfg.DataDir)),
		hub:      events.NewHub(),
		agent:    service.NewAgent(cfg.Home, controller, resolver),
	}

	deps := monitor.Deps{
		Registry:   a.registry,
		Resolver:   resolver,
		Controller: controller,
		Discovery:  launchd.NewDiscovery(r, locator),
		Locator:    locator,
		Hub:        a.hub,
	}
	if cfg.History {
		st, err := store.New(cfg.HistoryPath())
		if err != nil {
			slog.Warn("history disabled", "path", cfg.HistoryPath(), "err", err)
		} else {
			a.history = st
			deps.History = st
		}
	}
	webhook, err := notify.NewWebhook(cfg.WebhookURL)
	if err != nil {
		slog.Warn("webhook disabled", "err", err)
	} else if webhook != nil {
		deps.Notifier = webhook
	}
	a.monitor = monitor.New(deps)
	return a, nil
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Warn("close history failed", "err", err)
		}
	}
}

func (a *app) searchDirs() []string {
	paths := a.locator.SearchPaths()
	dirs := make([]string, 0, len(paths))
	for _, sp := range paths {
		dirs = append(dirs, sp.Dir)
	}
	return dirs
}

// pruneHistory drops history older than the configured retention.
func (a *app) pruneHistory(ctx context.Context) {
	if a.history == nil || a.cfg.HistoryRetention <= 0 {
		return
	}
	n, err := a.history.Prune(ctx, time.Now().Add(-a.cfg.HistoryRetention))
	if err != nil {
		slog.Warn("history prune failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("history pruned", "rows", n, "retention", a.cfg.HistoryRetention.String())
	}
}

// background is the periodic refresh plus the optional descriptor watcher.
type background struct {
	scheduler *scheduler.Service
	watcher   *watcher.Watcher
}

// startBackground runs the periodic refresh and, when enabled, the descriptor
// watcher. report, if non-nil, receives the transitions of every refresh
// either of them triggers.
func (a *app) startBackground(ctx context.Context, report func([]store.Transition), skipInitial bool) *background {
	deliver := func(transitions []store.Transition) {
		if report != nil && len(transitions) > 0 {
			report(transitions)
		}
	}

	sched := scheduler.New(func(ctx context.Context) {
		deliver(a.monitor.Refresh(ctx))
	}, scheduler.Options{
		Interval:    a.cfg.RefreshInterval,
		SkipInitial: skipInitial,
	})
	sched.Start(ctx)
	b := &background{scheduler: sched}

	if a.cfg.WatchDescriptors {
		w := watcher.New(a.searchDirs(), func(paths []string) {
			slog.Debug("descriptors changed", "paths", paths)
			deliver(a.monitor.DescriptorsChanged(ctx, paths))
		}, watcher.Options{})
		if err := w.Start(ctx); err != nil {
			slog.Warn("descriptor watcher disabled", "err", err)
		} else {
			b.watcher = w
		}
	}
	return b
}

func (b *background) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundStopTimeout)
	defer cancel()
	b.scheduler.Stop(ctx)
	if b.watcher != nil {
		if err := b.watcher.Stop(); err != nil {
			slog.Warn("stop descriptor watcher failed", "err", err)
		}
	}
}
