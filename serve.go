package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"remindbot/clock"
	"remindbot/config"
	"remindbot/control"
	"remindbot/delivery"
	"remindbot/handlers"
	"remindbot/logging"
	"remindbot/metrics"
	"remindbot/middleware"
	"remindbot/models"
	"remindbot/platform"
	"remindbot/platform/discord"
	"remindbot/scheduler"
	"remindbot/settings"
	"remindbot/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// serve runs the engine until ctx is cancelled or an operator asks it to exit.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(logging.Config{Level: settings.DefaultLogLevel, Format: cfg.LogFormat})

	loc, err := clock.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	clk := clock.NewReal(loc)

	manager, err := settings.Load(cfg.Files.Settings, logger.Logger)
	if err != nil {
		return err
	}
	logger.SetLevel(manager.Current().LogLevel)
	manager.OnReload(func(s settings.Settings) {
		logger.SetLevel(s.LogLevel)
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	st, err := store.New(cfg.Files.Data, clk, logger.Logger)
	if err != nil {
		return err
	}
	st.SetMetrics(m)
	m.SetStored(st.Count())

	audit, err := store.OpenAuditLog(cfg.Files.AuditDB)
	if err != nil {
		return err
	}
	defer audit.Close()

	plat, closePlatform, err := openPlatform(cfg, manager.Current(), logger.Logger)
	if err != nil {
		return err
	}
	defer closePlatform()

	auth, err := middleware.NewAuth(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := handlers.NewHub(logger.Logger)
	loop := scheduler.NewLoop(st, delivery.New(plat, clk, logger.Logger), clk, manager,
		scheduler.WithLogger(logger.Logger),
		scheduler.WithMetrics(m),
		scheduler.WithObserver(func(r models.Reminder, outcome models.DeliveryOutcome) {
			if err := audit.RecordDelivery(r, outcome); err != nil {
				logger.Warn("audit delivery", "reminder_id", r.ID, "error", err)
			}
		}),
		scheduler.WithObserver(hub.ReminderProcessed),
	)

	watcher, err := settings.NewWatcher(manager, cfg.SettingsPoll,
		settings.WithWatcherLogger(logger.Logger),
		settings.WithWatcherMetrics(m))
	if err != nil {
		return err
	}

	env := &handlers.Env{
		Store:    st,
		Audit:    audit,
		Platform: plat,
		Clock:    clk,
		Hub:      hub,
		Logger:   logger.Logger,
	}
	router := handlers.NewRouter(auth, handlers.Handlers{
		Auth:      handlers.NewAuthHandler(auth, cfg.BridgeSecretHash, logger.Logger),
		Reminders: handlers.NewReminderHandler(env),
		Guilds:    handlers.NewGuildHandler(env),
		Backend: handlers.NewBackendHandler(env, manager,
			handlers.WithLoop(loop),
			handlers.WithControl(control.NewFile(cfg.Control), cancel)),
		Hub: hub,
	}, reg, logger.Logger)

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pruner := cron.New(cron.WithLocation(loc), cron.WithLogger(logging.CronLogger(logger.Component("audit"))))
	if _, err := pruner.AddFunc("@daily", func() {
		n, err := audit.Prune(clk.Now().Add(-cfg.AuditRetention))
		if err != nil {
			logger.Warn("prune audit log", "error", err)
			return
		}
		logger.Info("audit log pruned", "rows", n)
	}); err != nil {
		return fmt.Errorf("schedule audit pruning: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error {
		pruner.Start()
		<-gctx.Done()
		<-pruner.Stop().Done()
		return nil
	})
	g.Go(func() error {
		logger.Info("command API listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("remindbot started",
		"timezone", loc.String(),
		"reminders", st.Count(),
		"check_interval", manager.CheckInterval(),
		"dry_run", cfg.DryRun)
	err = g.Wait()
	logger.Info("remindbot stopped", "error", err)
	return err
}

// openPlatform connects to Discord, or returns the in-memory platform for dry runs.
func openPlatform(cfg *config.Config, s settings.Settings, logger *slog.Logger) (platform.Platform, func(), error) {
	if cfg.DryRun {
		logger.Warn("dry run: messages are logged, not sent")
		return platform.NewMemory(logger), func() {}, nil
	}

	token := s.Token
	if token == "" {
		token = os.Getenv("DISCORD_TOKEN")
	}
	p, err := discord.New(token, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := p.Open(); err != nil {
		return nil, nil, fmt.Errorf("open discord session: %w", err)
	}
	return p, func() {
		if err := p.Close(); err != nil {
			logger.Warn("close discord session", "error", err)
		}
	}, nil
}
