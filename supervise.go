package main

import (
	"context"
	"os"
	"time"

	"remindbot/config"
	"remindbot/control"
	"remindbot/logging"
	"remindbot/settings"
)

// supervise relaunches "remindbot serve" according to the control file.
func supervise(ctx context.Context, cfg *config.Config, configPath string, interactive bool) error {
	logger := logging.New(logging.Config{Level: settings.DefaultLogLevel, Format: cfg.LogFormat})

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	args := []string{exe, "serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	autoRestart := func() bool {
		manager, err := settings.Load(cfg.Files.Settings, logger.Logger)
		if err != nil {
			logger.Warn("settings unreadable, auto restart disabled", "error", err)
			return false
		}
		return manager.Current().AutoRestart
	}

	sup := control.NewSupervisor(control.NewFile(cfg.Control),
		control.ExecRunner(args, cfg.ShutdownTimeout+5*time.Second),
		control.WithSupervisorLogger(logger.Logger),
		control.WithAutoRestart(autoRestart))
	if interactive {
		logger.Info("launcher ready: type r to restart, q to quit")
		go sup.ListenTerminal(os.Stdin)
	}
	return sup.Run(ctx)
}
