package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"remindbot/logging"
	"remindbot/metrics"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// Watcher polls the settings file for mtime changes and reloads the Manager.
// Filesystem events on the containing directory trigger an early check.
type Watcher struct {
	manager *Manager
	poll    time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics

	checkMu  sync.Mutex
	cron     *cron.Cron
	fs       *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = logging.OrNop(logger).With("component", "settings.watcher")
	}
}

func WithWatcherMetrics(m *metrics.Metrics) WatcherOption {
	return func(w *Watcher) {
		w.metrics = m
	}
}

func NewWatcher(manager *Manager, poll time.Duration, opts ...WatcherOption) (*Watcher, error) {
	if manager == nil || manager.Path() == "" {
		return nil, fmt.Errorf("settings watcher needs a file-backed manager")
	}
	if poll <= 0 {
		return nil, fmt.Errorf("settings poll interval must be positive")
	}
	w := &Watcher{
		manager: manager,
		poll:    poll,
		log:     logging.Nop(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.Stop()
	return nil
}

// Start schedules the mtime poll and subscribes to directory events. A
// failure to set up fsnotify is logged and polling continues alone.
func (w *Watcher) Start() error {
	w.cron = cron.New(cron.WithLogger(logging.CronLogger(w.log)), cron.WithChain(cron.SkipIfStillRunning(logging.CronLogger(w.log))))
	if _, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.poll), w.Check); err != nil {
		return fmt.Errorf("schedule settings poll: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = fsWatcher.Add(filepath.Dir(w.manager.Path()))
		if err != nil {
			_ = fsWatcher.Close()
		}
	}
	if err != nil {
		w.log.Warn("file events unavailable, relying on polling", "error", err)
	} else {
		w.fs = fsWatcher
		go w.watchLoop()
	}

	w.cron.Start()
	w.log.Info("watching settings", "path", w.manager.Path(), "poll", w.poll)
	return nil
}

// Stop halts polling and event handling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.cron != nil {
			<-w.cron.Stop().Done()
		}
		if w.fs != nil {
			_ = w.fs.Close()
		}
	})
}

// Check reloads the settings when the file's mtime moved since the last read.
func (w *Watcher) Check() {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	if !w.manager.Changed() {
		return
	}
	_, err := w.manager.Reload()
	w.metrics.RecordSettingsReload(err)
}

func (w *Watcher) watchLoop() {
	path := filepath.Clean(w.manager.Path())
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.Check()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("settings watcher error", "error", err)
		}
	}
}
