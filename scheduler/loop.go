// Package scheduler runs the polling loop that delivers due reminders.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"remindbot/clock"
	"remindbot/logging"
	"remindbot/metrics"
	"remindbot/models"
)

// State is the loop's current phase.
type State int

const (
	StateIdle State = iota
	StatePolling
	StateDelivering
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateDelivering:
		return "delivering"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

var ErrAlreadyRunning = errors.New("scheduler already running")

// Store is the part of the reminder store the loop uses.
type Store interface {
	DueReminders(now time.Time) ([]models.Reminder, error)
	MarkInFlight(id string) bool
	ClearInFlight(id string)
	RemoveReminder(id string) (bool, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, r models.Reminder, missed bool) models.DeliveryOutcome
}

// IntervalSource supplies the poll interval; it is read before every sleep.
type IntervalSource interface {
	CheckInterval() time.Duration
}

// Observer is told about every processed reminder after it was removed.
type Observer func(r models.Reminder, outcome models.DeliveryOutcome)

type Option func(*Loop)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.log = logging.OrNop(logger).With("component", "scheduler")
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

func WithObserver(o Observer) Option {
	return func(l *Loop) {
		l.observers = append(l.observers, o)
	}
}

type Loop struct {
	store     Store
	deliverer Deliverer
	clock     clock.Clock
	interval  IntervalSource
	log       *slog.Logger
	metrics   *metrics.Metrics
	observers []Observer

	mu      sync.Mutex
	state   State
	running bool
}

func NewLoop(store Store, deliverer Deliverer, clk clock.Clock, interval IntervalSource, opts ...Option) *Loop {
	l := &Loop{
		store:     store,
		deliverer: deliverer,
		clock:     clk,
		interval:  interval,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run performs the recovery pass, then polls until ctx is cancelled. A
// delivery in progress when ctx ends is completed and its reminder removed
// before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.state = StateStopped
		l.mu.Unlock()
		l.log.Info("scheduler stopped")
	}()

	l.Recover(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		l.tick(ctx)

		interval := l.interval.CheckInterval()
		l.setState(StateSleeping)
		timer := l.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C():
		}
	}
}

// Recover delivers every reminder that fell due while the engine was down,
// marked as missed. It returns the number processed.
func (l *Loop) Recover(ctx context.Context) int {
	now := l.clock.Now()
	due, err := l.store.DueReminders(now)
	if err != nil {
		l.log.Error("recovery scan failed", "error", err)
		return 0
	}
	if len(due) > 0 {
		l.log.Info("recovering missed reminders", "count", len(due))
	}
	n := l.processAll(ctx, due, true)
	l.settle()
	return n
}

// Tick runs a single poll and returns the number of reminders processed.
func (l *Loop) Tick(ctx context.Context) int {
	n := l.tick(ctx)
	l.settle()
	return n
}

func (l *Loop) tick(ctx context.Context) int {
	started := time.Now()
	defer func() { l.metrics.ObserveTick(time.Since(started)) }()

	l.setState(StatePolling)
	due, err := l.store.DueReminders(l.clock.Now())
	if err != nil {
		l.log.Error("due scan failed", "error", err)
		return 0
	}
	return l.processAll(ctx, due, false)
}

// settle returns a loop that is not running to idle after a manual call.
func (l *Loop) settle() {
	l.mu.Lock()
	if !l.running {
		l.state = StateIdle
	}
	l.mu.Unlock()
}

func (l *Loop) processAll(ctx context.Context, due []models.Reminder, missed bool) int {
	n := 0
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		if l.process(ctx, r, missed) {
			n++
		}
	}
	return n
}

// process delivers r and removes it afterwards. Removal happens strictly
// after the attempt, so a crash in between redelivers on the next start.
func (l *Loop) process(ctx context.Context, r models.Reminder, missed bool) bool {
	if !l.store.MarkInFlight(r.ID) {
		return false
	}
	defer l.store.ClearInFlight(r.ID)

	l.setState(StateDelivering)
	outcome := l.deliverer.Deliver(context.WithoutCancel(ctx), r, missed)

	if _, err := l.store.RemoveReminder(r.ID); err != nil {
		l.log.Error("failed to remove delivered reminder, it will be sent again",
			"reminder_id", r.ID, "error", err)
		return false
	}

	l.metrics.RecordOutcome(outcome)
	if outcome.Failed() {
		l.log.Warn("reminder dropped after failed delivery", "reminder_id", r.ID, "missed", missed)
	}
	for _, o := range l.observers {
		o(r, outcome)
	}
	return true
}
