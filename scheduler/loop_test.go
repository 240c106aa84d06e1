package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindbot/clock"
	"remindbot/delivery"
	"remindbot/models"
	"remindbot/platform"
	"remindbot/settings"
	"remindbot/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

type delivered struct {
	id     string
	missed bool
}

// recordingDeliverer wraps a real Deliverer and remembers call order.
type recordingDeliverer struct {
	next Deliverer

	mu    sync.Mutex
	calls []delivered
}

func (d *recordingDeliverer) Deliver(ctx context.Context, r models.Reminder, missed bool) models.DeliveryOutcome {
	d.mu.Lock()
	d.calls = append(d.calls, delivered{id: r.ID, missed: missed})
	d.mu.Unlock()
	return d.next.Deliver(ctx, r, missed)
}

func (d *recordingDeliverer) Calls() []delivered {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivered(nil), d.calls...)
}

type fixture struct {
	clock     *clock.Fake
	store     *store.Store
	platform  *platform.Memory
	deliverer *recordingDeliverer
	loop      *Loop
}

func newFixture(t *testing.T, path string) *fixture {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "reminders.json")
	}
	clk := clock.NewFake(t0)
	s, err := store.New(path, clk, nil)
	require.NoError(t, err)

	mem := platform.NewMemory(nil)
	mem.AddChannel("100", models.ChannelText)
	rec := &recordingDeliverer{next: delivery.New(mem, clk, nil)}
	interval := settings.Static(settings.Settings{CheckIntervalSeconds: 60})

	return &fixture{
		clock:     clk,
		store:     s,
		platform:  mem,
		deliverer: rec,
		loop:      NewLoop(s, rec, clk, interval),
	}
}

func (f *fixture) add(t *testing.T, req models.ReminderRequest) *models.Reminder {
	t.Helper()
	if req.OwnerUserID == "" {
		req.OwnerUserID = "42"
	}
	if req.GuildID == "" {
		req.GuildID = "7"
	}
	if req.Message == "" {
		req.Message = "standup"
	}
	r, err := f.store.AddReminder(req)
	require.NoError(t, err)
	return r
}

// start runs the loop in the background and waits for its first sleep.
func (f *fixture) start(t *testing.T) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()
	f.waitSleeping(t)
	t.Cleanup(cancel)
	return cancel, done
}

func (f *fixture) waitSleeping(t *testing.T) {
	t.Helper()
	select {
	case <-f.clock.Armed:
	case <-time.After(5 * time.Second):
		t.Fatal("loop never went to sleep")
	}
}

func TestStandupReminderDeliveredByDM(t *testing.T) {
	f := newFixture(t, "")
	f.add(t, models.ReminderRequest{DueAt: t0.Add(time.Minute), DeliveryMode: models.DeliveryDM})

	cancel, done := f.start(t)
	assert.Empty(t, f.platform.Sent())
	assert.Equal(t, StateSleeping, f.loop.State())

	f.clock.Advance(61 * time.Second)
	f.waitSleeping(t)

	assert.Equal(t, 0, f.store.Count())
	sent := f.platform.SentTo(platform.DMChannelID("42"))
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "standup")
	assert.NotContains(t, sent[0], "Missed")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, f.loop.State())
}

func TestRecoveryRunsBeforeFirstTick(t *testing.T) {
	f := newFixture(t, "")
	past := f.add(t, models.ReminderRequest{DueAt: t0.Add(-2 * time.Hour)})
	future := f.add(t, models.ReminderRequest{DueAt: t0.Add(30 * time.Second)})

	f.start(t)
	calls := f.deliverer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, delivered{id: past.ID, missed: true}, calls[0])

	sent := f.platform.SentTo(platform.DMChannelID("42"))
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Missed reminder")

	f.clock.Advance(time.Minute)
	f.waitSleeping(t)
	calls = f.deliverer.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, delivered{id: future.ID, missed: false}, calls[1])
}

func TestCrashBetweenDeliverAndRemoveRedeliversAsMissed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	first := newFixture(t, path)
	r := first.add(t, models.ReminderRequest{DueAt: t0})

	// The first process delivers but dies before removing.
	first.deliverer.Deliver(context.Background(), *r, false)
	require.Len(t, first.platform.Sent(), 1)

	restarted := newFixture(t, path)
	require.Equal(t, 1, restarted.store.Count())

	n := restarted.loop.Recover(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, []delivered{{id: r.ID, missed: true}}, restarted.deliverer.Calls())
	assert.Equal(t, 0, restarted.store.Count())
}

func TestTickDueBoundaryInclusive(t *testing.T) {
	f := newFixture(t, "")
	f.add(t, models.ReminderRequest{DueAt: t0.Add(time.Minute)})

	f.clock.Advance(time.Minute - time.Nanosecond)
	assert.Equal(t, 0, f.loop.Tick(context.Background()))

	f.clock.Advance(time.Nanosecond)
	assert.Equal(t, 1, f.loop.Tick(context.Background()))
	assert.Equal(t, StateIdle, f.loop.State())
}

func TestBothModePartialFailureStillRemoves(t *testing.T) {
	f := newFixture(t, "")
	f.platform.FailDM("42", platform.ErrForbidden)
	f.add(t, models.ReminderRequest{DueAt: t0, DeliveryMode: models.DeliveryBoth, ChannelID: "100"})

	var outcomes []models.DeliveryOutcome
	f.loop = NewLoop(f.store, f.deliverer, f.clock, settings.Static(settings.Settings{}),
		WithObserver(func(_ models.Reminder, o models.DeliveryOutcome) { outcomes = append(outcomes, o) }))

	assert.Equal(t, 1, f.loop.Tick(context.Background()))
	require.Len(t, outcomes, 1)
	assert.Equal(t, 1, outcomes[0].Succeeded())
	assert.Equal(t, models.FailureForbidden, outcomes[0].Attempts[0].Failure)
	assert.Len(t, f.platform.SentTo("100"), 1)
	assert.Equal(t, 0, f.store.Count())
}

func TestFailedDeliveryIsNotRetried(t *testing.T) {
	f := newFixture(t, "")
	f.platform.FailDM("42", platform.ErrForbidden)
	f.add(t, models.ReminderRequest{DueAt: t0})

	assert.Equal(t, 1, f.loop.Tick(context.Background()))
	assert.Equal(t, 0, f.store.Count())
	assert.Equal(t, 0, f.loop.Tick(context.Background()))
	assert.Len(t, f.deliverer.Calls(), 1)
}

func TestIntervalIsReadEveryTick(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m, err := settings.Load(path, nil)
	require.NoError(t, err)

	f := newFixture(t, "")
	f.loop = NewLoop(f.store, f.deliverer, f.clock, m)
	f.add(t, models.ReminderRequest{DueAt: t0.Add(10 * time.Second)})
	f.start(t)

	require.NoError(t, writeFile(path, `{"check_interval_seconds": 5}`))
	_, err = m.Reload()
	require.NoError(t, err)

	// The first sleep was armed with 60s; after it fires the next one uses 5s.
	f.clock.Advance(60 * time.Second)
	f.waitSleeping(t)
	require.Len(t, f.deliverer.Calls(), 1)

	f.add(t, models.ReminderRequest{DueAt: f.clock.Now().Add(time.Second)})
	f.clock.Advance(5 * time.Second)
	f.waitSleeping(t)
	assert.Len(t, f.deliverer.Calls(), 2)
}

type blockingDeliverer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingDeliverer) Deliver(ctx context.Context, r models.Reminder, missed bool) models.DeliveryOutcome {
	close(b.started)
	<-b.release
	return models.DeliveryOutcome{ReminderID: r.ID, Missed: missed, Attempts: []models.Attempt{{Destination: models.DestinationDM}}}
}

func TestCancellationFinishesInFlightDelivery(t *testing.T) {
	f := newFixture(t, "")
	f.add(t, models.ReminderRequest{DueAt: t0})
	f.add(t, models.ReminderRequest{DueAt: t0})

	b := &blockingDeliverer{started: make(chan struct{}), release: make(chan struct{})}
	loop := NewLoop(f.store, b, f.clock, settings.Static(settings.Settings{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-b.started
	assert.Equal(t, StateDelivering, loop.State())
	cancel()
	close(b.release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, 1, f.store.Count(), "second reminder must wait for the next run")
	assert.Equal(t, StateStopped, loop.State())
}

func TestRunTwiceFails(t *testing.T) {
	f := newFixture(t, "")
	f.start(t)
	assert.ErrorIs(t, f.loop.Run(context.Background()), ErrAlreadyRunning)
}
