// Package clock supplies the current time in the engine's configured zone and
// timers that tests can drive by hand.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source used for scheduling and due checks.
type Clock interface {
	Now() time.Time
	Location() *time.Location
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer the scheduler needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Real reads the system clock and reports times in loc.
type Real struct {
	loc *time.Location
}

// NewReal returns a system clock for loc. A nil loc means UTC.
func NewReal(loc *time.Location) *Real {
	if loc == nil {
		loc = time.UTC
	}
	return &Real{loc: loc}
}

func (r *Real) Now() time.Time           { return time.Now().In(r.loc) }
func (r *Real) Location() *time.Location { return r.loc }

func (r *Real) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.t.C }
func (t *realTimer) Stop() bool          { return t.t.Stop() }

// LoadLocation resolves a zone name, treating an empty name as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Fake is a manually advanced clock. Timers fire when Advance moves the clock
// to or past their deadline.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	// Armed is signalled every time a timer is created, so tests can wait for
	// the code under test to go to sleep before advancing.
	Armed chan struct{}
}

// NewFake returns a Fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t, Armed: make(chan struct{}, 64)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Location() *time.Location {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.Location()
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	t := &fakeTimer{clock: f, deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.fired = true
		t.ch <- f.now
	} else {
		f.timers = append(f.timers, t)
	}
	f.mu.Unlock()

	select {
	case f.Armed <- struct{}{}:
	default:
	}
	return t
}

// Advance moves the clock forward by d and fires every timer that became due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	sort.Slice(f.timers, func(i, j int) bool { return f.timers[i].deadline.Before(f.timers[j].deadline) })
	pending := f.timers[:0]
	for _, t := range f.timers {
		if !t.deadline.After(now) {
			t.fired = true
			t.ch <- now
			continue
		}
		pending = append(pending, t)
	}
	f.timers = pending
	f.mu.Unlock()
}

// Set jumps the clock to t without firing timers scheduled after it.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	d := t.Sub(f.now)
	f.mu.Unlock()
	f.Advance(d)
}

// Pending returns the number of timers that have not fired or been stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
	fired    bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired {
		return false
	}
	for i, other := range t.clock.timers {
		if other == t {
			t.clock.timers = append(t.clock.timers[:i], t.clock.timers[i+1:]...)
			return true
		}
	}
	return false
}
