// Package ralph drives the recurring maintenance loop: a timer-based
// scheduler that survives slow cycles and pauses, and an executor that runs
// the per-cycle components against the live symbol.
package ralph

// #region imports
import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/grounded-agent/internal/logging"
)

// #endregion

// #region clock

// Clock abstracts time so loop tests run against a fake.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the cancellable handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is the wall clock.
func RealClock() Clock { return realClock{} }

// #endregion clock

// #region events

// State of the scheduler lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StatePaused    State = "paused"
)

// TriggerKind distinguishes timer cycles from out-of-band ones.
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
	TriggerEvent     TriggerKind = "event"
)

// Trigger describes why a cycle ran.
type Trigger struct {
	Kind  TriggerKind
	Name  string // set for event triggers
	Cycle int
}

// EventType tags scheduler lifecycle notifications. For one cycle the order
// is scheduled, triggered, then completed or error.
type EventType string

const (
	EventScheduled EventType = "scheduled"
	EventTriggered EventType = "triggered"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
)

// Event is one lifecycle notification.
type Event struct {
	Type  EventType
	Cycle int
	At    time.Time
	Err   string
}

// #endregion events

// #region scheduler

// Callback runs one cycle. Errors and panics are absorbed: the loop keeps
// scheduling either way.
type Callback func(ctx context.Context, trig Trigger) error

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	State        State
	CycleCount   int
	MissedCycles int
	ErrorCount   int
	LastAt       time.Time
	NextAt       time.Time
}

// Scheduler owns the cycle timer.
type Scheduler struct {
	clock    Clock
	interval time.Duration
	onEvent  func(Event)
	log      *zap.Logger

	mu        sync.Mutex
	state     State
	cycles    int
	missed    int
	errors    int
	timer     Timer
	nextAt    time.Time
	lastStart time.Time
	ctx       context.Context
	cb        Callback
}

// maxFirstDelay caps the wait before the first cycle so a long interval
// still produces an early baseline run.
const maxFirstDelay = 5 * time.Second

// NewScheduler builds an idle scheduler. A nil clock selects the wall clock.
func NewScheduler(interval time.Duration, clock Clock, onEvent func(Event)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("cycle interval must be positive, got %v", interval)
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		onEvent:  onEvent,
		log:      logging.For(logging.CategoryRalph),
		state:    StateIdle,
	}, nil
}

func (s *Scheduler) emit(e Event) {
	if s.onEvent != nil {
		s.onEvent(e)
	}
}

// Start arms the timer. The first cycle fires after the interval, capped so
// it never waits longer than a few seconds.
func (s *Scheduler) Start(ctx context.Context, cb Callback) error {
	if cb == nil {
		return fmt.Errorf("cycle callback required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("scheduler already started (state %s)", s.state)
	}
	s.ctx = ctx
	s.cb = cb

	first := s.interval
	if first > maxFirstDelay {
		first = maxFirstDelay
	}
	s.scheduleLocked(first)
	return nil
}

// scheduleLocked arms the timer and transitions to scheduled.
func (s *Scheduler) scheduleLocked(d time.Duration) {
	s.state = StateScheduled
	s.nextAt = s.clock.Now().Add(d)
	s.timer = s.clock.AfterFunc(d, s.fire)
	s.emit(Event{Type: EventScheduled, Cycle: s.cycles + 1, At: s.nextAt})
}

// fire runs one timer cycle and rearms.
func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.state != StateScheduled {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.cycles++
	trig := Trigger{Kind: TriggerScheduled, Cycle: s.cycles}
	s.lastStart = s.clock.Now()
	s.emit(Event{Type: EventTriggered, Cycle: s.cycles, At: s.lastStart})
	ctx, cb := s.ctx, s.cb
	s.mu.Unlock()

	err := runGuarded(ctx, cb, trig)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors++
		s.log.Warn("cycle failed", zap.Int("cycle", trig.Cycle), zap.Error(err))
		s.emit(Event{Type: EventError, Cycle: trig.Cycle, At: s.clock.Now(), Err: err.Error()})
	} else {
		s.emit(Event{Type: EventCompleted, Cycle: trig.Cycle, At: s.clock.Now()})
	}
	if s.state != StateRunning {
		return // paused or stopped mid-cycle; do not rearm
	}

	// Rearm relative to the cycle start; a cycle that overran its slot gets
	// a short catch-up delay instead of firing immediately.
	next := s.lastStart.Add(s.interval)
	now := s.clock.Now()
	delay := next.Sub(now)
	if delay <= 0 {
		delay = time.Second
	}
	s.scheduleLocked(delay)
}

// runGuarded converts callback panics into errors.
func runGuarded(ctx context.Context, cb Callback, trig Trigger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return cb(ctx, trig)
}

// Pause cancels the pending timer but keeps every counter.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle || s.state == StatePaused {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StatePaused
	s.emit(Event{Type: EventPaused, Cycle: s.cycles, At: s.clock.Now()})
}

// Resume rearms the timer. Cycles whose slots elapsed entirely while paused
// are counted as missed, not replayed.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return fmt.Errorf("scheduler not paused (state %s)", s.state)
	}
	now := s.clock.Now()
	s.emit(Event{Type: EventResumed, Cycle: s.cycles, At: now})
	if overdue := now.Sub(s.nextAt); overdue > 0 {
		missed := int(overdue / s.interval)
		s.missed += missed
		if missed > 0 {
			s.log.Info("skipping missed cycles", zap.Int("missed", missed))
		}
		s.scheduleLocked(time.Second) // catch-up cycle shortly
		return nil
	}
	s.scheduleLocked(s.nextAt.Sub(now))
	return nil
}

// TriggerManual runs one out-of-band cycle synchronously. The timer is left
// alone.
func (s *Scheduler) TriggerManual(ctx context.Context) error {
	return s.triggerOutOfBand(ctx, Trigger{Kind: TriggerManual})
}

// TriggerOnEvent runs one out-of-band cycle in response to a named
// condition (alert escalation, operator request).
func (s *Scheduler) TriggerOnEvent(ctx context.Context, name string) error {
	return s.triggerOutOfBand(ctx, Trigger{Kind: TriggerEvent, Name: name})
}

func (s *Scheduler) triggerOutOfBand(ctx context.Context, trig Trigger) error {
	s.mu.Lock()
	if s.cb == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}
	s.cycles++
	trig.Cycle = s.cycles
	s.emit(Event{Type: EventTriggered, Cycle: trig.Cycle, At: s.clock.Now()})
	cb := s.cb
	s.mu.Unlock()

	err := runGuarded(ctx, cb, trig)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.errors++
		s.emit(Event{Type: EventError, Cycle: trig.Cycle, At: s.clock.Now(), Err: err.Error()})
		return err
	}
	s.emit(Event{Type: EventCompleted, Cycle: trig.Cycle, At: s.clock.Now()})
	return nil
}

// Stop cancels the timer and returns to idle. Counters survive for
// inspection until the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = StateIdle
	s.cb = nil
}

// Stats snapshots the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		State:        s.state,
		CycleCount:   s.cycles,
		MissedCycles: s.missed,
		ErrorCount:   s.errors,
		LastAt:       s.lastStart,
		NextAt:       s.nextAt,
	}
}

// #endregion scheduler
