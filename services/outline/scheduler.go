package outline

import (
	"sync"
	"time"
)

// Default debounce windows.
const (
	// DefaultEditDebounce is the quiescence window after the last edit
	// before a reparse is triggered.
	DefaultEditDebounce = 5 * time.Second

	// DefaultFilterDebounce is the quiescence window for filter-input
	// changes. Filtering never invalidates the AST; it only re-runs the
	// tree manager's filter/sort pass, so its debounce is much shorter.
	DefaultFilterDebounce = 300 * time.Millisecond
)

// SchedulerState is the parse scheduler's state machine state.
type SchedulerState int

const (
	// StateIdle means no edits are outstanding and no parse is running.
	StateIdle SchedulerState = iota

	// StateDebouncing means edits arrived and the quiescence timer is armed.
	StateDebouncing

	// StateReparsing means a background reparse is in flight.
	StateReparsing
)

// String returns the state name for logging.
func (s SchedulerState) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateReparsing:
		return "reparsing"
	default:
		return "idle"
	}
}

// SchedulerConfig configures the scheduler's debounce windows.
type SchedulerConfig struct {
	// EditDebounce is the edit quiescence window. Zero means the default.
	EditDebounce time.Duration

	// FilterDebounce is the filter quiescence window. Zero means the default.
	FilterDebounce time.Duration
}

// DefaultSchedulerConfig returns the production debounce windows.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		EditDebounce:   DefaultEditDebounce,
		FilterDebounce: DefaultFilterDebounce,
	}
}

// Scheduler debounces edit activity and guarantees a single in-flight
// reparse per document.
//
// State machine:
//
//	Idle -> Debouncing        on any edit; (re)starts the quiescence timer
//	Debouncing -> Debouncing  a new edit resets the timer (pure debounce)
//	Debouncing -> Reparsing   timer fires; reparse callback runs on a
//	                          background goroutine
//	Reparsing -> Idle         completion; re-arms Debouncing immediately
//	                          when edits arrived during the parse
//	* -> Idle                 Reset (document switch); timers stopped
//
// The scheduler never blocks the edit-reporting path: NoteEdit only touches
// timers under a mutex, and the reparse callback is invoked on its own
// goroutine.
//
// Thread Safety: all methods are safe for concurrent use.
type Scheduler struct {
	mu    sync.Mutex
	state SchedulerState
	cfg   SchedulerConfig

	editTimer   *time.Timer
	filterTimer *time.Timer

	// epoch invalidates timers armed before a Reset.
	epoch uint64

	// pendingRearm records edit activity observed while Reparsing, so the
	// completion cannot park the scheduler in Idle with unconsumed edits.
	pendingRearm bool

	reparse  func()
	onFilter func()
}

// NewScheduler creates a scheduler. reparse is invoked on a background
// goroutine when the edit quiescence window elapses; onFilter when the
// filter quiescence window elapses. Either callback may be nil.
func NewScheduler(cfg SchedulerConfig, reparse, onFilter func()) *Scheduler {
	if cfg.EditDebounce <= 0 {
		cfg.EditDebounce = DefaultEditDebounce
	}
	if cfg.FilterDebounce <= 0 {
		cfg.FilterDebounce = DefaultFilterDebounce
	}
	return &Scheduler{
		cfg:      cfg,
		reparse:  reparse,
		onFilter: onFilter,
	}
}

// State returns the current state.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NoteEdit records edit activity. In Idle it arms the quiescence timer; in
// Debouncing it resets it; in Reparsing it only flags the activity so the
// completion re-arms the debounce even when the edit landed after the
// reparse unit took its pending-count snapshot.
func (s *Scheduler) NoteEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateReparsing:
		s.pendingRearm = true
		return
	default:
		s.state = StateDebouncing
		s.armEditTimerLocked()
	}
}

// armEditTimerLocked (re)starts the quiescence timer. Caller holds mu.
func (s *Scheduler) armEditTimerLocked() {
	if s.editTimer != nil {
		s.editTimer.Stop()
	}
	epoch := s.epoch
	s.editTimer = time.AfterFunc(s.cfg.EditDebounce, func() {
		s.fireEditTimer(epoch)
	})
}

// fireEditTimer transitions Debouncing -> Reparsing when the timer that
// fired is still current.
func (s *Scheduler) fireEditTimer(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != StateDebouncing {
		s.mu.Unlock()
		return
	}
	s.state = StateReparsing
	cb := s.reparse
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// ReparseDone transitions Reparsing -> Idle. When rearm is true (edits
// arrived during the parse) the Debouncing state is re-armed immediately.
func (s *Scheduler) ReparseDone(rearm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReparsing {
		return
	}
	rearm = rearm || s.pendingRearm
	s.pendingRearm = false
	if rearm {
		s.state = StateDebouncing
		s.armEditTimerLocked()
		return
	}
	s.state = StateIdle
}

// NoteFilterChange debounces filter-input activity, independent of the edit
// pipeline.
func (s *Scheduler) NoteFilterChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filterTimer != nil {
		s.filterTimer.Stop()
	}
	epoch := s.epoch
	s.filterTimer = time.AfterFunc(s.cfg.FilterDebounce, func() {
		s.fireFilterTimer(epoch)
	})
}

func (s *Scheduler) fireFilterTimer(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	cb := s.onFilter
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Reset forces the scheduler to Idle immediately: pending timers are
// invalidated and an in-flight reparse's eventual ReparseDone becomes a
// no-op only insofar as the session discards its stale result. Used on
// document switch.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	if s.editTimer != nil {
		s.editTimer.Stop()
		s.editTimer = nil
	}
	if s.filterTimer != nil {
		s.filterTimer.Stop()
		s.filterTimer = nil
	}
	s.pendingRearm = false
	s.state = StateIdle
}
