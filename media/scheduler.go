package media

import (
	"sync"
	"time"
)

// Handle identifies a scheduled callback so it can be cancelled.
type Handle uint64

// Scheduler abstracts continuous render-loop scheduling. Production
// implementations bind ScheduleNext to a timer or display-refresh primitive;
// tests bind it to a manually-stepped fake for determinism.
type Scheduler interface {
	// ScheduleNext arranges for fn to run once on a future tick.
	ScheduleNext(fn func()) Handle

	// Cancel prevents a pending callback from running. Cancelling a handle
	// that already fired is a no-op.
	Cancel(handle Handle)
}

// TickerScheduler runs callbacks after a fixed interval, approximating a
// display-refresh cadence with a timer.
type TickerScheduler struct {
	interval time.Duration
	mu       sync.Mutex
	nextID   Handle
	pending  map[Handle]*time.Timer
}

// NewTickerScheduler creates a scheduler firing after interval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = 16 * time.Millisecond // ~60 ticks per second
	}
	return &TickerScheduler{
		interval: interval,
		nextID:   1,
		pending:  make(map[Handle]*time.Timer),
	}
}

// ScheduleNext runs fn once after the scheduler's interval.
func (s *TickerScheduler) ScheduleNext(fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.pending[id] = time.AfterFunc(s.interval, func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		fn()
	})
	return id
}

// Cancel stops a pending callback.
func (s *TickerScheduler) Cancel(handle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.pending[handle]; ok {
		timer.Stop()
		delete(s.pending, handle)
	}
}

// ManualScheduler queues callbacks until Step is called, giving tests full
// control over loop cadence.
type ManualScheduler struct {
	mu      sync.Mutex
	nextID  Handle
	order   []Handle
	pending map[Handle]func()
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		nextID:  1,
		pending: make(map[Handle]func()),
	}
}

// ScheduleNext queues fn for the next Step.
func (s *ManualScheduler) ScheduleNext(fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.order = append(s.order, id)
	s.pending[id] = fn
	return id
}

// Cancel removes a queued callback.
func (s *ManualScheduler) Cancel(handle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, handle)
}

// Step runs every callback queued before the call, in schedule order, and
// reports how many ran. Callbacks scheduled during Step wait for the next one.
func (s *ManualScheduler) Step() int {
	s.mu.Lock()
	order := s.order
	pending := s.pending
	s.order = nil
	s.pending = make(map[Handle]func())
	s.mu.Unlock()

	ran := 0
	for _, id := range order {
		if fn, ok := pending[id]; ok {
			fn()
			ran++
		}
	}
	return ran
}

// PendingCount returns the number of queued callbacks.
func (s *ManualScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
