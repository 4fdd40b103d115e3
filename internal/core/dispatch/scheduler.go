package dispatch

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc stops a scheduled callback. It returns false if the callback
// already ran or was already cancelled.
type CancelFunc func() bool

// Scheduler defers single-shot callbacks without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) CancelFunc
}

// TimerScheduler schedules with time.AfterFunc.
type TimerScheduler struct{}

// AfterFunc implements Scheduler.
func (TimerScheduler) AfterFunc(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// ManualScheduler fires callbacks only when Advance moves its clock.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*manualTimer
}

type manualTimer struct {
	id int
	at time.Time
	fn func()
}

// NewManualScheduler creates a ManualScheduler starting at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start, timers: make(map[int]*manualTimer)}
}

// Now returns the scheduler's clock.
func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// AfterFunc implements Scheduler.
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := s.seq
	s.timers[id] = &manualTimer{id: id, at: s.now.Add(d), fn: fn}

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.timers[id]; !ok {
			return false
		}
		delete(s.timers, id)
		return true
	}
}

// Pending returns the number of scheduled callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Advance moves the clock forward and runs every due callback in order.
// Callbacks run on the caller's goroutine without the lock held.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	now := s.now
	due := make([]*manualTimer, 0)
	for id, t := range s.timers {
		if !t.at.After(now) {
			due = append(due, t)
			delete(s.timers, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}
		return due[i].at.Before(due[j].at)
	})
	for _, t := range due {
		t.fn()
	}
}
