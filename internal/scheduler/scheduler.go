package scheduler

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler keeps at most one pending deadline per poll. A fired timer
// removes its own entry, so Cancel after the fact is a harmless no-op.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	logger *zap.Logger
}

// New creates an empty scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		logger: logger,
	}
}

// Arm schedules fn to run once after d, keyed by poll id. Re-arming the same
// poll replaces the pending timer.
func (s *Scheduler) Arm(pollID string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[pollID]; ok {
		t.Stop()
	}
	s.timers[pollID] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, pollID)
		s.mu.Unlock()
		fn()
	})
	s.logger.Debug("deadline armed",
		zap.String("poll_id", pollID),
		zap.Duration("in", d),
	)
}

// Cancel removes the pending deadline for a poll if there is one, reporting
// whether a timer was actually pending.
func (s *Scheduler) Cancel(pollID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[pollID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, pollID)
	return true
}

// Pending returns the number of armed deadlines.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending deadline. Used on server shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
