// Package scheduler runs keyed one-shot and repeating jobs on a swappable clock.
//
// Each key holds at most one job. Scheduling under a key that is already in
// use replaces the previous job, and a replaced or cancelled job never runs
// again, even if its timer had already expired.
package scheduler

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	gen    uint64
	timer  clockwork.Timer
	ticker clockwork.Ticker
	done   chan struct{}
}

func (e *entry) stop() {
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.ticker != nil {
		e.ticker.Stop()
	}
	if e.done != nil {
		close(e.done)
	}
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.Mutex
	gen     uint64
	entries map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. A nil clock means the real clock.
func New(clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:   clock,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Clock returns the clock jobs are measured against.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// ScheduleOnce runs fn once after delay, replacing any job under key.
func (s *Scheduler) ScheduleOnce(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.cancelLocked(key)
	s.gen++
	gen := s.gen
	e := &entry{gen: gen}
	e.timer = s.clock.AfterFunc(delay, func() {
		if !s.claim(key, gen) {
			return
		}
		defer s.wg.Done()
		s.run(key, fn)
	})
	s.entries[key] = e
}

// claim removes the one-shot entry if it is still current and registers the
// run with the wait group.
func (s *Scheduler) claim(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.gen != gen || s.stopped {
		return false
	}
	delete(s.entries, key)
	s.wg.Add(1)
	return true
}

// ScheduleRepeating runs fn every interval, replacing any job under key.
// Runs of the same job never overlap; ticks that arrive while fn is still
// running are dropped.
func (s *Scheduler) ScheduleRepeating(key string, interval time.Duration, fn func()) {
	if interval <= 0 {
		s.logger.Warn("ignoring repeating job with non-positive interval", "key", key, "interval", interval)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.cancelLocked(key)
	s.gen++
	e := &entry{
		gen:    s.gen,
		ticker: s.clock.NewTicker(interval),
		done:   make(chan struct{}),
	}
	s.entries[key] = e

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-e.done:
				return
			case <-e.ticker.Chan():
				select {
				case <-e.done:
					return
				default:
				}
				s.run(key, fn)
			}
		}
	}()
}

func (s *Scheduler) run(key string, fn func()) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("scheduled job panic",
				"key", key,
				"error", fmt.Errorf("%v", recovered),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// Cancel removes the job under key. It reports whether a job was pending.
// A run that already started is not interrupted.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

func (s *Scheduler) cancelLocked(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	e.stop()
	return true
}

// Pending reports whether a job is scheduled under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Keys returns the keys with a scheduled job.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Stop cancels every job and waits for running ones to return.
// It must not be called from inside a job.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key := range s.entries {
		s.cancelLocked(key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}
