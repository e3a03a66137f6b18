package sched

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler fires a callback on a fixed interval.
// Schedule supports only the form "@every <duration>" (e.g., "@every 12h").
// Non-overlap: if the previous run of the callback is still in flight,
// the tick is skipped.
type Scheduler struct {
	every    time.Duration
	fn       func()
	quit     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	running  atomic.Bool
}

// ParseEvery parses schedules of the form "@every <duration>".
func ParseEvery(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "@every ") {
		return 0, fmt.Errorf("unsupported schedule: %s (only @every <duration> supported)", expr)
	}
	durStr := strings.TrimSpace(strings.TrimPrefix(expr, "@every "))
	d, err := time.ParseDuration(durStr)
	if err != nil {
		return 0, fmt.Errorf("invalid @every duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("@every duration must be > 0")
	}
	return d, nil
}

func New(spec string, fn func()) (*Scheduler, error) {
	d, err := ParseEvery(spec)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("scheduler requires a callback")
	}
	return &Scheduler{every: d, fn: fn, quit: make(chan struct{})}, nil
}

func (s *Scheduler) Every() time.Duration { return s.every }

// Start launches the tick loop. Call Stop to cancel.
func (s *Scheduler) Start() {
	if s == nil || !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.run()
}

func (s *Scheduler) run() {
	t := time.NewTicker(s.every)
	defer t.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-t.C:
			// attempt to mark running; if already true, skip this tick
			if !s.running.CompareAndSwap(false, true) {
				continue
			}
			// run off the ticker goroutine so a slow callback cannot block ticks
			go func() {
				defer s.running.Store(false)
				s.fn()
			}()
		}
	}
}

// Stop cancels the tick loop. Safe to call multiple times, from
// concurrent goroutines, and from inside the callback itself.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.quit) })
}
