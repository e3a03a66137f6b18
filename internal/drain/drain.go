package drain

import (
	"context"
	"sync"
	"time"

	"github.com/loykin/handover/internal/metrics"
)

// Coordinator counts outstanding units of work (typically client
// connections) and lets the owning process block until all of them have
// finished before it exits. It never terminates a unit of work itself;
// releasing a Handle is the only way the count goes down.
type Coordinator struct {
	mu        sync.Mutex
	active    int
	requested bool
	reqCh     chan struct{} // closed once when drain is requested
	zeroCh    chan struct{} // closed once when active hits zero after a request
	zeroDone  bool
	started   time.Time
}

// Signal is an advisory drain notification derived from a Handle.
// It is closed exactly once, the moment drain is requested. Holders
// decide for themselves what winding down means; nothing is cancelled
// on their behalf.
type Signal <-chan struct{}

// Handle represents one live unit of outstanding work.
type Handle struct {
	c    *Coordinator
	once sync.Once
}

func New() *Coordinator {
	return &Coordinator{
		reqCh:  make(chan struct{}),
		zeroCh: make(chan struct{}),
	}
}

// Acquire registers one unit of outstanding work and returns its Handle.
// Acquire remains valid after drain has been requested; late units simply
// extend the wait.
func (c *Coordinator) Acquire() *Handle {
	c.mu.Lock()
	c.active++
	n := c.active
	c.mu.Unlock()
	metrics.SetActiveHandles(n)
	return &Handle{c: c}
}

// Active returns the number of outstanding handles.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Requested reports whether drain has been requested.
func (c *Coordinator) Requested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// Drain requests drain (resolving every Signal) and blocks until the
// outstanding count reaches zero or ctx is done. There is no default
// timeout: a persistently connected client delays process exit until the
// caller's ctx says otherwise.
func (c *Coordinator) Drain(ctx context.Context) error {
	c.mu.Lock()
	if !c.requested {
		c.requested = true
		c.started = time.Now()
		close(c.reqCh)
		if c.active == 0 && !c.zeroDone {
			c.zeroDone = true
			close(c.zeroCh)
		}
	}
	c.mu.Unlock()

	select {
	case <-c.zeroCh:
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		metrics.ObserveDrainDuration(time.Since(started).Seconds())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release marks the unit of work as finished. Safe to call more than
// once; only the first call decrements the count.
func (h *Handle) Release() {
	h.once.Do(func() {
		c := h.c
		c.mu.Lock()
		c.active--
		n := c.active
		if c.requested && c.active == 0 && !c.zeroDone {
			c.zeroDone = true
			close(c.zeroCh)
		}
		c.mu.Unlock()
		metrics.SetActiveHandles(n)
	})
}

// Signal returns the advisory drain notification for this handle's
// coordinator. Receiving from it succeeds once drain has been requested.
func (h *Handle) Signal() Signal {
	return Signal(h.c.reqCh)
}
