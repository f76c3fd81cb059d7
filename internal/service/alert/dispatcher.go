package alert

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"camwatch/internal/logger"
)

// DefaultTaskTimeout bounds a single side effect.
const DefaultTaskTimeout = 30 * time.Second

// DispatcherStats counts finished tasks.
type DispatcherStats struct {
	Started  uint64 `json:"started"`
	Failed   uint64 `json:"failed"`
	Panicked uint64 `json:"panicked"`
	Running  int32  `json:"running"`
}

// Dispatcher runs fire-and-forget side effects. Failures are logged and
// never reach the caller.
type Dispatcher struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup

	started  atomic.Uint64
	failed   atomic.Uint64
	panicked atomic.Uint64
	running  atomic.Int32
}

// NewDispatcher creates a dispatcher whose tasks are cancelled when ctx is.
func NewDispatcher(ctx context.Context, timeout time.Duration, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Dispatcher{ctx: ctx, cancel: cancel, timeout: timeout, log: log}
}

// Go starts fn in its own goroutine and returns immediately.
func (d *Dispatcher) Go(name string, fn func(ctx context.Context) error) {
	d.started.Add(1)
	d.running.Add(1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.running.Add(-1)
		if err := d.run(fn); err != nil {
			d.failed.Add(1)
			d.log.Warning("%s task failed: %v", name, err)
		}
	}()
}

func (d *Dispatcher) run(fn func(ctx context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Wait blocks until all tasks finish or timeout passes, then cancels what is
// left. It reports whether every task finished in time.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	defer d.cancel()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		d.log.Warning("%d alert tasks still running after %v", d.running.Load(), timeout)
		return false
	}
}

// Stats returns task counters.
func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Started:  d.started.Load(),
		Failed:   d.failed.Load(),
		Panicked: d.panicked.Load(),
		Running:  d.running.Load(),
	}
}
