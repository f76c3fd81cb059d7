package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"camwatch/internal/logger"
)

var (
	// ErrDeviceRead means the device failed to deliver a frame while running.
	ErrDeviceRead = errors.New("capture: device read failed")
	// ErrNoFrame means no frame arrived before the startup deadline.
	ErrNoFrame = errors.New("capture: no frame received")
	// ErrStarted is returned by a second Start.
	ErrStarted = errors.New("capture: already started")
	// ErrStopTimeout means the device read never returned during Stop.
	ErrStopTimeout = errors.New("capture: device read did not return")
)

// DefaultStopGrace bounds each wait for a blocked device read during Stop.
const DefaultStopGrace = 3 * time.Second

// Unit runs the capture goroutine: it reads the device as fast as frames come
// and stores each one into its FrameBuffer.
type Unit struct {
	src Source
	buf *FrameBuffer
	log *logger.Logger
	now func() time.Time

	stopGrace time.Duration

	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	closeErr error

	mu  sync.Mutex
	err error
	seq uint64
}

// NewUnit creates a capture unit reading src into a fresh buffer.
func NewUnit(src Source, log *logger.Logger) *Unit {
	return &Unit{
		src:  src,
		buf:  NewFrameBuffer(),
		log:  log,
		now:  time.Now,
		done: make(chan struct{}),

		stopGrace: DefaultStopGrace,
	}
}

// Buffer exposes the latest-frame buffer.
func (u *Unit) Buffer() *FrameBuffer {
	return u.buf
}

// Start launches the capture goroutine.
func (u *Unit) Start() error {
	if !u.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	go u.run()
	return nil
}

func (u *Unit) run() {
	defer close(u.done)
	for !u.stopping.Load() {
		mat := gocv.NewMat()
		if ok := u.src.Read(&mat); !ok || mat.Empty() {
			mat.Close()
			if u.stopping.Load() {
				return
			}
			u.mu.Lock()
			u.err = errors.Wrapf(ErrDeviceRead, "after %d frames", u.seq)
			u.mu.Unlock()
			u.log.Error("Capture stopped: %v", u.Err())
			return
		}

		u.mu.Lock()
		u.seq++
		seq := u.seq
		u.mu.Unlock()

		u.buf.Store(NewFrame(mat, seq, u.now()))
	}
}

// Read returns a private copy of the latest frame.
func (u *Unit) Read() (*Frame, bool) {
	return u.buf.Read()
}

// WaitFirstFrame blocks until a frame has been stored, the unit dies, the
// timeout passes or ctx ends.
func (u *Unit) WaitFirstFrame(ctx context.Context, timeout time.Duration) error {
	if u.buf.Stored() > 0 {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-u.buf.Updated():
			// put the signal back for the consumer
			select {
			case u.buf.updated <- struct{}{}:
			default:
			}
			return nil
		case <-u.done:
			if u.buf.Stored() > 0 {
				return nil
			}
			if err := u.Err(); err != nil {
				return errors.Wrap(ErrNoFrame, err.Error())
			}
			return ErrNoFrame
		case <-timer.C:
			return errors.Wrapf(ErrNoFrame, "within %v", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Done is closed when the capture goroutine has exited.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}

// Err returns the failure that ended capture, nil on a clean stop.
func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Frames returns how many frames were captured.
func (u *Unit) Frames() uint64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.seq
}

// Stop asks the goroutine to exit, waits for it, then releases the device and
// the buffered frame. A read still blocked after the grace period is released
// by closing the device. Safe to call more than once and before Start.
func (u *Unit) Stop() error {
	u.stopOnce.Do(func() {
		u.stopping.Store(true)
		closed := false
		if u.started.Load() {
			if in, ok := u.src.(Interrupter); ok {
				in.Interrupt()
			}
			if !u.waitDone(u.stopGrace) {
				u.log.Warning("Capture read blocked for %v, closing device", u.stopGrace)
				u.closeErr = u.src.Close()
				closed = true
				if !u.waitDone(u.stopGrace) {
					u.closeErr = errors.Wrapf(ErrStopTimeout, "after %v", 2*u.stopGrace)
					u.log.Error("Capture stop: %v", u.closeErr)
					return
				}
			}
		}
		if !closed {
			u.closeErr = u.src.Close()
		}
		u.buf.Close()
	})
	return u.closeErr
}

func (u *Unit) waitDone(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-u.done:
		return true
	case <-timer.C:
		return false
	}
}
