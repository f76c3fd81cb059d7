package capture

import (
	"sync"
)

// FrameBuffer holds the most recent frame. The capture goroutine overwrites it
// and any number of readers take independent copies.
type FrameBuffer struct {
	mu      sync.RWMutex
	frame   *Frame
	stored  uint64
	updated chan struct{}
}

// NewFrameBuffer returns an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{updated: make(chan struct{}, 1)}
}

// Store replaces the held frame, taking ownership of f. The previous frame is
// released after the lock is dropped.
func (b *FrameBuffer) Store(f *Frame) {
	b.mu.Lock()
	old := b.frame
	b.frame = f
	b.stored++
	b.mu.Unlock()

	old.Close()

	select {
	case b.updated <- struct{}{}:
	default:
	}
}

// Read returns a deep copy of the latest frame, or false before the first Store.
func (b *FrameBuffer) Read() (*Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return nil, false
	}
	return b.frame.Clone(), true
}

// Updated signals after a Store; several stores may coalesce into one signal.
func (b *FrameBuffer) Updated() <-chan struct{} {
	return b.updated
}

// Stored counts frames ever stored.
func (b *FrameBuffer) Stored() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stored
}

// Close releases the held frame.
func (b *FrameBuffer) Close() {
	b.mu.Lock()
	old := b.frame
	b.frame = nil
	b.mu.Unlock()
	old.Close()
}
