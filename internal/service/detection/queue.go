// Package detection runs object detection off the display loop.
package detection

import (
	"sync"

	"camwatch/internal/service/capture"
)

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Submitted uint64 `json:"submitted"`
	Evicted   uint64 `json:"evicted"`
	Taken     uint64 `json:"taken"`
}

// Queue is a one-slot mailbox between the display loop and the worker. A
// submit never blocks: it replaces a waiting frame, which is released.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	slot   *capture.Frame
	closed bool
	stats  QueueStats
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Submit hands f to the queue, which now owns it. It reports whether an older
// frame was evicted. After Close the frame is released and dropped.
func (q *Queue) Submit(f *capture.Frame) (evicted bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.Close()
		return false
	}
	old := q.slot
	q.slot = f
	q.stats.Submitted++
	if old != nil {
		q.stats.Evicted++
	}
	q.mu.Unlock()

	q.cond.Signal()
	if old != nil {
		old.Close()
		return true
	}
	return false
}

// Take blocks until a frame is waiting or the queue is closed. The caller
// owns the returned frame. It returns false once closed.
func (q *Queue) Take() (*capture.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.slot == nil && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	f := q.slot
	q.slot = nil
	q.stats.Taken++
	return f, true
}

// Len is 0 or 1.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.slot == nil {
		return 0
	}
	return 1
}

// Close wakes the worker, releases any waiting frame and rejects further submits.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	old := q.slot
	q.slot = nil
	q.mu.Unlock()

	q.cond.Broadcast()
	old.Close()
}

// Stats returns the counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
