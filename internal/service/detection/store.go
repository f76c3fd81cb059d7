package detection

import (
	"sync/atomic"

	"camwatch/internal/model"
)

// ResultStore publishes the latest detection result. Readers always see a
// complete result and never block the writer.
type ResultStore struct {
	latest atomic.Pointer[model.DetectionResult]
	subs   atomic.Pointer[[]chan *model.DetectionResult]
}

// NewResultStore starts with an empty result.
func NewResultStore() *ResultStore {
	s := &ResultStore{}
	s.latest.Store(&model.DetectionResult{})
	return s
}

// Publish replaces the latest result. The result must not be modified afterwards.
func (s *ResultStore) Publish(r *model.DetectionResult) {
	if r == nil {
		r = &model.DetectionResult{}
	}
	s.latest.Store(r)
	if subs := s.subs.Load(); subs != nil {
		for _, ch := range *subs {
			select {
			case ch <- r:
			default:
			}
		}
	}
}

// Latest returns the most recent result, never nil.
func (s *ResultStore) Latest() *model.DetectionResult {
	return s.latest.Load()
}

// Subscribe returns a channel receiving new results. Slow subscribers miss
// results rather than stall the worker. Call before the worker starts.
func (s *ResultStore) Subscribe(buffer int) <-chan *model.DetectionResult {
	ch := make(chan *model.DetectionResult, buffer)
	for {
		old := s.subs.Load()
		var next []chan *model.DetectionResult
		if old != nil {
			next = append(next, *old...)
		}
		next = append(next, ch)
		if s.subs.CompareAndSwap(old, &next) {
			return ch
		}
	}
}
