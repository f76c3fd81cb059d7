// Package cooldown rate-limits alert actions.
package cooldown

import (
	"sync"
	"time"

	"camwatch/internal/model"
)

// Gate allows an action at most once per cooldown. The first attempt always fires.
type Gate struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
	fired    bool
}

// NewGate creates a gate with the given cooldown.
func NewGate(cooldown time.Duration) *Gate {
	return &Gate{cooldown: cooldown}
}

// TryFire reports whether the action may run at now and, if so, records it.
func (g *Gate) TryFire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fired && now.Sub(g.last) < g.cooldown {
		return false
	}
	g.last = now
	g.fired = true
	return true
}

// Remaining is the time left before the gate reopens.
func (g *Gate) Remaining(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.fired {
		return 0
	}
	if left := g.cooldown - now.Sub(g.last); left > 0 {
		return left
	}
	return 0
}

// LabelSetGate is a Gate that also fires early when the set of detected labels
// differs from the set it last fired for.
type LabelSetGate struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
	fired    bool
	active   model.LabelSet
}

// NewLabelSetGate creates a label-aware gate.
func NewLabelSetGate(cooldown time.Duration) *LabelSetGate {
	return &LabelSetGate{cooldown: cooldown}
}

// TryFire decides for a non-empty label set. An empty set never fires and
// forgets the active set, so the next appearance of anything fires at once.
func (g *LabelSetGate) TryFire(now time.Time, labels model.LabelSet) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if labels.Empty() {
		g.active = model.LabelSet{}
		return false
	}
	elapsed := !g.fired || now.Sub(g.last) >= g.cooldown
	if !elapsed && labels.Equal(g.active) {
		return false
	}
	g.last = now
	g.fired = true
	g.active = labels
	return true
}

// Active returns the label set of the last firing, empty after a reset.
func (g *LabelSetGate) Active() model.LabelSet {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Remaining is the time left before the same label set may fire again.
func (g *LabelSetGate) Remaining(now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.fired {
		return 0
	}
	if left := g.cooldown - now.Sub(g.last); left > 0 {
		return left
	}
	return 0
}
