package cooldown

import (
	"sync"
	"time"
)

// Notice is a transient on-screen message that expires after a ttl.
type Notice struct {
	mu    sync.Mutex
	ttl   time.Duration
	text  string
	setAt time.Time
}

// NewNotice creates an empty notice with the given lifetime.
func NewNotice(ttl time.Duration) *Notice {
	return &Notice{ttl: ttl}
}

// Set replaces the message and restarts its timer.
func (n *Notice) Set(text string, now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.text = text
	n.setAt = now
}

// Text returns the message while it is still visible.
func (n *Notice) Text(now time.Time) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.text == "" || now.Sub(n.setAt) >= n.ttl {
		return "", false
	}
	return n.text, true
}
