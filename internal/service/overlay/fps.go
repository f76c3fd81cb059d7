package overlay

import "time"

// FPSMeter estimates frames per second from consecutive frame timestamps.
type FPSMeter struct {
	last   time.Time
	fps    float64
	smooth float64
}

// NewFPSMeter creates a meter; smooth in (0,1] weights the newest sample.
func NewFPSMeter(smooth float64) *FPSMeter {
	if smooth <= 0 || smooth > 1 {
		smooth = 0.1
	}
	return &FPSMeter{smooth: smooth}
}

// Tick records a frame at ts and returns the current estimate.
func (m *FPSMeter) Tick(ts time.Time) float64 {
	if m.last.IsZero() {
		m.last = ts
		return 0
	}
	dt := ts.Sub(m.last).Seconds()
	m.last = ts
	if dt <= 0 {
		return m.fps
	}
	inst := 1 / dt
	if m.fps == 0 {
		m.fps = inst
	} else {
		m.fps += m.smooth * (inst - m.fps)
	}
	return m.fps
}

// FPS returns the last estimate.
func (m *FPSMeter) FPS() float64 {
	return m.fps
}
