// Package pipeline runs the render loop and owns the viewer's mutable settings.
package pipeline

import (
	"math"
	"sync"
	"time"

	"camwatch/internal/service/cooldown"
	"camwatch/internal/service/imaging"
)

// Ranges and steps of the adjustable settings.
const (
	ContrastMin    = 0.5
	ContrastMax    = 2.0
	GammaMin       = 0.1
	GammaMax       = 3.0
	SensitivityMin = 5
	SensitivityMax = 150

	AdjustStep      = 0.1
	SensitivityStep = 5
)

// NoticeSlot identifies one transient status message line.
type NoticeSlot int

const (
	NoticeMode NoticeSlot = iota
	NoticeAdjust
	NoticeMask
	NoticeSound
	NoticeNotify
	NoticeFast
	NoticeTracking
	NoticeAlert
	noticeSlots
)

// Settings is a value copy of the state, safe to use after the lock is gone.
type Settings struct {
	Mode          imaging.Mode `json:"-"`
	ModeName      string       `json:"mode"`
	Brightness    float64      `json:"brightness"`
	Contrast      float64      `json:"contrast"`
	Gamma         float64      `json:"gamma"`
	Sensitivity   int          `json:"sensitivity"`
	MotionMask    bool         `json:"motionMask"`
	ShowMask      bool         `json:"showMask"`
	SoundOn       bool         `json:"sound"`
	NotifyOn      bool         `json:"notify"`
	FastMode      bool         `json:"fastMode"`
	Tracking      bool         `json:"tracking"`
	ShowHelp      bool         `json:"showHelp"`
	BrightnessMin float64      `json:"brightnessMin"`
	BrightnessMax float64      `json:"brightnessMax"`
}

// Adjustments extracts the image parameters.
func (s Settings) Adjustments() imaging.Adjustments {
	return imaging.Adjustments{Mode: s.Mode, Brightness: s.Brightness, Contrast: s.Contrast, Gamma: s.Gamma}
}

// State is the pipeline's mutable configuration. Setters clamp, never fail.
type State struct {
	mu      sync.RWMutex
	s       Settings
	notices [noticeSlots]*cooldown.Notice
}

// NewState clamps the initial settings into range.
func NewState(initial Settings, messageTTL time.Duration) *State {
	if initial.BrightnessMin <= 0 || initial.BrightnessMin > initial.BrightnessMax {
		initial.BrightnessMin, initial.BrightnessMax = 0.5, 1.5
	}
	st := &State{s: initial}
	st.s.Brightness = clampStep(initial.Brightness, initial.BrightnessMin, initial.BrightnessMax)
	st.s.Contrast = clampStep(initial.Contrast, ContrastMin, ContrastMax)
	st.s.Gamma = clampStep(initial.Gamma, GammaMin, GammaMax)
	st.s.Sensitivity = clampInt(initial.Sensitivity, SensitivityMin, SensitivityMax)
	st.s.Mode = initial.Mode % 4
	if st.s.Mode < 0 {
		st.s.Mode = imaging.ModeNormal
	}
	st.s.ModeName = st.s.Mode.String()
	for i := range st.notices {
		st.notices[i] = cooldown.NewNotice(messageTTL)
	}
	return st
}

// Snapshot returns a copy of the settings.
func (st *State) Snapshot() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s
}

// clampStep clamps v to [lo,hi] and rounds to one decimal.
func clampStep(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	v = math.Round(v*10) / 10
	return math.Min(hi, math.Max(lo, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SetBrightness clamps to the configured range and returns the stored value.
func (st *State) SetBrightness(v float64) float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Brightness = clampStep(v, st.s.BrightnessMin, st.s.BrightnessMax)
	return st.s.Brightness
}

// SetContrast clamps to [ContrastMin, ContrastMax].
func (st *State) SetContrast(v float64) float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Contrast = clampStep(v, ContrastMin, ContrastMax)
	return st.s.Contrast
}

// SetGamma clamps to [GammaMin, GammaMax].
func (st *State) SetGamma(v float64) float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Gamma = clampStep(v, GammaMin, GammaMax)
	return st.s.Gamma
}

// SetSensitivity clamps to [SensitivityMin, SensitivityMax].
func (st *State) SetSensitivity(v int) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Sensitivity = clampInt(v, SensitivityMin, SensitivityMax)
	return st.s.Sensitivity
}

// AdjustBrightness moves brightness by delta within one lock.
func (st *State) AdjustBrightness(delta float64) float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Brightness = clampStep(st.s.Brightness+delta, st.s.BrightnessMin, st.s.BrightnessMax)
	return st.s.Brightness
}

func (st *State) AdjustContrast(delta float64) float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Contrast = clampStep(st.s.Contrast+delta, ContrastMin, ContrastMax)
	return st.s.Contrast
}

func (st *State) AdjustGamma(delta float64) float64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Gamma = clampStep(st.s.Gamma+delta, GammaMin, GammaMax)
	return st.s.Gamma
}

func (st *State) AdjustSensitivity(delta int) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Sensitivity = clampInt(st.s.Sensitivity+delta, SensitivityMin, SensitivityMax)
	return st.s.Sensitivity
}

// NextMode advances the vision mode.
func (st *State) NextMode() imaging.Mode {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Mode = st.s.Mode.Next()
	st.s.ModeName = st.s.Mode.String()
	return st.s.Mode
}

func (st *State) toggle(field *bool) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	*field = !*field
	return *field
}

// SoundOn reports the alert-sound toggle.
func (st *State) SoundOn() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.SoundOn
}

// NotifyOn reports the notification toggle.
func (st *State) NotifyOn() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.NotifyOn
}

// Notify sets a transient message in slot.
func (st *State) Notify(slot NoticeSlot, text string, now time.Time) {
	if slot < 0 || slot >= noticeSlots {
		return
	}
	st.notices[slot].Set(text, now)
}

// Notices returns the visible messages in slot order.
func (st *State) Notices(now time.Time) []string {
	var out []string
	for _, n := range st.notices {
		if text, ok := n.Text(now); ok {
			out = append(out, text)
		}
	}
	return out
}
