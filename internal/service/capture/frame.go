// Package capture owns the camera device and publishes its latest frame.
package capture

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is one captured image. Whoever holds a *Frame owns its Mat and must
// Close it exactly once.
type Frame struct {
	Mat       gocv.Mat
	Seq       uint64
	Timestamp time.Time
}

// NewFrame wraps mat; the frame takes ownership of it.
func NewFrame(mat gocv.Mat, seq uint64, ts time.Time) *Frame {
	return &Frame{Mat: mat, Seq: seq, Timestamp: ts}
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{Mat: f.Mat.Clone(), Seq: f.Seq, Timestamp: f.Timestamp}
}

// Close releases the pixel data. Safe on nil.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}

// Empty reports whether the frame carries no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Mat.Empty()
}
