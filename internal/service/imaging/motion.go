package imaging

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const motionHistory = 500

// MotionMask keeps a MOG2 background model and blanks out static regions.
// The model is rebuilt when the sensitivity changes.
type MotionMask struct {
	sensitivity int
	mog         gocv.BackgroundSubtractorMOG2
	kernel      gocv.Mat
	ready       bool
}

// NewMotionMask creates a mask with the given variance threshold.
func NewMotionMask(sensitivity int) *MotionMask {
	m := &MotionMask{
		kernel: gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(5, 5)),
	}
	m.reset(sensitivity)
	return m
}

func (m *MotionMask) reset(sensitivity int) {
	if m.ready {
		m.mog.Close()
	}
	m.mog = gocv.NewBackgroundSubtractorMOG2WithParams(motionHistory, float64(sensitivity), false)
	m.sensitivity = sensitivity
	m.ready = true
}

// Sensitivity returns the threshold in use.
func (m *MotionMask) Sensitivity() int {
	return m.sensitivity
}

// Apply updates the background model and returns the masked frame and the
// foreground mask, both owned by the caller.
func (m *MotionMask) Apply(src gocv.Mat, sensitivity int) (masked gocv.Mat, fg gocv.Mat, err error) {
	if sensitivity != m.sensitivity {
		m.reset(sensitivity)
	}

	raw := gocv.NewMat()
	defer raw.Close()
	if err := m.mog.Apply(src, &raw); err != nil {
		return gocv.NewMat(), gocv.NewMat(), errors.Wrap(err, "motion mask: background model")
	}

	fg = gocv.NewMat()
	gocv.MorphologyEx(raw, &fg, gocv.MorphOpen, m.kernel)

	masked = gocv.NewMat()
	gocv.BitwiseAndWithMask(src, src, &masked, fg)
	return masked, fg, nil
}

// Close releases the model.
func (m *MotionMask) Close() error {
	if m.ready {
		m.mog.Close()
		m.ready = false
	}
	return m.kernel.Close()
}
