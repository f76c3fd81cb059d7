package capture

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Source is a frame-producing device. *gocv.VideoCapture satisfies it.
type Source interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// DeviceOptions configure OpenDevice.
type DeviceOptions struct {
	// Device is a camera index ("0") or a file/stream URL.
	Device string
	Width  int
	Height int
	FPS    int
	// IdleTimeout fails a network source that stops delivering frames.
	IdleTimeout time.Duration
}

// Interrupter is implemented by sources whose blocked Read can be released
// from another goroutine.
type Interrupter interface {
	Interrupt()
}

// OpenDevice opens a camera or stream and applies the requested format.
func OpenDevice(opts DeviceOptions) (*gocv.VideoCapture, error) {
	var target interface{} = opts.Device
	if idx, err := strconv.Atoi(opts.Device); err == nil {
		target = idx
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture device %q", opts.Device)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Errorf("capture device %q is not available", opts.Device)
	}

	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	if opts.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(opts.FPS))
	}
	return vc, nil
}
