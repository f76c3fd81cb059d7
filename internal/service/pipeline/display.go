package pipeline

import (
	"gocv.io/x/gocv"
)

// Display shows rendered frames and reports key presses.
type Display interface {
	Show(frame gocv.Mat)
	ShowMask(mask gocv.Mat)
	// PollKey returns the pressed key or -1.
	PollKey() int
	Close() error
}

// WindowDisplay renders into HighGUI windows.
type WindowDisplay struct {
	main *gocv.Window
	mask *gocv.Window
	name string
}

// NewWindowDisplay opens the main window.
func NewWindowDisplay(name string) *WindowDisplay {
	return &WindowDisplay{main: gocv.NewWindow(name), name: name}
}

func (d *WindowDisplay) Show(frame gocv.Mat) {
	d.main.IMShow(frame)
}

// ShowMask opens the mask window on first use.
func (d *WindowDisplay) ShowMask(mask gocv.Mat) {
	if d.mask == nil {
		d.mask = gocv.NewWindow(d.name + " mask")
	}
	d.mask.IMShow(mask)
}

func (d *WindowDisplay) PollKey() int {
	return d.main.WaitKey(1)
}

func (d *WindowDisplay) Close() error {
	if d.mask != nil {
		d.mask.Close()
	}
	return d.main.Close()
}

// HeadlessDisplay discards frames; control happens over HTTP.
type HeadlessDisplay struct{}

func (HeadlessDisplay) Show(gocv.Mat)     {}
func (HeadlessDisplay) ShowMask(gocv.Mat) {}
func (HeadlessDisplay) PollKey() int      { return -1 }
func (HeadlessDisplay) Close() error      { return nil }
