// Package overlay draws detections and status text onto display frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"camwatch/internal/model"
)

// TimestampLayout is the wall-clock format drawn on frames and snapshots.
const TimestampLayout = "02/01/2006 15:04:05"

const (
	font       = gocv.FontHersheySimplex
	noticeTop  = 40
	noticeStep = 30
	margin     = 10
)

var (
	white  = color.RGBA{255, 255, 255, 0}
	yellow = color.RGBA{255, 255, 0, 0}
)

// Info is the non-detection content of one overlay.
type Info struct {
	FPS      float64
	Now      time.Time
	Mode     string
	Notices  []string
	HelpText []string
}

// Renderer draws onto frames in place.
type Renderer struct {
	minArea float32
}

// NewRenderer creates a renderer that hides boxes smaller than minArea pixels.
func NewRenderer(minArea float64) *Renderer {
	return &Renderer{minArea: float32(minArea)}
}

// VisibleDetections drops boxes below minArea.
func VisibleDetections(dets []model.Detection, minArea float32) []model.Detection {
	out := make([]model.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Box.Area() >= minArea {
			out = append(out, d)
		}
	}
	return out
}

// BucketCounts counts detections per counter group.
func BucketCounts(dets []model.Detection) map[model.Bucket]int {
	counts := map[model.Bucket]int{
		model.BucketPeople:   0,
		model.BucketVehicles: 0,
		model.BucketAnimals:  0,
	}
	for _, d := range dets {
		counts[d.Label.Bucket()]++
	}
	return counts
}

// CountsText renders bucket counts for the status line.
func CountsText(counts map[model.Bucket]int) string {
	return fmt.Sprintf("People: %d  Vehicles: %d  Animals: %d",
		counts[model.BucketPeople], counts[model.BucketVehicles], counts[model.BucketAnimals])
}

// LabelText is the caption drawn above a box.
func LabelText(d model.Detection) string {
	if d.TrackID > 0 {
		return fmt.Sprintf("%s #%d %.0f%%", d.Label.Title(), d.TrackID, d.Confidence*100)
	}
	return fmt.Sprintf("%s %.0f%%", d.Label.Title(), d.Confidence*100)
}

// Render draws boxes, counts, FPS, the timestamp, notices and help onto img.
func (r *Renderer) Render(img *gocv.Mat, res *model.DetectionResult, info Info) error {
	if img.Empty() {
		return errors.New("overlay: empty frame")
	}
	var dets []model.Detection
	if res != nil {
		dets = VisibleDetections(res.Detections, r.minArea)
	}

	for _, d := range dets {
		rect := d.Box.Rect()
		c := d.Label.Color()
		if err := gocv.Rectangle(img, rect, c, 2); err != nil {
			return errors.Wrap(err, "draw box")
		}
		y := rect.Min.Y - 5
		if y < 15 {
			y = rect.Min.Y + 15
		}
		if err := gocv.PutText(img, LabelText(d), image.Pt(rect.Min.X, y), font, 0.5, c, 1); err != nil {
			return errors.Wrap(err, "draw label")
		}
	}

	w, h := img.Cols(), img.Rows()

	if info.Mode != "" {
		if err := gocv.PutText(img, info.Mode, image.Pt(margin, 20), font, 0.5, white, 1); err != nil {
			return errors.Wrap(err, "draw mode")
		}
	}

	fps := fmt.Sprintf("FPS: %.1f", info.FPS)
	size := gocv.GetTextSize(fps, font, 0.6, 2)
	if err := gocv.PutText(img, fps, image.Pt(w-size.X-margin, 30), font, 0.6, yellow, 2); err != nil {
		return errors.Wrap(err, "draw fps")
	}

	y := noticeTop
	for _, n := range info.Notices {
		if err := gocv.PutText(img, n, image.Pt(margin, y), font, 0.7, yellow, 2); err != nil {
			return errors.Wrap(err, "draw notice")
		}
		y += noticeStep
	}

	if len(info.HelpText) > 0 {
		hy := y + 10
		for _, line := range info.HelpText {
			if err := gocv.PutText(img, line, image.Pt(margin, hy), font, 0.5, white, 1); err != nil {
				return errors.Wrap(err, "draw help")
			}
			hy += 20
		}
	}

	if err := gocv.PutText(img, CountsText(BucketCounts(dets)), image.Pt(margin, h-40), font, 0.6, white, 2); err != nil {
		return errors.Wrap(err, "draw counts")
	}
	if !info.Now.IsZero() {
		if err := gocv.PutText(img, info.Now.Format(TimestampLayout), image.Pt(margin, h-margin), font, 0.6, white, 2); err != nil {
			return errors.Wrap(err, "draw timestamp")
		}
	}
	return nil
}
