package model

import (
	"image"
	"math"
	"sort"
	"strings"
	"time"
)

// Box is an axis-aligned rectangle in pixel coordinates of some frame.
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Width of the box, never negative.
func (b Box) Width() float32 {
	if b.X2 < b.X1 {
		return 0
	}
	return b.X2 - b.X1
}

// Height of the box, never negative.
func (b Box) Height() float32 {
	if b.Y2 < b.Y1 {
		return 0
	}
	return b.Y2 - b.Y1
}

// Area in square pixels.
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// Scale multiplies every coordinate by s.
func (b Box) Scale(s float32) Box {
	return Box{X1: b.X1 * s, Y1: b.Y1 * s, X2: b.X2 * s, Y2: b.Y2 * s}
}

// Rect rounds the box to an integer rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(float64(b.X1))),
		int(math.Round(float64(b.Y1))),
		int(math.Round(float64(b.X2))),
		int(math.Round(float64(b.Y2))),
	)
}

// IoU is the intersection over union of two boxes.
func (b Box) IoU(o Box) float32 {
	inter := Box{
		X1: max32(b.X1, o.X1),
		Y1: max32(b.Y1, o.Y1),
		X2: min32(b.X2, o.X2),
		Y2: min32(b.Y2, o.Y2),
	}.Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// Detection is one recognized object.
type Detection struct {
	Label      Label   `json:"label"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
	// TrackID is 0 when tracking is disabled.
	TrackID int `json:"trackId,omitempty"`
}

// DetectionResult is the output of one inference over one frame.
type DetectionResult struct {
	Seq        uint64      `json:"seq"`
	Timestamp  time.Time   `json:"timestamp"`
	Detections []Detection `json:"detections"`
	// Failed is set when inference errored and Detections is empty as a result.
	Failed bool `json:"failed,omitempty"`
}

// Empty reports whether the result carries no detections.
func (r *DetectionResult) Empty() bool {
	return r == nil || len(r.Detections) == 0
}

// LabelSet returns the distinct labels of the result.
func (r *DetectionResult) LabelSet() LabelSet {
	if r == nil {
		return LabelSet{}
	}
	labels := make([]Label, 0, len(r.Detections))
	for _, d := range r.Detections {
		labels = append(labels, d.Label)
	}
	return NewLabelSet(labels...)
}

// Counts returns how many detections carry each label.
func (r *DetectionResult) Counts() map[Label]int {
	counts := make(map[Label]int)
	if r == nil {
		return counts
	}
	for _, d := range r.Detections {
		counts[d.Label]++
	}
	return counts
}

// LabelSet is an immutable set of labels.
type LabelSet struct {
	bits uint32
}

// NewLabelSet builds a set from the given labels.
func NewLabelSet(labels ...Label) LabelSet {
	var s LabelSet
	for _, l := range labels {
		if l.Valid() {
			s.bits |= 1 << uint(l)
		}
	}
	return s
}

// Has reports membership.
func (s LabelSet) Has(l Label) bool {
	return l.Valid() && s.bits&(1<<uint(l)) != 0
}

// Empty reports whether the set has no labels.
func (s LabelSet) Empty() bool {
	return s.bits == 0
}

// Equal reports whether both sets hold the same labels.
func (s LabelSet) Equal(o LabelSet) bool {
	return s.bits == o.bits
}

// Labels returns members in declaration order.
func (s LabelSet) Labels() []Label {
	var out []Label
	for _, l := range AllLabels() {
		if s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

// Titles returns the capitalized member names sorted alphabetically.
func (s LabelSet) Titles() []string {
	var names []string
	for _, l := range s.Labels() {
		names = append(names, l.Title())
	}
	sort.Strings(names)
	return names
}

func (s LabelSet) String() string {
	return strings.Join(s.Titles(), ", ")
}
