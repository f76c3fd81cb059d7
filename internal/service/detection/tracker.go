package detection

import (
	"camwatch/internal/model"
)

const (
	// DefaultIoUThreshold is the minimum overlap to continue a track.
	DefaultIoUThreshold = 0.3
	// DefaultMaxMissed is how many results a track survives without a match.
	DefaultMaxMissed = 30
)

type track struct {
	id     int
	label  model.Label
	box    model.Box
	missed int
}

// Tracker assigns stable ids to detections across consecutive results by
// greedy IoU matching within each label. It is used by the worker goroutine only.
type Tracker struct {
	threshold float32
	maxMissed int
	nextID    int
	tracks    []*track
}

// NewTracker creates a tracker with the default parameters.
func NewTracker() *Tracker {
	return &Tracker{threshold: DefaultIoUThreshold, maxMissed: DefaultMaxMissed, nextID: 1}
}

// Update sets TrackID on every detection, in place.
func (t *Tracker) Update(dets []model.Detection) {
	matched := make([]bool, len(t.tracks))

	for i := range dets {
		best, bestIoU := -1, t.threshold
		for j, tr := range t.tracks {
			if matched[j] || tr.label != dets[i].Label {
				continue
			}
			if iou := tr.box.IoU(dets[i].Box); iou >= bestIoU {
				best, bestIoU = j, iou
			}
		}
		if best >= 0 {
			matched[best] = true
			tr := t.tracks[best]
			tr.box = dets[i].Box
			tr.missed = 0
			dets[i].TrackID = tr.id
			continue
		}
		tr := &track{id: t.nextID, label: dets[i].Label, box: dets[i].Box}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		matched = append(matched, true)
		dets[i].TrackID = tr.id
	}

	kept := t.tracks[:0]
	for j, tr := range t.tracks {
		if !matched[j] {
			tr.missed++
		}
		if tr.missed <= t.maxMissed {
			kept = append(kept, tr)
		}
	}
	t.tracks = kept
}

// Len is the number of live tracks.
func (t *Tracker) Len() int {
	return len(t.tracks)
}
