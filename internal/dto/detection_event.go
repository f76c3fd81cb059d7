package dto

import (
	"time"

	"camwatch/internal/model"
)

// EventDetection is one box in a DetectionEvent.
type EventDetection struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	TrackID    int     `json:"trackId,omitempty"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// DetectionEvent is pushed to live viewers for every new detection result.
type DetectionEvent struct {
	Type       string           `json:"type"`
	Camera     string           `json:"camera"`
	Seq        uint64           `json:"seq"`
	Timestamp  time.Time        `json:"timestamp"`
	Failed     bool             `json:"failed,omitempty"`
	Labels     []string         `json:"labels"`
	Detections []EventDetection `json:"detections"`
}

// NewDetectionEvent converts a result into its wire form.
func NewDetectionEvent(camera string, res *model.DetectionResult) DetectionEvent {
	ev := DetectionEvent{
		Type:       "detections",
		Camera:     camera,
		Labels:     []string{},
		Detections: []EventDetection{},
	}
	if res == nil {
		return ev
	}
	ev.Seq = res.Seq
	ev.Timestamp = res.Timestamp
	ev.Failed = res.Failed
	if labels := res.LabelSet().Titles(); labels != nil {
		ev.Labels = labels
	}
	for _, d := range res.Detections {
		r := d.Box.Rect()
		ev.Detections = append(ev.Detections, EventDetection{
			Label:      d.Label.Title(),
			Confidence: d.Confidence,
			TrackID:    d.TrackID,
			X:          r.Min.X,
			Y:          r.Min.Y,
			Width:      r.Dx(),
			Height:     r.Dy(),
		})
	}
	return ev
}
