package dto

import (
	"encoding/json"
	"time"

	"camwatch/internal/model"
)

// SnapshotInfo is one snapshot as listed in the gallery.
type SnapshotInfo struct {
	Name      string    `json:"name"`
	Thumb     string    `json:"thumb"`
	Date      time.Time `json:"date"`
	TimeOfDay time.Time `json:"timeOfDay"`
	Camera    string    `json:"camera"`
	Caption   string    `json:"caption"`
	Size      int64     `json:"size"`
	Objects   []string  `json:"objects"`
}

// NewSnapshotInfo converts a stored record.
func NewSnapshotInfo(s model.Snapshot, thumb string, objects []string) SnapshotInfo {
	if objects == nil {
		objects = []string{}
	}
	return SnapshotInfo{
		Name:      s.Filename,
		Thumb:     thumb,
		Date:      s.Timestamp,
		TimeOfDay: s.Timestamp,
		Camera:    s.Camera,
		Caption:   s.Caption,
		Size:      s.FileSize,
		Objects:   objects,
	}
}

// MarshalJSON formats date and time-of-day the way the gallery filters take them.
func (p SnapshotInfo) MarshalJSON() ([]byte, error) {
	type Alias SnapshotInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      p.Date.Format("02-01-2006"),
		TimeOfDay: p.TimeOfDay.Format("15:04:05"),
		Alias:     (Alias)(p),
	})
}
