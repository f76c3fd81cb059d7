package model

import "time"

// Snapshot is a persisted alert image.
type Snapshot struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Camera    string    `json:"camera"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
	Caption   string    `json:"caption"`
}

// SnapshotDetection is one detection stored alongside a snapshot.
type SnapshotDetection struct {
	ID         int64   `json:"id"`
	SnapshotID int64   `json:"snapshot_id"`
	ObjectName string  `json:"object_name"`
	Confidence float32 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

// SnapshotStats summarizes the snapshot archive.
type SnapshotStats struct {
	TotalSnapshots int            `json:"total_snapshots"`
	TotalSize      int64          `json:"total_size"`
	ByObject       map[string]int `json:"by_object"`
	ByCamera       map[string]int `json:"by_camera"`
}

// SnapshotFilter narrows snapshot queries.
type SnapshotFilter struct {
	Camera     string
	Object     string
	StartDate  time.Time
	EndDate    time.Time
	TimeAfter  string
	TimeBefore string
	Limit      int
	Offset     int
}

// CaptionTimeLayout formats the alert time in captions.
const CaptionTimeLayout = "02/01/2006 15:04:05.000"

// Caption summarizes an alert, e.g. "Detected: Car, Person at 02/01/2006 15:04:05.000".
func Caption(labels LabelSet, at time.Time) string {
	return "Detected: " + labels.String() + " at " + at.Format(CaptionTimeLayout)
}
