package repository

import (
	"camwatch/internal/model"
)

// SnapshotRepository persists alert snapshots.
type SnapshotRepository interface {
	// Save stores a snapshot and its detections atomically and returns the new id.
	Save(snap *model.Snapshot, detections []model.SnapshotDetection) (int64, error)

	GetByFilename(filename string) (*model.Snapshot, error)
	List(filter *model.SnapshotFilter) ([]model.Snapshot, error)
	Count(filter *model.SnapshotFilter) (int, error)
	Exists(filename string) (bool, error)
	Stats() (*model.SnapshotStats, error)

	DeleteByFilename(filename string) error
	DeleteAll() error
}

// DetectionRepository reads detections attached to snapshots.
type DetectionRepository interface {
	GetBySnapshotID(snapshotID int64) ([]model.SnapshotDetection, error)
	ObjectNamesBySnapshotID(snapshotID int64) ([]string, error)
	AllObjectNames() ([]string, error)
}
