package sqlite

import (
	"fmt"

	"camwatch/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a detection repository on db.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// GetBySnapshotID returns every detection stored with a snapshot.
func (r *DetectionRepository) GetBySnapshotID(snapshotID int64) ([]model.SnapshotDetection, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, snapshot_id, object_name, confidence, x, y, width, height
		FROM detections WHERE snapshot_id = ? ORDER BY id
	`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var out []model.SnapshotDetection
	for rows.Next() {
		var d model.SnapshotDetection
		if err := rows.Scan(&d.ID, &d.SnapshotID, &d.ObjectName, &d.Confidence, &d.X, &d.Y, &d.Width, &d.Height); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ObjectNamesBySnapshotID returns the distinct object names of a snapshot.
func (r *DetectionRepository) ObjectNamesBySnapshotID(snapshotID int64) ([]string, error) {
	return r.names(`SELECT DISTINCT object_name FROM detections WHERE snapshot_id = ? ORDER BY object_name`, snapshotID)
}

// AllObjectNames lists every object name ever stored.
func (r *DetectionRepository) AllObjectNames() ([]string, error) {
	return r.names(`SELECT DISTINCT object_name FROM detections ORDER BY object_name`)
}

func (r *DetectionRepository) names(query string, args ...interface{}) ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query object names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan object name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
