package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"camwatch/internal/model"
)

// SnapshotRepository implements repository.SnapshotRepository for SQLite.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a snapshot repository on db.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save inserts the snapshot row and its detections in one transaction.
func (r *SnapshotRepository) Save(snap *model.Snapshot, detections []model.SnapshotDetection) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO snapshots (filename, camera, timestamp, filepath, filesize, caption)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.Filename, snap.Camera, snap.Timestamp, snap.FilePath, snap.FileSize, snap.Caption)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}

	if len(detections) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO detections (snapshot_id, object_name, confidence, x, y, width, height)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, d := range detections {
			if _, err := stmt.Exec(id, d.ObjectName, d.Confidence, d.X, d.Y, d.Width, d.Height); err != nil {
				return 0, fmt.Errorf("failed to insert detection: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	snap.ID = id
	return id, nil
}

// GetByFilename returns nil, nil when no snapshot has that name.
func (r *SnapshotRepository) GetByFilename(filename string) (*model.Snapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var s model.Snapshot
	err := r.db.Conn().QueryRow(`
		SELECT id, filename, camera, timestamp, filepath, filesize, caption
		FROM snapshots WHERE filename = ?
	`, filename).Scan(&s.ID, &s.Filename, &s.Camera, &s.Timestamp, &s.FilePath, &s.FileSize, &s.Caption)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &s, nil
}

// whereClause renders the filter as SQL conditions over snapshots s joined with detections d.
func whereClause(filter *model.SnapshotFilter) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(" WHERE 1=1")
	var args []interface{}
	if filter == nil {
		return b.String(), args
	}

	if filter.Camera != "" {
		b.WriteString(" AND s.camera = ?")
		args = append(args, filter.Camera)
	}
	if filter.Object != "" {
		b.WriteString(" AND d.object_name = ?")
		args = append(args, filter.Object)
	}
	if !filter.StartDate.IsZero() {
		b.WriteString(" AND DATE(s.timestamp) >= DATE(?)")
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		b.WriteString(" AND DATE(s.timestamp) <= DATE(?)")
		args = append(args, filter.EndDate)
	}
	if filter.TimeAfter != "" {
		b.WriteString(" AND TIME(s.timestamp) >= TIME(?)")
		args = append(args, filter.TimeAfter)
	}
	if filter.TimeBefore != "" {
		b.WriteString(" AND TIME(s.timestamp) <= TIME(?)")
		args = append(args, filter.TimeBefore)
	}
	return b.String(), args
}

// List returns snapshots matching filter, newest first.
func (r *SnapshotRepository) List(filter *model.SnapshotFilter) ([]model.Snapshot, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `
		SELECT DISTINCT s.id, s.filename, s.camera, s.timestamp, s.filepath, s.filesize, s.caption
		FROM snapshots s
		LEFT JOIN detections d ON s.id = d.snapshot_id` + where + `
		ORDER BY s.timestamp DESC, s.id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		var s model.Snapshot
		if err := rows.Scan(&s.ID, &s.Filename, &s.Camera, &s.Timestamp, &s.FilePath, &s.FileSize, &s.Caption); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

// Count returns how many snapshots match filter.
func (r *SnapshotRepository) Count(filter *model.SnapshotFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `
		SELECT COUNT(DISTINCT s.id)
		FROM snapshots s
		LEFT JOIN detections d ON s.id = d.snapshot_id` + where

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// Exists reports whether a snapshot with filename is indexed.
func (r *SnapshotRepository) Exists(filename string) (bool, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM snapshots WHERE filename = ?`, filename).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check snapshot existence: %w", err)
	}
	return count > 0, nil
}

// Stats aggregates the archive by camera and detected object.
func (r *SnapshotRepository) Stats() (*model.SnapshotStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.SnapshotStats{
		ByObject: make(map[string]int),
		ByCamera: make(map[string]int),
	}
	conn := r.db.Conn()

	if err := conn.QueryRow(`SELECT COUNT(*), COALESCE(SUM(filesize), 0) FROM snapshots`).
		Scan(&stats.TotalSnapshots, &stats.TotalSize); err != nil {
		return nil, fmt.Errorf("failed to total snapshots: %w", err)
	}

	if err := groupCount(conn, `SELECT camera, COUNT(*) FROM snapshots GROUP BY camera`, stats.ByCamera); err != nil {
		return nil, err
	}
	if err := groupCount(conn, `SELECT object_name, COUNT(*) FROM detections GROUP BY object_name`, stats.ByObject); err != nil {
		return nil, err
	}
	return stats, nil
}

func groupCount(conn *sql.DB, query string, into map[string]int) error {
	rows, err := conn.Query(query)
	if err != nil {
		return fmt.Errorf("failed to group snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan group: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

// DeleteByFilename removes the snapshot and its detections; a missing name is not an error.
func (r *SnapshotRepository) DeleteByFilename(filename string) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM detections WHERE snapshot_id IN (SELECT id FROM snapshots WHERE filename = ?)`, filename); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return tx.Commit()
}

// DeleteAll empties both tables.
func (r *SnapshotRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM detections`); err != nil {
		return fmt.Errorf("failed to delete detections: %w", err)
	}
	if _, err := r.db.Conn().Exec(`DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}
