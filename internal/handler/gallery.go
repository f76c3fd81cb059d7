package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"camwatch/internal/dto"
	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/repository"
	"camwatch/internal/service/storage"
)

// GalleryDeps are the collaborators of the snapshot endpoints.
type GalleryDeps struct {
	Store        *storage.SnapshotStore
	Snapshots    repository.SnapshotRepository
	Detections   repository.DetectionRepository
	MaxSizeBytes int64
	Logger       *logger.Logger
}

// GetSnapshotsHandler returns a filtered, paginated list of snapshots from the index.
func GetSnapshotsHandler(d GalleryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &model.SnapshotFilter{
			Camera:     q.Get("camera"),
			Object:     strings.ToLower(q.Get("object")),
			StartDate:  parseDate(q.Get("dateAfter")),
			EndDate:    parseDate(q.Get("dateBefore")),
			TimeAfter:  parseTimeOfDay(q.Get("timeAfter")),
			TimeBefore: parseTimeOfDay(q.Get("timeBefore")),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		snapshots, err := d.Snapshots.List(filter)
		if err != nil {
			d.Logger.Error("Error querying snapshots from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := d.Snapshots.Count(filter)
		if err != nil {
			d.Logger.Error("Error counting snapshots: %v", err)
			totalCount = len(snapshots)
		}

		totalSize, err := d.Store.DirSize()
		if err != nil {
			d.Logger.Error("Error getting snapshot directory size: %v", err)
			totalSize = 0
		}

		infos := make([]dto.SnapshotInfo, 0, len(snapshots))
		for _, s := range snapshots {
			var objects []string
			if d.Detections != nil {
				objects, err = d.Detections.ObjectNamesBySnapshotID(s.ID)
				if err != nil {
					d.Logger.Error("Error getting objects for snapshot %d: %v", s.ID, err)
				}
			}
			infos = append(infos, dto.NewSnapshotInfo(s, storage.ThumbName(s.Filename), objects))
		}

		writeJSON(w, http.StatusOK, dto.SnapshotsData{
			Snapshots:   infos,
			ImagesDir:   d.Store.Dir(),
			Size:        totalSize,
			MaxSize:     d.MaxSizeBytes,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}, d.Logger)
	}
}

// ViewSnapshotHandler serves the snapshot named by ?name=.
func ViewSnapshotHandler(d GalleryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveSnapshot(w, r, d.Store.Path)
	}
}

// ThumbSnapshotHandler serves the thumbnail of the snapshot named by ?name=.
func ThumbSnapshotHandler(d GalleryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveSnapshot(w, r, d.Store.ThumbPath)
	}
}

func serveSnapshot(w http.ResponseWriter, r *http.Request, resolve func(string) (string, error)) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "Name parameter is required", http.StatusBadRequest)
		return
	}
	path, err := resolve(name)
	if err != nil {
		http.Error(w, "Invalid snapshot name", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

// DeleteSnapshotHandler removes a snapshot from disk and the index.
func DeleteSnapshotHandler(d GalleryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "Name required", http.StatusBadRequest)
			return
		}

		if err := d.Store.Delete(name); err != nil {
			if errors.Is(err, storage.ErrInvalidName) {
				http.Error(w, "Invalid snapshot name", http.StatusBadRequest)
				return
			}
			d.Logger.Error("Failed to delete snapshot %s: %v", name, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		d.Logger.Info("Deleted snapshot: %s", name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name}, d.Logger)
	}
}

// ClearSnapshotsHandler deletes every snapshot and empties the index.
func ClearSnapshotsHandler(d GalleryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		removed, err := d.Store.Clear()
		if err != nil {
			d.Logger.Error("Error clearing snapshots: %v", err)
			http.Error(w, "Unable to clear snapshots", http.StatusInternalServerError)
			return
		}
		d.Logger.Info("%d snapshots cleared from directory: %s", removed, d.Store.Dir())
		w.WriteHeader(http.StatusNoContent)
	}
}

// SnapshotStatsHandler summarizes the archive.
func SnapshotStatsHandler(d GalleryDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := d.Snapshots.Stats()
		if err != nil {
			d.Logger.Error("Error reading snapshot stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats, d.Logger)
	}
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" from the request (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseTimeOfDay normalizes "15:04" or "15:04:05" to "15:04:05"; anything else yields "".
func parseTimeOfDay(v string) string {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("15:04:05")
		}
	}
	return ""
}
