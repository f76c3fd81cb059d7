// Package storage writes alert snapshots to disk and indexes them.
package storage

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/repository"
	"camwatch/internal/service/overlay"
)

const (
	filePrefix  = "snapshot_"
	thumbPrefix = "thumb_"
	fileExt     = ".jpg"
	// nameLayout gives microsecond resolution; collisions get a _<n> suffix.
	nameLayout = "20060102_150405.000000"
)

// ErrInvalidName rejects names that are not plain snapshot file names.
var ErrInvalidName = errors.New("storage: invalid snapshot name")

// SnapshotStore writes snapshot images and thumbnails and indexes them in the repository.
type SnapshotStore struct {
	dir        string
	camera     string
	thumbWidth uint
	repo       repository.SnapshotRepository
	log        *logger.Logger

	mu sync.Mutex
}

// NewSnapshotStore creates the store; repo may be nil to skip indexing.
func NewSnapshotStore(dir, camera string, thumbWidth int, repo repository.SnapshotRepository, log *logger.Logger) *SnapshotStore {
	if thumbWidth < 0 {
		thumbWidth = 0
	}
	return &SnapshotStore{dir: dir, camera: camera, thumbWidth: uint(thumbWidth), repo: repo, log: log}
}

// Dir returns the snapshot directory.
func (s *SnapshotStore) Dir() string {
	return s.dir
}

// FileName builds the snapshot name for at with an optional collision counter.
func FileName(at time.Time, n int) string {
	base := filePrefix + at.Format(nameLayout)
	if n > 0 {
		base += "_" + strconv.Itoa(n)
	}
	return base + fileExt
}

// ParseFileName recovers the timestamp from a snapshot name.
func ParseFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return time.Time{}, false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	if len(stem) > len(nameLayout) {
		suffix := stem[len(nameLayout):]
		if !strings.HasPrefix(suffix, "_") {
			return time.Time{}, false
		}
		if _, err := strconv.Atoi(suffix[1:]); err != nil {
			return time.Time{}, false
		}
		stem = stem[:len(nameLayout)]
	}
	ts, err := time.ParseInLocation(nameLayout, stem, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ThumbName is the thumbnail file name for a snapshot.
func ThumbName(name string) string {
	return thumbPrefix + name
}

// IsSnapshotName reports whether name is a plain snapshot file name.
func IsSnapshotName(name string) bool {
	if name == "" || name != filepath.Base(name) {
		return false
	}
	_, ok := ParseFileName(name)
	return ok
}

// Path resolves a snapshot name inside the directory.
func (s *SnapshotStore) Path(name string) (string, error) {
	if !IsSnapshotName(name) {
		return "", errors.Wrap(ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// ThumbPath resolves the thumbnail of a snapshot.
func (s *SnapshotStore) ThumbPath(name string) (string, error) {
	if !IsSnapshotName(name) {
		return "", errors.Wrap(ErrInvalidName, name)
	}
	return filepath.Join(s.dir, ThumbName(name)), nil
}

// Save stamps the time onto frame (drawing into it), writes it with a
// collision-free name, writes a thumbnail and indexes the detections.
func (s *SnapshotStore) Save(frame gocv.Mat, res *model.DetectionResult, at time.Time, caption string) (*model.Snapshot, error) {
	if frame.Empty() {
		return nil, errors.New("snapshot: empty frame")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create snapshot directory")
	}

	stamp := at.Format(overlay.TimestampLayout)
	if err := gocv.PutText(&frame, stamp, image.Pt(10, frame.Rows()-10), gocv.FontHersheySimplex, 0.6, color.RGBA{255, 255, 255, 0}, 2); err != nil {
		return nil, errors.Wrap(err, "stamp snapshot")
	}

	name, path, err := s.write(frame, at)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "stat snapshot")
	}

	if s.thumbWidth > 0 {
		if err := s.writeThumb(frame, filepath.Join(s.dir, ThumbName(name))); err != nil {
			s.log.Warning("Thumbnail for %s failed: %v", name, err)
		}
	}

	snap := &model.Snapshot{
		Filename:  name,
		Camera:    s.camera,
		Timestamp: at,
		FilePath:  path,
		FileSize:  info.Size(),
		Caption:   caption,
	}
	if s.repo != nil {
		if _, err := s.repo.Save(snap, detectionRows(res)); err != nil {
			return snap, errors.Wrapf(err, "index snapshot %s", name)
		}
	}
	return snap, nil
}

// write picks a free name and writes the image under the lock.
func (s *SnapshotStore) write(frame gocv.Mat, at time.Time) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n := 0; n < 1000; n++ {
		name := FileName(at, n)
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if ok := gocv.IMWrite(path, frame); !ok {
			return "", "", errors.Errorf("write snapshot %s", path)
		}
		return name, path, nil
	}
	return "", "", errors.Errorf("no free snapshot name for %s", at.Format(nameLayout))
}

func (s *SnapshotStore) writeThumb(frame gocv.Mat, path string) error {
	img, err := frame.ToImage()
	if err != nil {
		return errors.Wrap(err, "convert frame")
	}
	thumb := resize.Resize(s.thumbWidth, 0, img, resize.Bilinear)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create thumbnail")
	}
	defer f.Close()
	if err := jpeg.Encode(f, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return errors.Wrap(err, "encode thumbnail")
	}
	return nil
}

func detectionRows(res *model.DetectionResult) []model.SnapshotDetection {
	if res == nil {
		return nil
	}
	rows := make([]model.SnapshotDetection, 0, len(res.Detections))
	for _, d := range res.Detections {
		r := d.Box.Rect()
		rows = append(rows, model.SnapshotDetection{
			ObjectName: d.Label.String(),
			Confidence: d.Confidence,
			X:          r.Min.X,
			Y:          r.Min.Y,
			Width:      r.Dx(),
			Height:     r.Dy(),
		})
	}
	return rows
}

// Delete removes a snapshot, its thumbnail and its index row.
func (s *SnapshotStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", name)
	}
	if err := os.Remove(filepath.Join(s.dir, ThumbName(name))); err != nil && !os.IsNotExist(err) {
		s.log.Warning("Removing thumbnail of %s: %v", name, err)
	}
	if s.repo != nil {
		if err := s.repo.DeleteByFilename(name); err != nil {
			return errors.Wrapf(err, "unindex %s", name)
		}
	}
	return nil
}

// Clear removes every snapshot file and empties the index.
func (s *SnapshotStore) Clear() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "read snapshot directory")
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(IsSnapshotName(name) || IsSnapshotName(strings.TrimPrefix(name, thumbPrefix))) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.log.Warning("Removing %s: %v", name, err)
			continue
		}
		if IsSnapshotName(name) {
			removed++
		}
	}
	if s.repo != nil {
		if err := s.repo.DeleteAll(); err != nil {
			return removed, errors.Wrap(err, "clear index")
		}
	}
	return removed, nil
}

// DirSize sums the size of all files in the directory.
func (s *SnapshotStore) DirSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}

// Prune deletes the oldest snapshots until the directory is at most maxBytes.
func (s *SnapshotStore) Prune(maxBytes int64) (int, error) {
	if maxBytes <= 0 {
		return 0, nil
	}
	size, err := s.DirSize()
	if err != nil {
		return 0, errors.Wrap(err, "measure snapshot directory")
	}
	if size <= maxBytes {
		return 0, nil
	}

	names, err := s.oldestFirst()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		if size <= maxBytes {
			break
		}
		freed := fileSize(filepath.Join(s.dir, name)) + fileSize(filepath.Join(s.dir, ThumbName(name)))
		if err := s.Delete(name); err != nil {
			s.log.Warning("Prune %s: %v", name, err)
			continue
		}
		size -= freed
		removed++
	}
	s.log.Info("Pruned %d snapshots, directory now %s", removed, formatBytes(size))
	return removed, nil
}

func (s *SnapshotStore) oldestFirst() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "read snapshot directory")
	}
	// names embed the timestamp, so lexical order is chronological
	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsSnapshotName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RunJanitor prunes the directory to maxBytes every interval until ctx ends.
func (s *SnapshotStore) RunJanitor(ctx context.Context, interval time.Duration, maxBytes int64) {
	if interval <= 0 || maxBytes <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Prune(maxBytes); err != nil {
			s.log.Warning("Snapshot janitor: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
