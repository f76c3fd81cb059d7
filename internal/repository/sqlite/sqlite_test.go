package sqlite

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camwatch/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func saveSnapshot(t *testing.T, repo *SnapshotRepository, name, camera string, ts time.Time, objects ...string) int64 {
	t.Helper()
	var dets []model.SnapshotDetection
	for _, o := range objects {
		dets = append(dets, model.SnapshotDetection{ObjectName: o, Confidence: 0.8, Width: 10, Height: 20})
	}
	id, err := repo.Save(&model.Snapshot{
		Filename:  name,
		Camera:    camera,
		Timestamp: ts,
		FilePath:  "/snapshots/" + name,
		FileSize:  100,
	}, dets)
	require.NoError(t, err)
	return id
}

// ========================================
// Snapshot repository
// ========================================

func TestSnapshotRepository_SaveAndGet(t *testing.T) {
	db := newTestDB(t)
	snaps := NewSnapshotRepository(db)
	dets := NewDetectionRepository(db)

	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	id := saveSnapshot(t, snaps, "snapshot_a.jpg", "local", ts, "person", "car", "person")

	got, err := snaps.GetByFilename("snapshot_a.jpg")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "local", got.Camera)
	assert.Equal(t, int64(100), got.FileSize)

	rows, err := dets.GetBySnapshotID(id)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	names, err := dets.ObjectNamesBySnapshotID(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"car", "person"}, names)
}

func TestSnapshotRepository_GetMissing(t *testing.T) {
	snaps := NewSnapshotRepository(newTestDB(t))

	got, err := snaps.GetByFilename("nope.jpg")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := snaps.Exists("nope.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotRepository_DuplicateFilename(t *testing.T) {
	snaps := NewSnapshotRepository(newTestDB(t))
	saveSnapshot(t, snaps, "dup.jpg", "local", time.Now())

	_, err := snaps.Save(&model.Snapshot{Filename: "dup.jpg", Camera: "local", Timestamp: time.Now()}, nil)
	assert.Error(t, err)
}

func TestSnapshotRepository_ListFilters(t *testing.T) {
	snaps := NewSnapshotRepository(newTestDB(t))
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	saveSnapshot(t, snaps, "a.jpg", "front", day.Add(8*time.Hour), "person")
	saveSnapshot(t, snaps, "b.jpg", "front", day.Add(20*time.Hour), "car")
	saveSnapshot(t, snaps, "c.jpg", "back", day.Add(48*time.Hour), "dog", "person")

	tests := []struct {
		name   string
		filter *model.SnapshotFilter
		want   []string
	}{
		{"all newest first", &model.SnapshotFilter{}, []string{"c.jpg", "b.jpg", "a.jpg"}},
		{"nil filter", nil, []string{"c.jpg", "b.jpg", "a.jpg"}},
		{"camera", &model.SnapshotFilter{Camera: "front"}, []string{"b.jpg", "a.jpg"}},
		{"object", &model.SnapshotFilter{Object: "person"}, []string{"c.jpg", "a.jpg"}},
		{"end date", &model.SnapshotFilter{EndDate: day}, []string{"b.jpg", "a.jpg"}},
		{"time window", &model.SnapshotFilter{TimeAfter: "07:00", TimeBefore: "09:00"}, []string{"a.jpg"}},
		{"paged", &model.SnapshotFilter{Limit: 1, Offset: 1}, []string{"b.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := snaps.List(tt.filter)
			require.NoError(t, err)
			var names []string
			for _, s := range list {
				names = append(names, s.Filename)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	n, err := snaps.Count(&model.SnapshotFilter{Object: "person", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSnapshotRepository_StatsAndDelete(t *testing.T) {
	db := newTestDB(t)
	snaps := NewSnapshotRepository(db)
	dets := NewDetectionRepository(db)
	now := time.Now()
	id := saveSnapshot(t, snaps, "a.jpg", "front", now, "person", "person")
	saveSnapshot(t, snaps, "b.jpg", "back", now, "cat")

	stats, err := snaps.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSnapshots)
	assert.Equal(t, int64(200), stats.TotalSize)
	assert.Equal(t, map[string]int{"front": 1, "back": 1}, stats.ByCamera)
	assert.Equal(t, map[string]int{"person": 2, "cat": 1}, stats.ByObject)

	require.NoError(t, snaps.DeleteByFilename("a.jpg"))
	require.NoError(t, snaps.DeleteByFilename("a.jpg"))
	rows, err := dets.GetBySnapshotID(id)
	require.NoError(t, err)
	assert.Empty(t, rows)

	all, err := dets.AllObjectNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, all)

	require.NoError(t, snaps.DeleteAll())
	n, err := snaps.Count(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ========================================
// Database
// ========================================

func TestDatabase_ConcurrentSaves(t *testing.T) {
	db := newTestDB(t)
	snaps := NewSnapshotRepository(db)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := snaps.Save(&model.Snapshot{
				Filename:  fmt.Sprintf("concurrent_%d.jpg", idx),
				Camera:    "cam1",
				Timestamp: time.Now(),
				FileSize:  100,
			}, []model.SnapshotDetection{{ObjectName: "person", Confidence: 0.5}})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	n, err := snaps.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestDatabase_ForeignKeyCascade(t *testing.T) {
	db := newTestDB(t)
	snaps := NewSnapshotRepository(db)
	dets := NewDetectionRepository(db)
	id := saveSnapshot(t, snaps, "fk.jpg", "cam1", time.Now(), "person", "car")

	_, err := db.Conn().Exec(`DELETE FROM snapshots WHERE id = ?`, id)
	require.NoError(t, err)

	rows, err := dets.GetBySnapshotID(id)
	require.NoError(t, err)
	assert.Empty(t, rows, "detections should be cascade deleted")
}
