package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camwatch/internal/dto"
	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/repository/sqlite"
	"camwatch/internal/service/pipeline"
	"camwatch/internal/service/storage"
)

// ========================================
// Setup helpers
// ========================================

type galleryFixture struct {
	deps  GalleryDeps
	dir   string
	snaps *sqlite.SnapshotRepository
}

func setupGallery(t *testing.T) *galleryFixture {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	snaps := sqlite.NewSnapshotRepository(db)
	log := logger.Discard()
	return &galleryFixture{
		deps: GalleryDeps{
			Store:        storage.NewSnapshotStore(dir, "porch", 160, snaps, log),
			Snapshots:    snaps,
			Detections:   sqlite.NewDetectionRepository(db),
			MaxSizeBytes: 4 << 30,
			Logger:       log,
		},
		dir:   dir,
		snaps: snaps,
	}
}

// addSnapshot writes a fake snapshot file and indexes it.
func (f *galleryFixture) addSnapshot(t *testing.T, at time.Time, objects ...string) string {
	t.Helper()
	name := storage.FileName(at, 0)
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, storage.ThumbName(name)), []byte("th"), 0o644))

	var dets []model.SnapshotDetection
	for _, o := range objects {
		dets = append(dets, model.SnapshotDetection{ObjectName: o, Confidence: 0.9, Width: 5, Height: 5})
	}
	_, err := f.snaps.Save(&model.Snapshot{
		Filename:  name,
		Camera:    "porch",
		Timestamp: at,
		FilePath:  path,
		FileSize:  4,
		Caption:   "Detected: test",
	}, dets)
	require.NoError(t, err)
	return name
}

func newTestController() *pipeline.Controller {
	st := pipeline.NewState(pipeline.Settings{
		Brightness:    1.0,
		Contrast:      1.0,
		Gamma:         1.0,
		Sensitivity:   50,
		BrightnessMin: 0.5,
		BrightnessMax: 1.5,
	}, 2*time.Second)
	return pipeline.NewController(st, logger.Discard())
}

// ========================================
// Helper Function Tests
// ========================================

func TestAtoiDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"10", 5, 10},
		{"1", 0, 1},
		{"", 5, 5},
		{"abc", 10, 10},
		{"-1", 5, 5},
		{"0", 5, 5},
		{"12.5", 5, 5},
		{"12abc", 5, 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, atoiDefault(tt.input, tt.def), "atoiDefault(%q, %d)", tt.input, tt.def)
	}
}

func TestParseDateAndTime(t *testing.T) {
	assert.True(t, parseDate("").IsZero())
	assert.True(t, parseDate("01/02/2024").IsZero())
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), parseDate("2024-02-01"))

	assert.Equal(t, "07:30:00", parseTimeOfDay("07:30"))
	assert.Equal(t, "07:30:15", parseTimeOfDay("07:30:15"))
	assert.Equal(t, "", parseTimeOfDay("7.30"))
	assert.Equal(t, "", parseTimeOfDay(""))
}

// ========================================
// Control surface
// ========================================

func TestControlHandler(t *testing.T) {
	ctrl := newTestController()
	h := ControlHandler(ctrl, logger.Discard())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/control?cmd=brightness-up", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp dto.ControlResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "brightness-up", resp.Command)
	assert.Equal(t, "Brightness: 1.1", resp.Label)
	assert.Equal(t, 1.1, resp.State.Brightness)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/control?cmd=MODE", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Night Vision", resp.State.ModeName)
}

func TestControlHandler_Rejects(t *testing.T) {
	h := ControlHandler(newTestController(), logger.Discard())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/control?cmd=explode", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/control?cmd=mode", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestControlHandler_SetValue(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLabel string
		check     func(t *testing.T, s pipeline.Settings)
	}{
		{"brightness absolute", "cmd=brightness&value=1.3", "Brightness: 1.3",
			func(t *testing.T, s pipeline.Settings) { assert.Equal(t, 1.3, s.Brightness) }},
		{"brightness clamps low", "cmd=brightness&value=-2", "Brightness: 0.5",
			func(t *testing.T, s pipeline.Settings) { assert.Equal(t, 0.5, s.Brightness) }},
		{"brightness clamps high", "cmd=brightness&value=40", "Brightness: 1.5",
			func(t *testing.T, s pipeline.Settings) { assert.Equal(t, 1.5, s.Brightness) }},
		{"contrast clamps low", "cmd=contrast&value=0", "Contrast: 0.5",
			func(t *testing.T, s pipeline.Settings) { assert.Equal(t, 0.5, s.Contrast) }},
		{"contrast clamps high", "cmd=contrast&value=5", "Contrast: 2.0",
			func(t *testing.T, s pipeline.Settings) { assert.Equal(t, 2.0, s.Contrast) }},
		{"sensitivity", "cmd=sensitivity&value=90", "Sensitivity: 90",
			func(t *testing.T, s pipeline.Settings) { assert.Equal(t, 90, s.Sensitivity) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newTestController()
			h := ControlHandler(ctrl, logger.Discard())

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/control?"+tt.query, nil))
			require.Equal(t, http.StatusOK, rr.Code)

			var resp dto.ControlResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantLabel, resp.Label)
			tt.check(t, resp.State)
			assert.Contains(t, ctrl.State().Notices(time.Now()), tt.wantLabel)
		})
	}
}

func TestControlHandler_SetValueForm(t *testing.T) {
	ctrl := newTestController()
	h := ControlHandler(ctrl, logger.Discard())

	req := httptest.NewRequest(http.MethodPost, "/api/control", strings.NewReader("cmd=gamma&value=2.5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2.5, ctrl.State().Snapshot().Gamma)
}

func TestControlHandler_SetValueRejects(t *testing.T) {
	for _, query := range []string{
		"cmd=brightness&value=bright",
		"cmd=brightness&value=NaN",
		"cmd=volume&value=3",
		"cmd=brightness-up&value=1",
	} {
		ctrl := newTestController()
		rr := httptest.NewRecorder()
		ControlHandler(ctrl, logger.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/control?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, query)
		assert.Equal(t, 1.0, ctrl.State().Snapshot().Brightness, query)
	}
}

func TestControlHandler_Quit(t *testing.T) {
	ctrl := newTestController()
	h := ControlHandler(ctrl, logger.Discard())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/control?cmd=quit", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	select {
	case <-ctrl.Quit():
	default:
		t.Fatal("quit was not signalled")
	}
}

func TestStatusHandler(t *testing.T) {
	h := StatusHandler(func() dto.StatusResponse {
		return dto.StatusResponse{Camera: "porch", Frames: 42, Viewers: 2}
	}, logger.Discard())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "porch", body["camera"])
	assert.Equal(t, float64(42), body["frames"])
	assert.Equal(t, float64(2), body["viewers"])
}

// ========================================
// Gallery Handler Tests
// ========================================

func TestGalleryHandler_GetSnapshots(t *testing.T) {
	f := setupGallery(t)
	base := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	f.addSnapshot(t, base, "person")
	f.addSnapshot(t, base.Add(time.Hour), "car", "person")
	newest := f.addSnapshot(t, base.Add(2*time.Hour), "dog")

	rr := httptest.NewRecorder()
	GetSnapshotsHandler(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/snapshots?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var data struct {
		Snapshots []struct {
			Name    string   `json:"name"`
			Thumb   string   `json:"thumb"`
			Date    string   `json:"date"`
			Objects []string `json:"objects"`
		} `json:"snapshots"`
		Length     int   `json:"length"`
		TotalPages int   `json:"totalPages"`
		Size       int64 `json:"size"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
	assert.Equal(t, 3, data.Length)
	assert.Equal(t, 2, data.TotalPages)
	require.Len(t, data.Snapshots, 2)
	assert.Equal(t, newest, data.Snapshots[0].Name)
	assert.Equal(t, "thumb_"+newest, data.Snapshots[0].Thumb)
	assert.Equal(t, "10-05-2024", data.Snapshots[0].Date)
	assert.Equal(t, []string{"dog"}, data.Snapshots[0].Objects)
	assert.Equal(t, int64(18), data.Size)
}

func TestGalleryHandler_GetSnapshots_Filters(t *testing.T) {
	f := setupGallery(t)
	base := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	f.addSnapshot(t, base, "person")
	f.addSnapshot(t, base.Add(time.Hour), "car")
	f.addSnapshot(t, base.Add(48*time.Hour), "person")

	get := func(query string) int {
		rr := httptest.NewRecorder()
		GetSnapshotsHandler(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/snapshots?"+query, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		var data struct {
			Length int `json:"length"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &data))
		return data.Length
	}

	assert.Equal(t, 2, get("object=Person"))
	assert.Equal(t, 1, get("object=car"))
	assert.Equal(t, 2, get("dateBefore=2024-05-10"))
	assert.Equal(t, 1, get("dateAfter=2024-05-11"))
	assert.Equal(t, 0, get("camera=garage"))
}

func TestGalleryHandler_ViewAndThumb(t *testing.T) {
	f := setupGallery(t)
	name := f.addSnapshot(t, time.Now(), "cat")

	rr := httptest.NewRecorder()
	ViewSnapshotHandler(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/snapshots/view?name="+name, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg", rr.Body.String())

	rr = httptest.NewRecorder()
	ThumbSnapshotHandler(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/snapshots/thumb?name="+name, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "th", rr.Body.String())
}

func TestGalleryHandler_ViewRejectsBadNames(t *testing.T) {
	f := setupGallery(t)
	for _, q := range []string{"", "?name=../secret.jpg", "?name=notes.txt"} {
		rr := httptest.NewRecorder()
		ViewSnapshotHandler(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/snapshots/view"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestGalleryHandler_DeleteSnapshot(t *testing.T) {
	f := setupGallery(t)
	name := f.addSnapshot(t, time.Now(), "person")

	rr := httptest.NewRecorder()
	DeleteSnapshotHandler(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/snapshots/delete?name="+name, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	_, err := os.Stat(filepath.Join(f.dir, name))
	assert.True(t, os.IsNotExist(err), "file should be deleted from disk")
	_, err = os.Stat(filepath.Join(f.dir, storage.ThumbName(name)))
	assert.True(t, os.IsNotExist(err), "thumbnail should be deleted from disk")

	got, err := f.snaps.GetByFilename(name)
	require.NoError(t, err)
	assert.Nil(t, got, "snapshot should be deleted from database")
}

func TestGalleryHandler_DeleteSnapshot_BadRequests(t *testing.T) {
	f := setupGallery(t)
	h := DeleteSnapshotHandler(f.deps)

	cases := []struct {
		method string
		url    string
		code   int
	}{
		{http.MethodPost, "/api/snapshots/delete", http.StatusBadRequest},
		{http.MethodPost, "/api/snapshots/delete?name=../../etc/passwd", http.StatusBadRequest},
		{http.MethodGet, "/api/snapshots/delete?name=snapshot_x.jpg", http.StatusMethodNotAllowed},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(c.method, c.url, nil))
		assert.Equal(t, c.code, rr.Code, c.url)
	}
}

func TestGalleryHandler_ClearSnapshots(t *testing.T) {
	f := setupGallery(t)
	f.addSnapshot(t, time.Now(), "person")
	f.addSnapshot(t, time.Now().Add(time.Second), "dog")
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "keep.txt"), []byte("x"), 0o644))

	rr := httptest.NewRecorder()
	ClearSnapshotsHandler(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/snapshots/clear", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())

	n, err := f.snaps.Count(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGalleryHandler_Stats(t *testing.T) {
	f := setupGallery(t)
	f.addSnapshot(t, time.Now(), "person", "car")
	f.addSnapshot(t, time.Now().Add(time.Second), "person")

	rr := httptest.NewRecorder()
	SnapshotStatsHandler(f.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/snapshots/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats model.SnapshotStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalSnapshots)
	assert.Equal(t, 2, stats.ByObject["person"])
	assert.Equal(t, 2, stats.ByCamera["porch"])
}

// ========================================
// Logs and login
// ========================================

func TestLogsHandlers(t *testing.T) {
	dir := t.TempDir()
	log, err := logger.New(dir)
	require.NoError(t, err)
	defer log.Close()
	log.Info("hello from the test")

	rr := httptest.NewRecorder()
	ShowLogsHandler(dir, logger.InfoFile).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "hello from the test")
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))

	rr = httptest.NewRecorder()
	ClearLogsHandler(log, logger.InfoFile).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/logs/info/clear", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	data, err := os.ReadFile(filepath.Join(dir, logger.InfoFile))
	require.NoError(t, err)
	assert.Empty(t, data)

	rr = httptest.NewRecorder()
	ShowLogsHandler(dir, "missing.log").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logs/x", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDetectionLogHandlers(t *testing.T) {
	dl, err := logger.OpenDetectionLog(filepath.Join(t.TempDir(), "detections.log"))
	require.NoError(t, err)
	defer dl.Close()

	res := &model.DetectionResult{Detections: []model.Detection{{Label: model.Cat, Confidence: 0.7}}}
	require.NoError(t, dl.Append(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), res))

	rr := httptest.NewRecorder()
	ShowDetectionLogHandler(dl).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/logs/detections", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "[02/01/2024 03:04:05]")
	assert.Contains(t, rr.Body.String(), "Cat: 1")

	rr = httptest.NewRecorder()
	ClearDetectionLogHandler(dl, logger.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/logs/detections/clear", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	data, err := os.ReadFile(dl.Path())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLoginHandler(t *testing.T) {
	h := LoginHandler("s3cret", logger.Discard())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	bad := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("token=nope"))
	bad.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, bad)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	good := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("token=s3cret"))
	good.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, good)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "s3cret", cookies[0].Value)
}
