package pipeline

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/service/capture"
	"camwatch/internal/service/detection"
	"camwatch/internal/service/overlay"
)

// pacedSource yields frames solid-filled with their number, one per interval,
// then fails.
type pacedSource struct {
	frames   int
	interval time.Duration
	n        int
}

func (s *pacedSource) Read(m *gocv.Mat) bool {
	time.Sleep(s.interval)
	if s.n >= s.frames {
		return false
	}
	s.n++
	f := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	f.SetTo(gocv.NewScalar(float64(s.n), float64(s.n), float64(s.n), 0))
	f.CopyTo(m)
	f.Close()
	return true
}

func (s *pacedSource) Close() error { return nil }

type slowEngine struct {
	delay   time.Duration
	started atomic.Int32
	failOn  int32
}

func (e *slowEngine) Detect(_ context.Context, _ gocv.Mat, _ []model.Label, _ float32) ([]model.Detection, error) {
	n := e.started.Add(1)
	time.Sleep(e.delay)
	if n == e.failOn {
		return nil, assert.AnError
	}
	return []model.Detection{{Label: model.Person, Confidence: 0.9, Box: model.Box{X1: 10, Y1: 10, X2: 20, Y2: 20}}}, nil
}

// recordingDisplay remembers which frames it showed and how many inferences
// had started at that moment.
type recordingDisplay struct {
	mu        sync.Mutex
	engine    *slowEngine
	seqs      []uint8
	started   []int32
	keys      []int
	maskShown int
}

func (d *recordingDisplay) Show(frame gocv.Mat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seqs = append(d.seqs, frame.GetUCharAt(120, 160*3))
	d.started = append(d.started, d.engine.started.Load())
}

func (d *recordingDisplay) ShowMask(gocv.Mat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maskShown++
}

func (d *recordingDisplay) PollKey() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.keys) == 0 {
		return -1
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

func (d *recordingDisplay) Close() error { return nil }

type countingLog struct{ lines atomic.Int32 }

func (c *countingLog) Append(time.Time, *model.DetectionResult) error {
	c.lines.Add(1)
	return nil
}

type harness struct {
	loop    *Loop
	unit    *capture.Unit
	queue   *detection.Queue
	results *detection.ResultStore
	display *recordingDisplay
	engine  *slowEngine
	ctrl    *Controller
	detLog  *countingLog
}

func newHarness(t *testing.T, frames int, interval, inference time.Duration) *harness {
	t.Helper()
	h := &harness{
		unit:    capture.NewUnit(&pacedSource{frames: frames, interval: interval}, logger.Discard()),
		queue:   detection.NewQueue(),
		results: detection.NewResultStore(),
		engine:  &slowEngine{delay: inference},
		ctrl:    NewController(defaultState(), logger.Discard()),
		detLog:  &countingLog{},
	}
	h.display = &recordingDisplay{engine: h.engine}
	worker := detection.NewWorker(h.queue, h.engine, h.results, detection.WorkerConfig{Scale: 1}, logger.Discard())
	h.loop = NewLoop(LoopConfig{StartupTimeout: time.Second, FrameSkip: 2}, LoopDeps{
		Unit:       h.unit,
		Controller: h.ctrl,
		Queue:      h.queue,
		Results:    h.results,
		Renderer:   overlay.NewRenderer(0),
		Display:    h.display,
		Log:        h.detLog,
	}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
	t.Cleanup(func() {
		h.unit.Stop()
		cancel()
		wg.Wait()
	})
	return h
}

func TestLoop_RendersEveryFrameWhileDetectionLags(t *testing.T) {
	const interval = 40 * time.Millisecond
	h := newHarness(t, 10, interval, 5*interval)

	require.NoError(t, h.unit.Start())
	err := h.loop.Run(context.Background())
	assert.ErrorIs(t, err, capture.ErrDeviceRead)

	h.display.mu.Lock()
	defer h.display.mu.Unlock()
	require.Len(t, h.display.seqs, 10)
	for i, v := range h.display.seqs {
		assert.Equal(t, uint8(i+1), v, "frame %d shown in order", i+1)
	}
	assert.LessOrEqual(t, h.display.started[9], int32(2), "inferences started by the 10th frame")
	assert.Equal(t, uint64(10), h.loop.Stats().Rendered)
	assert.Greater(t, h.detLog.lines.Load(), int32(0))
}

func TestLoop_EngineFailureKeepsRendering(t *testing.T) {
	const interval = 20 * time.Millisecond
	h := newHarness(t, 12, interval, interval)
	h.engine.failOn = 1

	require.NoError(t, h.unit.Start())
	assert.ErrorIs(t, h.loop.Run(context.Background()), capture.ErrDeviceRead)

	h.display.mu.Lock()
	assert.Len(t, h.display.seqs, 12)
	h.display.mu.Unlock()
	assert.GreaterOrEqual(t, h.engine.started.Load(), int32(2), "worker survived the failure")
	assert.False(t, h.results.Latest().Failed)
}

func TestLoop_FastModeSubmitsEveryNthFrame(t *testing.T) {
	h := newHarness(t, 10, 15*time.Millisecond, time.Millisecond)
	h.ctrl.Execute(CmdToggleFastMode)

	require.NoError(t, h.unit.Start())
	assert.ErrorIs(t, h.loop.Run(context.Background()), capture.ErrDeviceRead)
	assert.Equal(t, uint64(5), h.loop.Stats().Submitted)
}

func TestLoop_QuitKeyStops(t *testing.T) {
	h := newHarness(t, 100, 5*time.Millisecond, time.Millisecond)
	h.display.keys = []int{-1, 'b', 'q'}

	require.NoError(t, h.unit.Start())
	require.NoError(t, h.loop.Run(context.Background()))

	assert.True(t, h.ctrl.State().SoundOn())
	assert.Equal(t, uint64(3), h.loop.Stats().Rendered)
}

func TestLoop_NoFrameAtStartup(t *testing.T) {
	h := newHarness(t, 0, time.Millisecond, time.Millisecond)
	require.NoError(t, h.unit.Start())
	assert.ErrorIs(t, h.loop.Run(context.Background()), capture.ErrNoFrame)
}

func TestLoop_ContextCancelIsClean(t *testing.T) {
	h := newHarness(t, 1000, 5*time.Millisecond, time.Millisecond)
	require.NoError(t, h.unit.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, h.loop.Run(ctx))
}

type brokenMask struct{ calls atomic.Int32 }

func (m *brokenMask) Apply(gocv.Mat, int) (gocv.Mat, gocv.Mat, error) {
	m.calls.Add(1)
	return gocv.NewMat(), gocv.NewMat(), errors.Wrap(assert.AnError, "motion mask: background model")
}

func TestLoop_MaskFailureLogsFullError(t *testing.T) {
	h := newHarness(t, 4, 10*time.Millisecond, time.Millisecond)
	mask := &brokenMask{}
	var buf bytes.Buffer
	h.loop.d.Mask = mask
	h.loop.log = logger.NewWriter(&buf)
	h.ctrl.state.mu.Lock()
	h.ctrl.state.s.MotionMask = true
	h.ctrl.state.mu.Unlock()

	require.NoError(t, h.unit.Start())
	assert.ErrorIs(t, h.loop.Run(context.Background()), capture.ErrDeviceRead)

	assert.Equal(t, int32(4), mask.calls.Load())
	assert.Equal(t, uint64(4), h.loop.Stats().Submitted, "unmasked frame still goes to detection")
	assert.Contains(t, buf.String(), "Motion mask failed: motion mask: background model: "+assert.AnError.Error())
}
