package detection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/service/capture"
)

// WorkerConfig tunes inference.
type WorkerConfig struct {
	Classes   []model.Label
	Threshold float32
	// Scale downsizes frames before inference; boxes are mapped back.
	Scale    float64
	Tracking bool
}

// WorkerStats is a snapshot of worker counters.
type WorkerStats struct {
	Processed uint64        `json:"processed"`
	Failed    uint64        `json:"failed"`
	InFlight  int32         `json:"inFlight"`
	LastTook  time.Duration `json:"lastTookNs"`
}

// Worker takes frames from a Queue, runs the engine and publishes results.
// Only one inference is in flight at a time.
type Worker struct {
	queue   *Queue
	engine  Engine
	results *ResultStore
	log     *logger.Logger
	cfg     WorkerConfig
	tracker *Tracker
	now     func() time.Time

	inFlight  atomic.Int32
	processed atomic.Uint64
	failed    atomic.Uint64
	lastTook  atomic.Int64

	mu       sync.Mutex
	tracking bool
}

// NewWorker wires a worker. results may be shared with readers.
func NewWorker(q *Queue, engine Engine, results *ResultStore, cfg WorkerConfig, log *logger.Logger) *Worker {
	return &Worker{
		queue:    q,
		engine:   engine,
		results:  results,
		log:      log,
		cfg:      cfg,
		tracker:  NewTracker(),
		tracking: cfg.Tracking,
		now:      time.Now,
	}
}

// SetTracking toggles track id assignment.
func (w *Worker) SetTracking(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracking = on
}

// Run processes frames until the queue is closed or ctx ends.
func (w *Worker) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, w.queue.Close)
	defer stop()

	for {
		f, ok := w.queue.Take()
		if !ok {
			return
		}
		w.process(ctx, f)
	}
}

func (w *Worker) process(ctx context.Context, f *capture.Frame) {
	defer f.Close()

	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	start := w.now()
	dets, err := w.detect(ctx, f)
	w.lastTook.Store(int64(w.now().Sub(start)))
	w.processed.Add(1)

	res := &model.DetectionResult{Seq: f.Seq, Timestamp: f.Timestamp}
	if err != nil {
		w.failed.Add(1)
		w.log.Error("Detection failed on frame %d: %v", f.Seq, err)
		res.Failed = true
		w.results.Publish(res)
		return
	}

	w.mu.Lock()
	tracking := w.tracking
	w.mu.Unlock()
	if tracking {
		w.tracker.Update(dets)
	}
	res.Detections = dets
	w.results.Publish(res)
}

// detect runs the engine on a possibly downscaled copy, converting panics into errors.
func (w *Worker) detect(ctx context.Context, f *capture.Frame) (dets []model.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("engine panic: %v", fmt.Sprint(r))
		}
	}()

	small := Downscale(f.Mat, w.cfg.Scale)
	defer small.Close()

	dets, err = w.engine.Detect(ctx, small, w.cfg.Classes, w.cfg.Threshold)
	if err != nil {
		return nil, errors.Wrap(err, "engine")
	}
	RescaleDetections(dets, w.cfg.Scale)
	return dets, nil
}

// Stats returns the counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		InFlight:  w.inFlight.Load(),
		LastTook:  time.Duration(w.lastTook.Load()),
	}
}
