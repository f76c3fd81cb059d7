package pipeline

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/service/capture"
	"camwatch/internal/service/detection"
	"camwatch/internal/service/imaging"
	"camwatch/internal/service/overlay"
)

// FrameSink receives every rendered frame. It must not block or keep frame.
type FrameSink interface {
	PublishFrame(frame gocv.Mat)
}

// ResultLog records detection counts.
type ResultLog interface {
	Append(at time.Time, res *model.DetectionResult) error
}

// Masker blanks the static background of a frame. *imaging.MotionMask
// implements it.
type Masker interface {
	Apply(src gocv.Mat, sensitivity int) (masked gocv.Mat, fg gocv.Mat, err error)
}

// LoopConfig tunes the render loop.
type LoopConfig struct {
	StartupTimeout time.Duration
	// FrameSkip submits only every Nth frame in fast mode.
	FrameSkip int
}

// LoopDeps are the loop's collaborators. Mask, Log and Sinks are optional.
type LoopDeps struct {
	Unit       *capture.Unit
	Controller *Controller
	Queue      *detection.Queue
	Results    *detection.ResultStore
	Renderer   *overlay.Renderer
	Alerter    *Alerter
	Display    Display
	Mask       Masker
	Log        ResultLog
	Sinks      []FrameSink
}

// LoopStats counts render cycles.
type LoopStats struct {
	Rendered  uint64  `json:"rendered"`
	Submitted uint64  `json:"submitted"`
	FPS       float64 `json:"fps"`
}

// Loop is the render/control loop: one iteration per displayed frame.
type Loop struct {
	cfg         LoopConfig
	d           LoopDeps
	log         *logger.Logger
	transformer *imaging.Transformer
	fps         *overlay.FPSMeter
	now         func() time.Time

	cycle       uint64
	rendered    atomic.Uint64
	submitted   atomic.Uint64
	lastFPS     atomic.Uint64 // float64 bits
	logFailures int
}

// NewLoop builds a loop.
func NewLoop(cfg LoopConfig, deps LoopDeps, log *logger.Logger) *Loop {
	if cfg.FrameSkip < 1 {
		cfg.FrameSkip = 1
	}
	if deps.Display == nil {
		deps.Display = HeadlessDisplay{}
	}
	return &Loop{
		cfg:         cfg,
		d:           deps,
		log:         log,
		transformer: imaging.NewTransformer(),
		fps:         overlay.NewFPSMeter(0.1),
		now:         time.Now,
	}
}

// Run blocks until ctx ends, a quit command arrives or capture fails. Only a
// capture failure is returned as an error.
func (l *Loop) Run(ctx context.Context) error {
	defer l.transformer.Close()

	if err := l.d.Unit.WaitFirstFrame(ctx, l.cfg.StartupTimeout); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	l.log.Info("First frame received, render loop running")

	updated := l.d.Unit.Buffer().Updated()
	quit := l.d.Controller.Quit()
	for {
		// a quit from the previous step wins over a pending frame
		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		case <-l.d.Unit.Done():
			select {
			case <-updated:
				l.step()
			default:
			}
			if err := l.d.Unit.Err(); err != nil {
				return err
			}
			return nil
		case <-updated:
		}
		l.step()
	}
}

func (l *Loop) step() {
	f, ok := l.d.Unit.Read()
	if !ok {
		return
	}
	defer f.Close()

	now := l.now()
	settings := l.d.Controller.State().Snapshot()

	view, err := l.transformer.Apply(f.Mat, settings.Adjustments())
	if err != nil {
		view.Close()
		l.log.Warning("Transform failed on frame %d: %v", f.Seq, err)
		return
	}
	defer view.Close()

	fg := l.submit(f, view, settings)
	if fg != nil {
		defer fg.Close()
	}

	res := l.d.Results.Latest()
	fps := l.fps.Tick(f.Timestamp)
	l.lastFPS.Store(math.Float64bits(fps))

	if !res.Empty() && l.d.Log != nil {
		if err := l.d.Log.Append(now, res); err != nil && l.logFailures < 3 {
			l.logFailures++
			l.log.Warning("Detection log write failed: %v", err)
		}
	}
	if l.d.Alerter != nil {
		l.d.Alerter.Observe(view, res, now)
	}

	info := overlay.Info{
		FPS:     fps,
		Now:     now,
		Mode:    settings.ModeName,
		Notices: l.d.Controller.State().Notices(now),
	}
	if settings.ShowHelp {
		info.HelpText = HelpLines()
	}
	if err := l.d.Renderer.Render(&view, res, info); err != nil {
		l.log.Warning("Overlay failed on frame %d: %v", f.Seq, err)
	}

	l.d.Display.Show(view)
	if settings.ShowMask && fg != nil {
		l.d.Display.ShowMask(*fg)
	}
	for _, s := range l.d.Sinks {
		s.PublishFrame(view)
	}
	l.rendered.Add(1)

	if cmd := CommandForKey(l.d.Display.PollKey()); cmd != CmdNone {
		l.d.Controller.Execute(cmd)
	}
}

// submit hands a detection input to the queue, honoring fast mode. It returns
// the foreground mask when the motion mask ran.
func (l *Loop) submit(f *capture.Frame, view gocv.Mat, settings Settings) *gocv.Mat {
	l.cycle++
	useMask := l.d.Mask != nil && settings.MotionMask
	send := !settings.FastMode || l.cycle%uint64(l.cfg.FrameSkip) == 0

	var input gocv.Mat
	var fg *gocv.Mat
	if useMask {
		masked, mask, err := l.d.Mask.Apply(view, settings.Sensitivity)
		if err != nil {
			l.log.Warning("Motion mask failed: %v", err)
			masked.Close()
			mask.Close()
			input = view.Clone()
		} else {
			input = masked
			fg = &mask
		}
	} else if send {
		input = view.Clone()
	}

	if !send {
		if useMask {
			input.Close()
		}
		return fg
	}
	l.d.Queue.Submit(capture.NewFrame(input, f.Seq, f.Timestamp))
	l.submitted.Add(1)
	return fg
}

// Stats returns loop counters.
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Rendered:  l.rendered.Load(),
		Submitted: l.submitted.Load(),
		FPS:       math.Float64frombits(l.lastFPS.Load()),
	}
}
