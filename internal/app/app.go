package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"camwatch/internal/config"
	"camwatch/internal/dto"
	"camwatch/internal/handler"
	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/repository/sqlite"
	"camwatch/internal/route"
	"camwatch/internal/service/alert"
	"camwatch/internal/service/capture"
	"camwatch/internal/service/detection"
	"camwatch/internal/service/imaging"
	"camwatch/internal/service/overlay"
	"camwatch/internal/service/pipeline"
	"camwatch/internal/service/storage"
	"camwatch/internal/service/stream"
	"camwatch/internal/service/websocket"
)

// janitorInterval is how often the snapshot directory is pruned.
const janitorInterval = time.Minute

// App owns every component and their lifecycle.
type App struct {
	config  *config.Config
	logger  *logger.Logger
	started time.Time

	db           *sqlite.DB
	detectionLog *logger.DetectionLog
	store        *storage.SnapshotStore

	unit    *capture.Unit
	engine  *detection.DNNEngine
	queue   *detection.Queue
	results *detection.ResultStore
	worker  *detection.Worker
	events  <-chan *model.DetectionResult

	controller *pipeline.Controller
	alerter    *pipeline.Alerter
	mask       *imaging.MotionMask
	display    pipeline.Display
	loop       *pipeline.Loop

	dispatcher *alert.Dispatcher
	closers    []func()

	hub    *websocket.HubService
	stream *stream.Publisher
	server *http.Server
}

// NewApp builds the application from cfg. Nothing runs until Run.
func NewApp(cfg *config.Config) (a *App, err error) {
	log, err := logger.New(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}
	a = &App{config: cfg, logger: log}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	if a.db, err = sqlite.New(cfg.DBPath); err != nil {
		return nil, errors.Wrap(err, "open snapshot index")
	}
	if a.detectionLog, err = logger.OpenDetectionLog(cfg.DetectionLog); err != nil {
		return nil, err
	}
	snapshots := sqlite.NewSnapshotRepository(a.db)
	a.store = storage.NewSnapshotStore(cfg.ImageDirectory, cfg.CameraName, cfg.ThumbWidth, snapshots, log)

	// detection
	classes, unknown := model.ParseLabels(cfg.Classes)
	for _, name := range unknown {
		log.Warning("Ignoring unknown detection class %q", name)
	}
	if len(classes) == 0 {
		return nil, errors.New("no valid detection classes configured")
	}
	if a.engine, err = detection.NewDNNEngine(cfg.ModelPath, cfg.ConfigPath, log); err != nil {
		return nil, err
	}
	a.queue = detection.NewQueue()
	a.results = detection.NewResultStore()
	a.events = a.results.Subscribe(8)
	a.worker = detection.NewWorker(a.queue, a.engine, a.results, detection.WorkerConfig{
		Classes:   classes,
		Threshold: float32(cfg.Confidence),
		Scale:     cfg.DetectScale,
		Tracking:  cfg.Tracking,
	}, log)

	// capture
	src, err := capture.Open(capture.DeviceOptions{
		Device: cfg.CameraDevice,
		Width:  cfg.CameraWidth,
		Height: cfg.CameraHeight,
		FPS:    cfg.CameraFPS,

		IdleTimeout: cfg.IdleTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.unit = capture.NewUnit(src, log)

	// control + alerting
	state := pipeline.NewState(pipeline.Settings{
		Brightness:    cfg.Brightness,
		BrightnessMin: cfg.BrightnessMin,
		BrightnessMax: cfg.BrightnessMax,
		Contrast:      cfg.Contrast,
		Gamma:         cfg.Gamma,
		Sensitivity:   cfg.Sensitivity,
		MotionMask:    cfg.MotionMask,
		SoundOn:       cfg.SoundEnabled,
		NotifyOn:      cfg.NotifyEnabled,
		Tracking:      cfg.Tracking,
	}, cfg.MessageTTL)
	a.controller = pipeline.NewController(state, log)
	a.controller.OnChange(func(_ string, s pipeline.Settings) {
		a.worker.SetTracking(s.Tracking)
	})

	a.dispatcher = alert.NewDispatcher(context.Background(), alert.DefaultTaskTimeout, log)
	a.alerter = pipeline.NewAlerter(state, cfg.SnapshotCooldown, cfg.SoundCooldown, pipeline.AlerterDeps{
		Saver:    a.store,
		Notifier: a.buildNotifier(state),
		Player:   a.buildPlayer(),
		Tasks:    a.dispatcher,
	}, log)

	// outputs
	a.hub = websocket.NewHubService(cfg.CameraName, log)
	a.controller.OnChange(a.hub.PublishState)
	a.stream = stream.NewPublisher(log)
	a.mask = imaging.NewMotionMask(state.Snapshot().Sensitivity)
	if cfg.ShowWindow {
		a.display = pipeline.NewWindowDisplay("camwatch - " + cfg.CameraName)
	} else {
		a.display = pipeline.HeadlessDisplay{}
	}

	a.loop = pipeline.NewLoop(pipeline.LoopConfig{
		StartupTimeout: cfg.StartupTimeout,
		FrameSkip:      cfg.FrameSkip,
	}, pipeline.LoopDeps{
		Unit:       a.unit,
		Controller: a.controller,
		Queue:      a.queue,
		Results:    a.results,
		Renderer:   overlay.NewRenderer(cfg.MinBoxArea),
		Alerter:    a.alerter,
		Display:    a.display,
		Mask:       a.mask,
		Log:        a.detectionLog,
		Sinks:      []pipeline.FrameSink{a.stream},
	}, log)

	a.server = &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: route.SetupRoutes(route.Deps{
			Token:      cfg.ControlToken,
			Controller: a.controller,
			Status:     a.Status,
			Stream:     a.stream,
			Hub:        a.hub,
			Gallery: handler.GalleryDeps{
				Store:        a.store,
				Snapshots:    snapshots,
				Detections:   sqlite.NewDetectionRepository(a.db),
				MaxSizeBytes: cfg.MaxImageDirGB << 30,
				Logger:       log,
			},
			LogDirectory: cfg.LogDirectory,
			DetectionLog: a.detectionLog,
			Logger:       log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// buildNotifier composes the configured sinks behind the runtime notify toggle.
func (a *App) buildNotifier(state *pipeline.State) pipeline.Notifier {
	cfg, log := a.config, a.logger
	var sinks alert.MultiNotifier

	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, alert.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
		log.Info("Telegram notifications enabled for chat %s", cfg.TelegramChatID)
	}
	if cfg.MQTTBroker != "" {
		n, err := alert.NewMQTTNotifier(alert.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
			Camera:   cfg.CameraName,
		}, log)
		if err != nil {
			log.Error("MQTT notifications disabled: %v", err)
		} else {
			sinks = append(sinks, n)
			a.closers = append(a.closers, n.Close)
		}
	}
	if cfg.KafkaBrokers != "" {
		n, err := alert.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.CameraName, log)
		if err != nil {
			log.Error("Kafka notifications disabled: %v", err)
		} else {
			sinks = append(sinks, n)
			a.closers = append(a.closers, n.Close)
		}
	}

	if len(sinks) == 0 {
		log.Warning("No notification sinks configured, snapshots are only stored")
		return nil
	}
	return alert.NewSwitch(sinks, state.NotifyOn, log)
}

func (a *App) buildPlayer() pipeline.Player {
	p, err := alert.NewCommandPlayer(a.config.SoundCommand, a.config.SoundFile)
	if err != nil {
		a.logger.Warning("Alert sound disabled: %v", err)
		return nil
	}
	return p
}

// Run starts every component and blocks until ctx ends, a quit command
// arrives or the camera fails. Only a camera failure is returned.
func (a *App) Run(ctx context.Context) error {
	a.started = time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.unit.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.worker.Run(ctx)
	}()
	for _, fn := range []func(context.Context){
		a.hub.Run,
		a.stream.Run,
		func(ctx context.Context) { a.hub.Feed(ctx, a.events) },
		func(ctx context.Context) { a.store.RunJanitor(ctx, janitorInterval, a.config.MaxImageDirGB<<30) },
	} {
		wg.Add(1)
		go func(fn func(context.Context)) {
			defer wg.Done()
			fn(ctx)
		}(fn)
	}

	go func() {
		a.logger.Info("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed: %v", err)
		}
	}()

	fmt.Printf("🚀 camwatch\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("📷 Camera: %s (%s)\n", a.config.CameraName, a.config.CameraDevice)
	fmt.Printf("📁 Snapshots: %s\n", a.config.ImageDirectory)
	fmt.Printf("🤖 AI Model: %s\n", a.config.ModelPath)

	runErr := a.loop.Run(ctx)
	if runErr != nil {
		a.logger.Error("Pipeline stopped: %v", runErr)
	}

	a.shutdown(cancel, workerDone, &wg)
	return runErr
}

// shutdown stops producers before consumers, waits a bounded time for alert
// tasks, then releases devices and files.
func (a *App) shutdown(cancel context.CancelFunc, workerDone <-chan struct{}, wg *sync.WaitGroup) {
	grace := a.config.ShutdownGrace
	a.logger.Info("Shutting down")

	if err := a.unit.Stop(); err != nil {
		a.logger.Warning("Closing camera: %v", err)
	}
	a.queue.Close()
	cancel()
	<-workerDone

	if !a.dispatcher.Wait(grace) {
		a.logger.Warning("Abandoned unfinished alert tasks")
	}

	ctx, stop := context.WithTimeout(context.Background(), grace)
	defer stop()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}
	wg.Wait()

	a.release()
}

// release closes whatever was opened, in reverse order of construction.
func (a *App) release() {
	if a.display != nil {
		a.display.Close()
	}
	if a.mask != nil {
		a.mask.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.unit != nil {
		a.unit.Stop()
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.detectionLog != nil {
		a.detectionLog.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.logger.Info("Shutdown complete")
	a.logger.Close()
}

// Status reports the pipeline state for /api/status.
func (a *App) Status() dto.StatusResponse {
	now := time.Now()
	state := a.controller.State()
	notices := state.Notices(now)
	if notices == nil {
		notices = []string{}
	}
	return dto.StatusResponse{
		Camera:   a.config.CameraName,
		Uptime:   now.Sub(a.started).Truncate(time.Second).String(),
		Frames:   a.unit.Frames(),
		State:    state.Snapshot(),
		Notices:  notices,
		Gates:    a.alerter.Status(now),
		Queue:    a.queue.Stats(),
		Worker:   a.worker.Stats(),
		Loop:     a.loop.Stats(),
		Alerts:   a.dispatcher.Stats(),
		Viewers:  a.hub.GetClientCount(),
		Commands: pipeline.CommandNames(),
	}
}
