package route

import (
	"net/http"
	"os"
	"path/filepath"

	"camwatch/internal/dto"
	"camwatch/internal/handler"
	"camwatch/internal/logger"
	"camwatch/internal/middleware"
	"camwatch/internal/service/pipeline"
	"camwatch/internal/service/stream"
	"camwatch/internal/service/websocket"
)

// StaticDir holds the optional web UI.
const StaticDir = "static"

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join(StaticDir, filepath.Clean("/"+path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// Deps are the services the routes expose.
type Deps struct {
	Token        string
	Controller   *pipeline.Controller
	Status       func() dto.StatusResponse
	Stream       *stream.Publisher
	Hub          *websocket.HubService
	Gallery      handler.GalleryDeps
	LogDirectory string
	DetectionLog *logger.DetectionLog
	Logger       *logger.Logger
}

// SetupRoutes registers HTTP routes, static file serving and API endpoints.
// Endpoints that change state require the control token.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.Handler { return middleware.TokenAuthFunc(d.Token, h) }

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(StaticDir))))

	// Live outputs
	mux.Handle("/video_feed", d.Stream)
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(d.Hub, d.Logger))

	// Control surface
	mux.Handle("/api/control", auth(handler.ControlHandler(d.Controller, d.Logger)))
	mux.HandleFunc("/api/status", handler.StatusHandler(d.Status, d.Logger))

	// Snapshot history
	mux.HandleFunc("/api/snapshots", handler.GetSnapshotsHandler(d.Gallery))
	mux.HandleFunc("/api/snapshots/view", handler.ViewSnapshotHandler(d.Gallery))
	mux.HandleFunc("/api/snapshots/thumb", handler.ThumbSnapshotHandler(d.Gallery))
	mux.HandleFunc("/api/snapshots/stats", handler.SnapshotStatsHandler(d.Gallery))
	mux.Handle("/api/snapshots/delete", auth(handler.DeleteSnapshotHandler(d.Gallery)))
	mux.Handle("/api/snapshots/clear", auth(handler.ClearSnapshotsHandler(d.Gallery)))

	// Log endpoints
	for level, file := range map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	} {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(d.LogDirectory, file))
		mux.Handle("/logs/"+level+"/clear", auth(handler.ClearLogsHandler(d.Logger, file)))
	}
	if d.DetectionLog != nil {
		mux.HandleFunc("/logs/detections", handler.ShowDetectionLogHandler(d.DetectionLog))
		mux.Handle("/logs/detections/clear", auth(handler.ClearDetectionLogHandler(d.DetectionLog, d.Logger)))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(d.Token, d.Logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	return mux
}
