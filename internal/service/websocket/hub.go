package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"camwatch/internal/dto"
	"camwatch/internal/logger"
	"camwatch/internal/model"
	"camwatch/internal/service/pipeline"
)

const (
	writeWait      = 2 * time.Second
	broadcastQueue = 16
)

// HubService pushes detection events to connected viewers. Broadcast never
// blocks: when the hub falls behind, messages are dropped.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopped    chan struct{}
	mutex      sync.RWMutex
	camera     string
	logger     *logger.Logger
}

func NewHubService(camera string, logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopped:    make(chan struct{}),
		camera:     camera,
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx ends, then closes every
// client. Call it once.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", n)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", n)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warning("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register adds a viewer. It returns false once the hub has stopped.
func (h *HubService) Register(ctx context.Context, client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	case <-h.stopped:
		return false
	}
}

// Unregister removes a viewer. It returns at once when the hub has stopped,
// since Run already closed every client.
func (h *HubService) Unregister(ctx context.Context, client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-ctx.Done():
	case <-h.stopped:
	}
}

// Stopped is closed when Run has returned.
func (h *HubService) Stopped() <-chan struct{} {
	return h.stopped
}

// Broadcast queues message for every viewer; it reports false when the
// message was dropped.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		return false
	}
}

// Feed forwards every result from results as a JSON detection event.
func (h *HubService) Feed(ctx context.Context, results <-chan *model.DetectionResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-results:
			if h.GetClientCount() == 0 {
				continue
			}
			msg, err := json.Marshal(dto.NewDetectionEvent(h.camera, res))
			if err != nil {
				h.logger.Error("Error encoding detection event: %v", err)
				continue
			}
			h.Broadcast(msg)
		}
	}
}

// PublishState pushes a control change to viewers. It suits
// Controller.OnChange and never blocks.
func (h *HubService) PublishState(change string, s pipeline.Settings) {
	if h.GetClientCount() == 0 {
		return
	}
	msg, err := json.Marshal(dto.NewStateEvent(h.camera, change, s))
	if err != nil {
		h.logger.Error("Error encoding state event: %v", err)
		return
	}
	h.Broadcast(msg)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
