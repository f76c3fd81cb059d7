package dto

import (
	"camwatch/internal/service/alert"
	"camwatch/internal/service/detection"
	"camwatch/internal/service/pipeline"
)

// ControlResponse answers /api/control.
type ControlResponse struct {
	Command string            `json:"command"`
	Label   string            `json:"label"`
	State   pipeline.Settings `json:"state"`
}

// StateEvent is pushed to live viewers after every control change.
type StateEvent struct {
	Type   string            `json:"type"`
	Camera string            `json:"camera"`
	Change string            `json:"change"`
	State  pipeline.Settings `json:"state"`
}

func NewStateEvent(camera, change string, s pipeline.Settings) StateEvent {
	return StateEvent{Type: "state", Camera: camera, Change: change, State: s}
}

// StatusResponse answers /api/status.
type StatusResponse struct {
	Camera   string                `json:"camera"`
	Uptime   string                `json:"uptime"`
	Frames   uint64                `json:"frames"`
	State    pipeline.Settings     `json:"state"`
	Notices  []string              `json:"notices"`
	Gates    pipeline.GateStatus   `json:"gates"`
	Queue    detection.QueueStats  `json:"queue"`
	Worker   detection.WorkerStats `json:"worker"`
	Loop     pipeline.LoopStats    `json:"loop"`
	Alerts   alert.DispatcherStats `json:"alerts"`
	Viewers  int                   `json:"viewers"`
	Commands []string              `json:"commands"`
}
