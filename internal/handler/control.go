package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"camwatch/internal/dto"
	"camwatch/internal/logger"
	"camwatch/internal/service/pipeline"
)

// ControlHandler applies the command named by ?cmd= (GET or POST) and
// returns the resulting state with its status message. With ?value= the cmd
// names a setting instead ("brightness", "contrast", "gamma", "sensitivity")
// that is set to the clamped absolute value.
func ControlHandler(ctrl *pipeline.Controller, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		name := r.URL.Query().Get("cmd")
		if name == "" {
			name = r.FormValue("cmd")
		}
		raw := r.URL.Query().Get("value")
		if raw == "" {
			raw = r.FormValue("value")
		}
		if raw != "" {
			setValue(w, ctrl, name, raw, logger)
			return
		}

		cmd, ok := pipeline.ParseCommand(name)
		if !ok {
			http.Error(w, "Unknown command: "+name, http.StatusBadRequest)
			return
		}

		label := ctrl.Execute(cmd)
		writeJSON(w, http.StatusOK, dto.ControlResponse{
			Command: cmd.String(),
			Label:   label,
			State:   ctrl.State().Snapshot(),
		}, logger)
	}
}

func setValue(w http.ResponseWriter, ctrl *pipeline.Controller, name, raw string, logger *logger.Logger) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		http.Error(w, "Invalid value: "+raw, http.StatusBadRequest)
		return
	}
	label, err := ctrl.Set(name, v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, dto.ControlResponse{
		Command: name,
		Label:   label,
		State:   ctrl.State().Snapshot(),
	}, logger)
}

// StatusHandler reports the pipeline status built by status.
func StatusHandler(status func() dto.StatusResponse, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, status(), logger)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
