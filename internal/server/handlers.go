package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/desertwitch/netwatch/internal/config"
	"github.com/desertwitch/netwatch/internal/devices"
)

func (s *Server) devicesJSONPath() string {
	return filepath.Join(s.dataDir, "devices.json")
}

// handleGetSettings returns the persisted {web_port, ping_interval} subset.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.conf.SettingsSnapshot())
}

// handlePostSettings validates and saves a new settings subset.
func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, resultResponse{Result: "error"})

		return
	}

	if !s.conf.UpdateSettings(settings) {
		writeJSON(w, http.StatusOK, resultResponse{Result: "error"})

		return
	}

	if err := s.conf.Save(s.fsys, filepath.Join(s.dataDir, "config.json")); err != nil {
		if s.logger != nil {
			s.logger.Printf("failure saving configuration: %v", err)
		}
		writeJSON(w, http.StatusInternalServerError, resultResponse{Result: "error"})

		return
	}

	writeJSON(w, http.StatusOK, resultResponse{Result: "ok"})
}

// handleGetDevices returns the full list of configured devices.
func (s *Server) handleGetDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Confs())
}

// handlePostDevice assigns a new device id, appends the device, and
// persists the updated list.
func (s *Server) handlePostDevice(w http.ResponseWriter, r *http.Request) {
	var conf devices.DeviceConf
	if err := json.NewDecoder(r.Body).Decode(&conf); err != nil {
		writeJSON(w, http.StatusBadRequest, resultResponse{Result: "error"})

		return
	}

	conf.ID = s.registry.NewDeviceID()
	s.registry.Add(conf)

	if err := s.registry.Save(s.fsys, s.devicesJSONPath()); err != nil {
		if s.logger != nil {
			s.logger.Printf("failure saving devices: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, conf)
}

// handleDeleteDevice removes a device by id and persists the updated list.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]

	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, resultResponse{Result: "error"})

		return
	}

	if err := s.registry.Remove(uint32(id)); err != nil {
		writeJSON(w, http.StatusNotFound, resultResponse{Result: "error"})

		return
	}

	if err := s.registry.Save(s.fsys, s.devicesJSONPath()); err != nil {
		if s.logger != nil {
			s.logger.Printf("failure saving devices: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, resultResponse{Result: "ok"})
}
