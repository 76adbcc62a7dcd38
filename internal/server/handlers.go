// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/app"
	"github.com/tamzrod/imu-bridge/internal/calibration"
)

type errorResponse struct {
	Error string `json:"error"`
}

type scanResponse struct {
	Scanning bool `json:"scanning"`
}

type batchResponse struct {
	Summary string               `json:"summary"`
	Results []calibration.Result `json:"results"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) deviceError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrUnknownDevice) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctl.Devices())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.OpenDevice(r.Context(), r.PathValue("address")); err != nil {
		s.deviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctl.Devices())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.CloseDevice(r.PathValue("address")); err != nil {
		s.deviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctl.Devices())
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	s.ctl.StartScan(s.base)
	s.writeJSON(w, http.StatusOK, scanResponse{Scanning: s.ctl.Scanning()})
}

func (s *Server) handleScanStop(w http.ResponseWriter, r *http.Request) {
	s.ctl.StopScan()
	s.writeJSON(w, http.StatusOK, scanResponse{Scanning: s.ctl.Scanning()})
}

// Batch handlers detach from the request so a client hanging up does not
// cut a batch short for the devices it has not reached yet.

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	kind, err := calibration.ParseKind(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	results := s.ctl.RunCalibration(context.WithoutCancel(r.Context()), kind)
	s.writeJSON(w, http.StatusOK, batchResponse{Summary: calibration.Summary(results), Results: results})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	hz, err := strconv.ParseFloat(r.URL.Query().Get("hz"), 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("hz: expected a number"))
		return
	}
	results, err := s.ctl.SetOutputRate(context.WithoutCancel(r.Context()), hz)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batchResponse{Summary: calibration.Summary(results), Results: results})
}

func (s *Server) handleDiagnostic(w http.ResponseWriter, r *http.Request) {
	results := s.ctl.ReadDiagnostic(context.WithoutCancel(r.Context()))
	s.writeJSON(w, http.StatusOK, batchResponse{Summary: calibration.Summary(results), Results: results})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctl.View())
}
