// internal/server/routes.go
package server

import "net/http"

func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /api/devices", cors(s.handleDevices))
	s.router.HandleFunc("POST /api/devices/{address}/open", cors(s.handleOpen))
	s.router.HandleFunc("POST /api/devices/{address}/close", cors(s.handleClose))

	s.router.HandleFunc("POST /api/scan/start", cors(s.handleScanStart))
	s.router.HandleFunc("POST /api/scan/stop", cors(s.handleScanStop))

	s.router.HandleFunc("POST /api/calibration/{kind}", cors(s.handleCalibration))
	s.router.HandleFunc("POST /api/rate", cors(s.handleRate))
	s.router.HandleFunc("POST /api/diagnostic", cors(s.handleDiagnostic))

	s.router.HandleFunc("GET /api/view", cors(s.handleView))

	if s.ws != nil {
		s.router.Handle("GET /ws", s.ws)
	}
}

func cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next(w, r)
	}
}
