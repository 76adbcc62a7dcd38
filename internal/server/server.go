// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/app"
	"github.com/tamzrod/imu-bridge/internal/calibration"
	"github.com/tamzrod/imu-bridge/internal/poller"
)

const shutdownTimeout = 5 * time.Second

// Controller is the part of the app the HTTP surface drives.
type Controller interface {
	StartScan(ctx context.Context)
	StopScan()
	Scanning() bool
	OpenDevice(ctx context.Context, address string) error
	CloseDevice(address string) error
	RunCalibration(ctx context.Context, kind calibration.Kind) []calibration.Result
	SetOutputRate(ctx context.Context, hz float64) ([]calibration.Result, error)
	ReadDiagnostic(ctx context.Context) []calibration.Result
	View() poller.View
	Devices() []app.DeviceInfo
}

type Server struct {
	ctl    Controller
	ws     http.Handler
	log    *zap.Logger
	router *http.ServeMux

	// base outlives requests; scans started over HTTP run under it.
	base context.Context
}

// New builds the server. ws may be nil to disable the websocket route.
func New(ctl Controller, ws http.Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		ctl:    ctl,
		ws:     ws,
		log:    log.Named("http"),
		router: http.NewServeMux(),
		base:   context.Background(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.base = ctx

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("stopped")
	return nil
}
