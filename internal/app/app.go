// internal/app/app.go
package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tamzrod/imu-bridge/internal/calibration"
	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/poller"
	"github.com/tamzrod/imu-bridge/internal/publish"
	"github.com/tamzrod/imu-bridge/internal/registry"
	"github.com/tamzrod/imu-bridge/internal/status"
)

// ErrUnknownDevice is returned for addresses not in the registry.
var ErrUnknownDevice = errors.New("app: unknown device")

type Options struct {
	// AutoOpen opens every newly discovered device.
	AutoOpen bool

	Poll        poller.Config
	Calibration calibration.Config

	// Publisher receives every view. Nil publishes nowhere.
	Publisher publish.Publisher
}

// DeviceInfo is one entry of the device list.
type DeviceInfo struct {
	Address    string `json:"address"`
	Name       string `json:"name,omitempty"`
	State      string `json:"state"`
	Open       bool   `json:"open"`
	Health     uint16 `json:"health"`
	HealthName string `json:"health_name"`
	LastError  string `json:"last_error,omitempty"`
}

// App ties discovery, connection, calibration and the sample view together.
type App struct {
	driver device.Driver
	reg    *registry.Registry
	book   *status.Book
	cal    *calibration.Coordinator
	poll   *poller.Poller
	pub    publish.Publisher
	log    *zap.Logger

	autoOpen bool

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanDone   chan struct{}
}

func New(driver device.Driver, opts Options, log *zap.Logger) (*App, error) {
	if driver == nil {
		return nil, errors.New("app: driver required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	reg := registry.New(driver.Link, log)
	book := status.NewBook()

	p, err := poller.New(opts.Poll, reg)
	if err != nil {
		return nil, err
	}

	pub := opts.Publisher
	if pub == nil {
		pub = publish.NewFanout()
	}

	return &App{
		driver:   driver,
		reg:      reg,
		book:     book,
		cal:      calibration.New(reg, opts.Calibration, book, log),
		poll:     p,
		pub:      pub,
		log:      log.Named("app"),
		autoOpen: opts.AutoOpen,
	}, nil
}

// ---- discovery ----

// StartScan clears the registry and starts discovery in the background.
// ctx bounds the scan. Starting while scanning restarts the scan.
func (a *App) StartScan(ctx context.Context) {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()

	a.stopScanLocked()

	_ = a.reg.RemoveAll()
	a.book.Reset()

	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.scanCancel = cancel
	a.scanDone = done

	a.log.Info("scan started")

	go func() {
		defer close(done)
		if err := a.driver.Scan(scanCtx, func(c device.Candidate) { a.discovered(scanCtx, c) }); err != nil {
			a.log.Warn("scan failed", zap.Error(err))
		}
	}()
}

// StopScan ends discovery. Known devices stay in the registry.
func (a *App) StopScan() {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	a.stopScanLocked()
}

func (a *App) stopScanLocked() {
	if a.scanCancel == nil {
		return
	}
	a.scanCancel()
	<-a.scanDone
	a.scanCancel = nil
	a.scanDone = nil
	a.log.Info("scan stopped")
}

// Scanning reports whether discovery is running.
func (a *App) Scanning() bool {
	a.scanMu.Lock()
	defer a.scanMu.Unlock()
	return a.scanCancel != nil
}

func (a *App) discovered(ctx context.Context, c device.Candidate) {
	if !a.reg.OnDiscovered(c) {
		return
	}
	if !a.autoOpen {
		return
	}
	go func() {
		if err := a.OpenDevice(ctx, c.Address); err != nil && ctx.Err() == nil {
			a.log.Warn("auto open failed", zap.String("address", c.Address), zap.Error(err))
		}
	}()
}

// ---- connection ----

// OpenDevice connects one device. A failure is recorded for the device and
// leaves it in the registry for a retry.
func (a *App) OpenDevice(ctx context.Context, address string) error {
	h, ok := a.reg.FindByAddress(address)
	if !ok {
		return ErrUnknownDevice
	}

	err := h.Open(ctx)
	a.book.Record(address, err)
	if err != nil {
		return err
	}
	a.log.Info("device opened", zap.String("address", address))
	return nil
}

func (a *App) CloseDevice(address string) error {
	h, ok := a.reg.FindByAddress(address)
	if !ok {
		return ErrUnknownDevice
	}

	if err := h.Close(); err != nil {
		a.book.Record(address, err)
		return err
	}
	a.book.Set(address, status.HealthDisabled)
	a.log.Info("device closed", zap.String("address", address))
	return nil
}

// SetOpen opens or closes a device, as the device list toggle does.
func (a *App) SetOpen(ctx context.Context, address string, open bool) error {
	if open {
		return a.OpenDevice(ctx, address)
	}
	return a.CloseDevice(address)
}

// ---- calibration ----

func (a *App) RunCalibration(ctx context.Context, kind calibration.Kind) []calibration.Result {
	return a.cal.Run(ctx, kind)
}

func (a *App) SetOutputRate(ctx context.Context, hz float64) ([]calibration.Result, error) {
	return a.cal.SetOutputRate(ctx, hz)
}

func (a *App) ReadDiagnostic(ctx context.Context) []calibration.Result {
	return a.cal.ReadDiagnostic(ctx)
}

// ---- views ----

// View returns the latest aggregated view.
func (a *App) View() poller.View {
	return a.poll.Current()
}

// Devices lists every known device in discovery order.
func (a *App) Devices() []DeviceInfo {
	handles := a.reg.Handles()
	out := make([]DeviceInfo, 0, len(handles))

	for _, h := range handles {
		st := a.book.Get(h.Address())
		info := DeviceInfo{
			Address:    h.Address(),
			Name:       h.Name(),
			State:      h.State().String(),
			Open:       h.IsOpen(),
			Health:     st.Health,
			HealthName: status.HealthName(st.Health),
			LastError:  st.LastError,
		}
		out = append(out, info)
	}
	return out
}

// ---- lifecycle ----

// Run drives the poller and the publisher until ctx is done. On exit it
// stops discovery and removes every device.
func (a *App) Run(ctx context.Context) error {
	views := make(chan poller.View, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.poll.Run(gctx, views)
		return nil
	})
	g.Go(func() error {
		return publish.Run(gctx, views, &statusTap{book: a.book, next: a.pub}, a.log)
	})

	err := g.Wait()

	a.StopScan()
	return multierr.Append(err, a.reg.RemoveAll())
}
