// internal/link/ble/ble.go
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
	"github.com/tamzrod/imu-bridge/internal/witframe"
)

// auxRegisters are requested periodically; the notify stream carries only
// acceleration, gyro and angle.
var auxRegisters = []byte{protocol.RegMagX, protocol.RegTemp, protocol.RegVoltage}

// silenceLimit without a notification is treated as a lost link.
const silenceLimit = 3 * time.Second

type Config struct {
	// NamePrefix filters advertisements by local name. Empty accepts all.
	NamePrefix string
	// AuxPoll is the period of auxiliary register reads. Zero disables them.
	AuxPoll time.Duration
}

// Driver discovers and connects WitMotion BLE sensors through the default
// adapter.
type Driver struct {
	cfg     Config
	adapter *bluetooth.Adapter
	log     *zap.Logger

	mu    sync.Mutex
	seen  map[string]bluetooth.Address
	ready bool
}

func NewDriver(cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		cfg:     cfg,
		adapter: bluetooth.DefaultAdapter,
		log:     log.Named("ble"),
		seen:    make(map[string]bluetooth.Address),
	}
}

func (d *Driver) enable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return nil
	}
	if err := d.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	d.ready = true
	return nil
}

// Scan reports matching advertisements until ctx is done.
func (d *Driver) Scan(ctx context.Context, found func(device.Candidate)) error {
	if err := d.enable(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := d.adapter.StopScan(); err != nil {
			d.log.Debug("stop scan", zap.Error(err))
		}
	}()

	err := d.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		name := r.LocalName()
		if !matchName(name, d.cfg.NamePrefix) {
			return
		}
		addr := r.Address.String()

		d.mu.Lock()
		d.seen[addr] = r.Address
		d.mu.Unlock()

		found(device.Candidate{Address: addr, Name: name})
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func matchName(name, prefix string) bool {
	if name == "" {
		return false
	}
	return prefix == "" || strings.HasPrefix(name, prefix)
}

func (d *Driver) Link(c device.Candidate) (device.Link, error) {
	d.mu.Lock()
	addr, ok := d.seen[c.Address]
	d.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("ble: %s was not discovered", c.Address)
	}
	return &Link{
		adapter: d.adapter,
		addr:    addr,
		auxPoll: d.cfg.AuxPoll,
		dec:     witframe.NewBLEDecoder(),
		log:     d.log.With(zap.String("address", c.Address)),
	}, nil
}

// Link is one GATT connection.
type Link struct {
	adapter *bluetooth.Adapter
	addr    bluetooth.Address
	auxPoll time.Duration
	dec     *witframe.BLEDecoder
	log     *zap.Logger

	mu     sync.Mutex
	dev    *bluetooth.Device
	tx     *bluetooth.DeviceCharacteristic
	cancel context.CancelFunc
	done   chan struct{}

	// rxMu guards the decoder and the last notification time.
	rxMu sync.Mutex
	last time.Time
}

func (l *Link) Commands() protocol.CommandSet { return protocol.WitMotion() }

func (l *Link) Open(ctx context.Context, lis device.Listener) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dev != nil {
		return errors.New("ble: already open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := l.adapter.Connect(l.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return err
	}

	rx, tx, err := discover(dev)
	if err != nil {
		_ = dev.Disconnect()
		return err
	}

	l.rxMu.Lock()
	l.dec.Reset()
	l.last = time.Now()
	l.rxMu.Unlock()

	err = rx.EnableNotifications(func(buf []byte) {
		l.rxMu.Lock()
		l.last = time.Now()
		fields := l.dec.Feed(buf)
		l.rxMu.Unlock()

		if fields != nil {
			lis.OnFields(fields)
		}
	})
	if err != nil {
		_ = dev.Disconnect()
		return fmt.Errorf("ble: enable notifications: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.dev = &dev
	l.tx = &tx
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.watch(runCtx, lis, l.done)
	return nil
}

func discover(dev bluetooth.Device) (rx, tx bluetooth.DeviceCharacteristic, err error) {
	svcs, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return rx, tx, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return rx, tx, errors.New("ble: sensor service not found")
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{notifyUUID, writeUUID})
	if err != nil {
		return rx, tx, fmt.Errorf("ble: discover characteristics: %w", err)
	}

	var gotRx, gotTx bool
	for _, c := range chars {
		switch c.UUID() {
		case notifyUUID:
			rx, gotRx = c, true
		case writeUUID:
			tx, gotTx = c, true
		}
	}
	if !gotRx || !gotTx {
		return rx, tx, errors.New("ble: sensor characteristics not found")
	}
	return rx, tx, nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	dev, cancel, done := l.dev, l.cancel, l.done
	l.dev = nil
	l.tx = nil
	l.cancel = nil
	l.mu.Unlock()

	if dev == nil {
		return nil
	}
	cancel()
	<-done
	return dev.Disconnect()
}

func (l *Link) SendRegisterFrame(frame []byte) error {
	l.mu.Lock()
	tx := l.tx
	l.mu.Unlock()

	if tx == nil {
		return device.ErrNotConnected
	}
	_, err := tx.WriteWithoutResponse(frame)
	return err
}

// watch issues auxiliary reads and reports a lost link when writes fail or
// notifications stop.
func (l *Link) watch(ctx context.Context, lis device.Listener, done chan struct{}) {
	defer close(done)

	period := l.auxPoll
	if period <= 0 {
		period = silenceLimit / 3
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		l.rxMu.Lock()
		silent := time.Since(l.last)
		l.rxMu.Unlock()

		if silent > silenceLimit {
			l.lost(done, lis, fmt.Errorf("ble: no data for %s", silent.Round(time.Millisecond)))
			return
		}

		if l.auxPoll <= 0 {
			continue
		}
		reg := auxRegisters[next%len(auxRegisters)]
		next++
		if err := l.SendRegisterFrame(protocol.ReadFrame(reg)); err != nil {
			l.log.Warn("aux read failed", zap.Error(err))
			l.lost(done, lis, err)
			return
		}
	}
}

// lost drops the connection started with done and reports it. A concurrent
// Close wins and nothing is reported.
func (l *Link) lost(done chan struct{}, lis device.Listener, err error) {
	l.mu.Lock()
	if l.done != done || l.dev == nil {
		l.mu.Unlock()
		return
	}
	dev, cancel := l.dev, l.cancel
	l.dev = nil
	l.tx = nil
	l.cancel = nil
	l.mu.Unlock()

	cancel()
	if derr := dev.Disconnect(); derr != nil {
		l.log.Debug("disconnect after link loss failed", zap.Error(derr))
	}
	lis.OnDisconnected(err)
}
