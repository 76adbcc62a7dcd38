// internal/link/sim/sim.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// Device describes one simulated sensor.
type Device struct {
	Address    string
	Name       string
	FailWrites bool
	FailOpen   bool
}

type Config struct {
	RateHz  float64
	Devices []Device
}

// Driver announces the configured devices and builds simulated links.
type Driver struct {
	cfg Config
	log *zap.Logger
}

func NewDriver(cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RateHz <= 0 {
		cfg.RateHz = 10
	}
	return &Driver{cfg: cfg, log: log.Named("sim")}
}

// Scan reports every configured device once, then waits for ctx.
func (d *Driver) Scan(ctx context.Context, found func(device.Candidate)) error {
	for _, dev := range d.cfg.Devices {
		if ctx.Err() != nil {
			return nil
		}
		found(device.Candidate{Address: dev.Address, Name: dev.Name})
	}
	<-ctx.Done()
	return nil
}

func (d *Driver) Link(c device.Candidate) (device.Link, error) {
	for _, dev := range d.cfg.Devices {
		if dev.Address == c.Address {
			return NewLink(dev, d.cfg.RateHz, d.log), nil
		}
	}
	return nil, fmt.Errorf("sim: unknown device %q", c.Address)
}

// Link is a simulated sensor with a register file. It streams smooth
// acceleration and angle values and answers register reads.
type Link struct {
	dev Device
	log *zap.Logger

	mu       sync.Mutex
	regs     map[byte]uint16
	unlocked bool
	period   time.Duration
	listener device.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	start    time.Time
}

func NewLink(dev Device, rateHz float64, log *zap.Logger) *Link {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Link{
		dev:    dev,
		log:    log.With(zap.String("address", dev.Address)),
		regs:   make(map[byte]uint16),
		period: time.Duration(float64(time.Second) / rateHz),
	}
	if r, err := protocol.LookupRate(rateHz); err == nil {
		l.regs[protocol.RegRate] = uint16(r.Code)
	}
	return l
}

func (l *Link) Commands() protocol.CommandSet { return protocol.WitMotion() }

func (l *Link) Open(ctx context.Context, lis device.Listener) error {
	if l.dev.FailOpen {
		return errors.New("sim: device refused connection")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return errors.New("sim: already open")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.listener = lis
	l.cancel = cancel
	l.done = make(chan struct{})
	l.start = time.Now()

	go l.stream(runCtx, l.done)
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (l *Link) SendRegisterFrame(frame []byte) error {
	if l.dev.FailWrites {
		return errors.New("sim: write not acknowledged")
	}

	cmd, err := protocol.ParseFrame(frame)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel == nil {
		return device.ErrNotConnected
	}

	switch {
	case cmd.IsRead():
		start := cmd.ReadTarget()
		values := make([]int16, 8)
		for i := range values {
			values[i] = int16(l.regs[start+byte(i)])
		}
		lis := l.listener
		go func() {
			time.Sleep(5 * time.Millisecond)
			lis.OnFields(protocol.RegisterFields(start, values))
		}()

	case cmd.Reg == protocol.RegKey:
		l.unlocked = cmd.Value == protocol.KeyUnlock

	case !l.unlocked:
		// A locked sensor ignores writes.
		l.log.Debug("write while locked ignored", zap.Uint8("reg", cmd.Reg))

	case cmd.Reg == protocol.RegSave:
		l.unlocked = false

	default:
		l.regs[cmd.Reg] = cmd.Value
		if cmd.Reg == protocol.RegRate {
			if r, ok := protocol.RateByCode(byte(cmd.Value)); ok {
				l.period = time.Duration(float64(time.Second) / r.Hz)
			}
		}
	}
	return nil
}

// Drop simulates the sensor going out of range: streaming stops and the
// listener sees a disconnect. Dropping a closed link does nothing.
func (l *Link) Drop() {
	l.mu.Lock()
	cancel, done, lis := l.cancel, l.done, l.listener
	l.cancel = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	lis.OnDisconnected(errors.New("sim: link lost"))
}

// Register returns the current value of a simulated register.
func (l *Link) Register(reg byte) uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.regs[reg]
}

func (l *Link) stream(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		l.mu.Lock()
		period := l.period
		lis := l.listener
		start := l.start
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(period):
		}

		lis.OnFields(sample(time.Since(start).Seconds()))
	}
}

func sample(elapsed float64) map[string]float64 {
	return map[string]float64{
		protocol.FieldAccX:        0.1 * math.Sin(elapsed),
		protocol.FieldAccY:        0.1 * math.Cos(elapsed*0.7),
		protocol.FieldAccZ:        1,
		protocol.FieldGyroZ:       30,
		protocol.FieldAngleX:      20 * math.Sin(elapsed),
		protocol.FieldAngleY:      15 * math.Cos(elapsed*0.7),
		protocol.FieldAngleZ:      math.Mod(elapsed*30, 360) - 180,
		protocol.FieldTemperature: 25,
	}
}
