// internal/link/modbus/link.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// Measurement block polled from every sensor: acceleration through temperature.
const (
	blockStart = uint16(protocol.RegAccX)
	blockLen   = uint16(protocol.RegTemp-protocol.RegAccX) + 1

	// readLen is the number of registers returned for a read request.
	readLen = 8

	// maxPollFailures consecutive failed polls count as a disconnect.
	maxPollFailures = 3
)

type DeviceConfig struct {
	Endpoint string
	Name     string
	SlaveID  uint8
	BaudRate int
}

// Address is the registry identity of a sensor on a bus.
func (d DeviceConfig) Address() string {
	return fmt.Sprintf("%s@%d", d.Endpoint, d.SlaveID)
}

type Config struct {
	Devices      []DeviceConfig
	Timeout      time.Duration
	PollInterval time.Duration
}

// Driver exposes statically configured Modbus sensors.
type Driver struct {
	cfg  Config
	pool *pool
	log  *zap.Logger
}

func NewDriver(cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Driver{cfg: cfg, pool: newPool(dialEndpoint), log: log.Named("modbus")}
}

// Scan reports every configured sensor, then waits for ctx.
func (d *Driver) Scan(ctx context.Context, found func(device.Candidate)) error {
	for _, dev := range d.cfg.Devices {
		found(device.Candidate{Address: dev.Address(), Name: dev.Name})
	}
	<-ctx.Done()
	return nil
}

func (d *Driver) Link(c device.Candidate) (device.Link, error) {
	for _, dev := range d.cfg.Devices {
		if dev.Address() == c.Address {
			return &Link{
				dev:      dev,
				timeout:  d.cfg.Timeout,
				interval: d.cfg.PollInterval,
				pool:     d.pool,
				log:      d.log.With(zap.String("address", c.Address)),
			}, nil
		}
	}
	return nil, fmt.Errorf("link modbus: unknown device %q", c.Address)
}

// Link maps register command frames onto Modbus register access and polls
// the measurement block in the background.
type Link struct {
	dev      DeviceConfig
	timeout  time.Duration
	interval time.Duration
	pool     *pool
	log      *zap.Logger

	mu       sync.Mutex
	cli      registerClient
	release  func() error
	listener device.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

func (l *Link) Commands() protocol.CommandSet { return protocol.WitMotion() }

func (l *Link) Open(ctx context.Context, lis device.Listener) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cli != nil {
		return errors.New("link modbus: already open")
	}

	cli, release, err := l.pool.acquire(EndpointConfig{
		Endpoint: l.dev.Endpoint,
		BaudRate: l.dev.BaudRate,
		Timeout:  l.timeout,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	l.cli = cli
	l.release = release
	l.listener = lis
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.poll(runCtx, cli, lis, l.done)
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	cancel, done, release := l.cancel, l.done, l.release
	l.cli = nil
	l.cancel = nil
	l.release = nil
	l.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return release()
}

func (l *Link) SendRegisterFrame(frame []byte) error {
	cmd, err := protocol.ParseFrame(frame)
	if err != nil {
		return err
	}

	l.mu.Lock()
	cli, lis := l.cli, l.listener
	l.mu.Unlock()

	if cli == nil {
		return device.ErrNotConnected
	}

	if cmd.IsRead() {
		start := cmd.ReadTarget()
		regs, err := cli.ReadHoldingRegisters(l.dev.SlaveID, uint16(start), readLen)
		if err != nil {
			return err
		}
		lis.OnFields(protocol.RegisterFields(start, toInt16(regs)))
		return nil
	}

	return cli.WriteRegister(l.dev.SlaveID, uint16(cmd.Reg), cmd.Value)
}

func (l *Link) poll(ctx context.Context, cli registerClient, lis device.Listener, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		regs, err := cli.ReadHoldingRegisters(l.dev.SlaveID, blockStart, blockLen)
		if err != nil {
			failures++
			l.log.Debug("poll failed", zap.Int("failures", failures), zap.Error(err))
			if failures >= maxPollFailures {
				l.lost(done, lis, err)
				return
			}
			continue
		}
		failures = 0
		lis.OnFields(protocol.RegisterFields(byte(blockStart), toInt16(regs)))
	}
}

// lost hands the pooled client back and reports the dropped link. A
// concurrent Close wins and nothing is reported.
func (l *Link) lost(done chan struct{}, lis device.Listener, err error) {
	l.mu.Lock()
	if l.done != done || l.cli == nil {
		l.mu.Unlock()
		return
	}
	cancel, release := l.cancel, l.release
	l.cli = nil
	l.cancel = nil
	l.release = nil
	l.mu.Unlock()

	cancel()
	if rerr := release(); rerr != nil {
		l.log.Debug("release after link loss failed", zap.Error(rerr))
	}
	lis.OnDisconnected(err)
}

func toInt16(regs []uint16) []int16 {
	out := make([]int16, len(regs))
	for i, r := range regs {
		out[i] = int16(r)
	}
	return out
}
