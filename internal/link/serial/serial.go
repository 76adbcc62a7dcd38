// internal/link/serial/serial.go
package serial

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bugst "go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
	"github.com/tamzrod/imu-bridge/internal/witframe"
)

const readTimeout = 100 * time.Millisecond

type Config struct {
	// Ports pins the ports to use; empty means enumerate.
	Ports      []string
	PortPrefix string
	BaudRate   int
	Rescan     time.Duration
}

// port is the part of bugst.Port the link uses.
type port interface {
	io.ReadWriteCloser
}

type opener func(name string, baud int) (port, error)

func openPort(name string, baud int) (port, error) {
	p, err := bugst.Open(name, &bugst.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Driver discovers sensors by enumerating serial ports.
type Driver struct {
	cfg  Config
	log  *zap.Logger
	list func() ([]string, error)
	open opener
}

func NewDriver(cfg Config, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Rescan <= 0 {
		cfg.Rescan = time.Second
	}
	return &Driver{
		cfg:  cfg,
		log:  log.Named("serial"),
		list: bugst.GetPortsList,
		open: openPort,
	}
}

// Scan reports matching ports until ctx is done. Ports are reported on
// every rescan; the registry drops repeats.
func (d *Driver) Scan(ctx context.Context, found func(device.Candidate)) error {
	ticker := time.NewTicker(d.cfg.Rescan)
	defer ticker.Stop()

	for {
		ports, err := d.ports()
		if err != nil {
			d.log.Warn("port enumeration failed", zap.Error(err))
		}
		for _, p := range ports {
			found(device.Candidate{Address: p, Name: filepath.Base(p)})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Driver) ports() ([]string, error) {
	if len(d.cfg.Ports) > 0 {
		return d.cfg.Ports, nil
	}
	all, err := d.list()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range all {
		if d.cfg.PortPrefix == "" || strings.HasPrefix(p, d.cfg.PortPrefix) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *Driver) Link(c device.Candidate) (device.Link, error) {
	return &Link{
		name: c.Address,
		baud: d.cfg.BaudRate,
		open: d.open,
		dec:  witframe.NewSerialDecoder(),
		log:  d.log.With(zap.String("address", c.Address)),
	}, nil
}

// Link talks to one WT901 over a UART.
type Link struct {
	name string
	baud int
	open opener
	dec  *witframe.SerialDecoder
	log  *zap.Logger

	mu      sync.Mutex
	p       port
	closing bool
	done    chan struct{}
}

func (l *Link) Commands() protocol.CommandSet { return protocol.WitMotion() }

func (l *Link) Open(ctx context.Context, lis device.Listener) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.p != nil {
		return errors.New("serial: already open")
	}

	p, err := l.open(l.name, l.baud)
	if err != nil {
		return err
	}

	l.p = p
	l.closing = false
	l.done = make(chan struct{})
	l.dec.Reset()

	go l.read(p, lis, l.done)
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	p, done := l.p, l.done
	l.p = nil
	l.closing = true
	l.mu.Unlock()

	if p == nil {
		return nil
	}
	err := p.Close()
	<-done
	return err
}

func (l *Link) SendRegisterFrame(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.p == nil {
		return device.ErrNotConnected
	}
	if cmd, err := protocol.ParseFrame(frame); err == nil && cmd.IsRead() {
		l.dec.ExpectRead(cmd.ReadTarget())
	}

	n, err := l.p.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}

func (l *Link) read(p port, lis device.Listener, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 256)
	for {
		n, err := p.Read(buf)
		if err != nil {
			l.mu.Lock()
			lost := !l.closing && l.p == p
			if lost {
				l.p = nil
			}
			l.mu.Unlock()

			if lost {
				l.log.Warn("serial read failed", zap.Error(err))
				if cerr := p.Close(); cerr != nil {
					l.log.Debug("close after read failure failed", zap.Error(cerr))
				}
				lis.OnDisconnected(err)
			}
			return
		}
		if n == 0 {
			continue
		}
		if fields := l.dec.Feed(buf[:n]); fields != nil {
			lis.OnFields(fields)
		}
	}
}
