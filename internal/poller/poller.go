// internal/poller/poller.go
package poller

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/imu-bridge/internal/device"
)

// Source abstracts the registry for the poller.
// The poller only reads.
type Source interface {
	Handles() []*device.Handle
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval time.Duration
	Fields   []FieldSpec

	// StaleAfter marks devices whose last update is older. Zero disables it.
	StaleAfter time.Duration
}

// Poller is a clock-driven reader of in-memory snapshots.
type Poller struct {
	cfg Config
	src Source
	now func() time.Time

	mu      sync.RWMutex
	current View
	cycle   uint64
}

// New creates a poller with immutable config.
func New(cfg Config, src Source) (*Poller, error) {
	if src == nil {
		return nil, errors.New("poller: source required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = DefaultFields()
	}
	return &Poller{cfg: cfg, src: src, now: time.Now}, nil
}

// PollOnce performs exactly one poll cycle and replaces the current view.
// Devices that are not open, or have never produced data, are left out.
func (p *Poller) PollOnce() View {
	now := p.now()

	var devices []DeviceView
	var lines []string

	for _, h := range p.src.Handles() {
		if !h.IsOpen() {
			continue
		}

		r := h.Snapshot().Read()
		if len(r.Fields) == 0 {
			continue
		}

		line := formatLine(h.Label(), r.Fields, p.cfg.Fields)
		devices = append(devices, DeviceView{
			Address: h.Address(),
			Name:    h.Name(),
			Seq:     r.Seq,
			At:      r.At,
			Stale:   p.cfg.StaleAfter > 0 && now.Sub(r.At) > p.cfg.StaleAfter,
			Fields:  r.Fields,
			Line:    line,
		})
		lines = append(lines, line)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.cycle++
	p.current = View{
		At:      now,
		Cycle:   p.cycle,
		Devices: devices,
		Text:    strings.Join(lines, "\n"),
	}
	return p.current
}

// Current returns the last published view.
func (p *Poller) Current() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Interval returns the poll period.
func (p *Poller) Interval() time.Duration {
	return p.cfg.Interval
}
