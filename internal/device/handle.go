// internal/device/handle.go
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// State is the connection state of a device.
type State int

const (
	StateDiscovered State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handle identifies one physical sensor and owns its snapshot.
type Handle struct {
	address string
	name    string
	link    Link
	snap    *Snapshot

	// tx serializes register transactions on this device.
	tx sync.Mutex

	mu      sync.RWMutex
	state   State
	lastErr error
	gen     uint64
}

// NewHandle builds a handle in state Discovered.
func NewHandle(c Candidate, link Link) *Handle {
	return &Handle{
		address: c.Address,
		name:    c.Name,
		link:    link,
		snap:    NewSnapshot(),
		state:   StateDiscovered,
	}
}

func (h *Handle) Address() string { return h.address }

func (h *Handle) Name() string { return h.name }

// Label is the name when known, the address otherwise.
func (h *Handle) Label() string {
	if h.name != "" {
		return h.name
	}
	return h.address
}

func (h *Handle) Snapshot() *Snapshot { return h.snap }

func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Handle) IsOpen() bool {
	return h.State() == StateOpen
}

// LastErr returns the error that moved the handle to Failed, if any.
func (h *Handle) LastErr() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastErr
}

// Commands returns the vendor frames the link expects.
func (h *Handle) Commands() protocol.CommandSet {
	return h.link.Commands()
}

// Open connects the link. Opening an open handle is a no-op.
// On failure the handle moves to Failed and stays retryable.
func (h *Handle) Open(ctx context.Context) error {
	h.mu.Lock()
	switch h.state {
	case StateOpen:
		h.mu.Unlock()
		return nil
	case StateConnecting:
		h.mu.Unlock()
		return fmt.Errorf("device %s: open already in progress", h.address)
	}
	failed := h.state == StateFailed
	h.state = StateConnecting
	h.gen++
	gen := h.gen
	h.mu.Unlock()

	h.snap.Clear()
	if failed {
		// The link may still hold the transport of the connection that dropped.
		_ = h.link.Close()
	}
	err := h.link.Open(ctx, &listener{h: h, gen: gen})

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gen != gen {
		// Closed while connecting.
		if err == nil {
			_ = h.link.Close()
		}
		return fmt.Errorf("%w: %s closed while connecting", ErrConnectFailed, h.address)
	}

	if err != nil {
		h.state = StateFailed
		h.lastErr = fmt.Errorf("%w: %w", ErrConnectFailed, err)
		return h.lastErr
	}

	h.state = StateOpen
	h.lastErr = nil
	return nil
}

// Close disconnects the link. A failed handle still closes its link so
// whatever the dropped connection held is released. Closing a handle that
// was never opened is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	switch h.state {
	case StateOpen, StateConnecting, StateFailed:
	default:
		h.mu.Unlock()
		return nil
	}
	h.state = StateClosed
	h.gen++
	h.mu.Unlock()

	if err := h.link.Close(); err != nil {
		return fmt.Errorf("device %s: close: %w", h.address, err)
	}
	return nil
}

// SendRegisterFrame writes one register frame. Nothing is sent unless the
// handle is open.
func (h *Handle) SendRegisterFrame(frame []byte) error {
	if !h.IsOpen() {
		return ErrNotConnected
	}
	if err := h.link.SendRegisterFrame(frame); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrWriteRejected, err)
	}
	return nil
}

// Acquire takes the transaction lock. Call the returned func to release it.
func (h *Handle) Acquire() func() {
	h.tx.Lock()
	return h.tx.Unlock
}

func (h *Handle) disconnected(gen uint64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gen != gen || h.state != StateOpen {
		return
	}
	h.state = StateFailed
	if err == nil {
		h.lastErr = ErrDisconnected
	} else {
		h.lastErr = fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
}

func (h *Handle) current(gen uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.gen == gen
}

// listener binds link events to one open generation of a handle so late
// events from a previous connection are dropped.
type listener struct {
	h   *Handle
	gen uint64
}

func (l *listener) OnFields(fields map[string]float64) {
	if !l.h.current(l.gen) {
		return
	}
	l.h.snap.Update(fields)
}

func (l *listener) OnDisconnected(err error) {
	l.h.disconnected(l.gen, err)
}
