// internal/registry/registry.go
package registry

import (
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/device"
)

// LinkFactory builds the link for a newly discovered device.
type LinkFactory func(c device.Candidate) (device.Link, error)

// Registry is the de-duplicated set of devices seen during a scan session.
// Order is discovery order.
type Registry struct {
	mu      sync.Mutex
	handles []*device.Handle
	byAddr  map[string]*device.Handle

	newLink LinkFactory
	log     *zap.Logger
}

func New(newLink LinkFactory, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		byAddr:  make(map[string]*device.Handle),
		newLink: newLink,
		log:     log.Named("registry"),
	}
}

// OnDiscovered adds c unless a device with the same address is known.
// It reports whether c was added.
func (r *Registry) OnDiscovered(c device.Candidate) bool {
	if c.Address == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAddr[c.Address]; ok {
		return false
	}

	link, err := r.newLink(c)
	if err != nil {
		r.log.Warn("link build failed", zap.String("address", c.Address), zap.Error(err))
		return false
	}

	h := device.NewHandle(c, link)
	r.handles = append(r.handles, h)
	r.byAddr[c.Address] = h

	r.log.Info("device discovered", zap.String("address", c.Address), zap.String("name", c.Name))
	return true
}

// RemoveAll closes every device that holds a link, then clears the
// registry. The lock is held throughout so no device is rediscovered while
// its old link is still closing. The registry is cleared even when some
// closes fail.
func (r *Registry) RemoveAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs error
	for _, h := range r.handles {
		if err := h.Close(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	r.handles = nil
	r.byAddr = make(map[string]*device.Handle)

	if errs != nil {
		r.log.Warn("close failed during remove", zap.Error(errs))
	}
	return errs
}

// FindByAddress never fails; ok is false when the address is unknown.
func (r *Registry) FindByAddress(address string) (*device.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byAddr[address]
	return h, ok
}

// Handles returns the devices in discovery order.
func (r *Registry) Handles() []*device.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*device.Handle, len(r.handles))
	copy(out, r.handles)
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
