// internal/registry/registry_test.go
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/link/sim"
	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// ---- fake link ----

type fakeLink struct {
	mu       sync.Mutex
	closeErr error
	closed   int
	lis      device.Listener
}

func (f *fakeLink) Open(ctx context.Context, l device.Listener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lis = l
	return nil
}

func (f *fakeLink) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeLink) SendRegisterFrame(frame []byte) error { return nil }

func (f *fakeLink) Commands() protocol.CommandSet { return protocol.WitMotion() }

type linkBook struct {
	mu    sync.Mutex
	links map[string]*fakeLink
}

func newLinkBook() *linkBook {
	return &linkBook{links: make(map[string]*fakeLink)}
}

func (b *linkBook) factory(c device.Candidate) (device.Link, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := &fakeLink{}
	b.links[c.Address] = l
	return l, nil
}

// ---- tests ----

func TestOnDiscovered_Dedup(t *testing.T) {
	r := New(newLinkBook().factory, nil)

	if !r.OnDiscovered(device.Candidate{Address: "AA", Name: "first"}) {
		t.Fatalf("expected first discovery to be added")
	}
	if r.OnDiscovered(device.Candidate{Address: "AA", Name: "second"}) {
		t.Fatalf("expected duplicate discovery to be ignored")
	}
	if !r.OnDiscovered(device.Candidate{Address: "BB"}) {
		t.Fatalf("expected second device to be added")
	}

	if r.Len() != 2 {
		t.Fatalf("expected 2 devices, got %d", r.Len())
	}

	h, ok := r.FindByAddress("AA")
	if !ok {
		t.Fatalf("expected AA to be found")
	}
	if h.Name() != "first" {
		t.Fatalf("expected first candidate kept, got %q", h.Name())
	}
}

func TestOnDiscovered_ConcurrentDedup(t *testing.T) {
	r := New(newLinkBook().factory, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.OnDiscovered(device.Candidate{Address: fmt.Sprintf("dev-%d", i%5)})
		}(i)
	}
	wg.Wait()

	if r.Len() != 5 {
		t.Fatalf("expected 5 unique devices, got %d", r.Len())
	}

	seen := map[string]bool{}
	for _, h := range r.Handles() {
		if seen[h.Address()] {
			t.Fatalf("duplicate handle for %s", h.Address())
		}
		seen[h.Address()] = true
	}
}

func TestOnDiscovered_FactoryFailure(t *testing.T) {
	r := New(func(c device.Candidate) (device.Link, error) {
		return nil, errors.New("no adapter")
	}, nil)

	if r.OnDiscovered(device.Candidate{Address: "AA"}) {
		t.Fatalf("expected candidate to be rejected")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRemoveAll_ClosesOpenDevices(t *testing.T) {
	book := newLinkBook()
	r := New(book.factory, nil)

	r.OnDiscovered(device.Candidate{Address: "AA"})
	r.OnDiscovered(device.Candidate{Address: "BB"})
	r.OnDiscovered(device.Candidate{Address: "CC"})

	handles := r.Handles()
	for _, h := range handles[:2] {
		if err := h.Open(context.Background()); err != nil {
			t.Fatalf("open failed: %v", err)
		}
	}

	if err := r.RemoveAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, h := range handles {
		if h.State() == device.StateOpen {
			t.Fatalf("device %s still open", h.Address())
		}
	}
	if book.links["AA"].closed != 1 || book.links["BB"].closed != 1 {
		t.Fatalf("expected open links closed once")
	}
	if book.links["CC"].closed != 0 {
		t.Fatalf("expected discovered-only link untouched, got %d closes", book.links["CC"].closed)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
	if _, ok := r.FindByAddress("AA"); ok {
		t.Fatalf("expected AA gone after RemoveAll")
	}
}

func TestRemoveAll_ClearsEvenWhenCloseFails(t *testing.T) {
	book := newLinkBook()
	r := New(book.factory, nil)

	r.OnDiscovered(device.Candidate{Address: "AA"})
	r.OnDiscovered(device.Candidate{Address: "BB"})
	for _, h := range r.Handles() {
		if err := h.Open(context.Background()); err != nil {
			t.Fatalf("open failed: %v", err)
		}
	}
	book.links["AA"].closeErr = errors.New("busy")

	handles := r.Handles()
	if err := r.RemoveAll(); err == nil {
		t.Fatalf("expected close error, got nil")
	}

	for _, h := range handles {
		if h.State() == device.StateOpen {
			t.Fatalf("device %s still open", h.Address())
		}
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRemoveAll_ClosesDisconnectedDevices(t *testing.T) {
	book := newLinkBook()
	r := New(book.factory, nil)

	r.OnDiscovered(device.Candidate{Address: "AA"})
	h, _ := r.FindByAddress("AA")
	if err := h.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	book.links["AA"].lis.OnDisconnected(errors.New("unplugged"))
	if h.State() != device.StateFailed {
		t.Fatalf("expected failed, got %s", h.State())
	}

	if err := r.RemoveAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := book.links["AA"].closes(); got != 1 {
		t.Fatalf("expected disconnected link closed once, got %d", got)
	}
	if h.State() != device.StateClosed {
		t.Fatalf("expected closed, got %s", h.State())
	}
}

func TestReopenAfterLinkLoss(t *testing.T) {
	drv := sim.NewDriver(sim.Config{
		RateHz:  50,
		Devices: []sim.Device{{Address: "sim-1"}},
	}, nil)

	var (
		mu    sync.Mutex
		links []*sim.Link
	)
	r := New(func(c device.Candidate) (device.Link, error) {
		l, err := drv.Link(c)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		links = append(links, l.(*sim.Link))
		mu.Unlock()
		return l, nil
	}, nil)

	r.OnDiscovered(device.Candidate{Address: "sim-1"})
	h, _ := r.FindByAddress("sim-1")

	for i := 0; i < 2; i++ {
		if err := h.Open(context.Background()); err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		links[0].Drop()
		if h.State() != device.StateFailed {
			t.Fatalf("expected failed after drop %d, got %s", i, h.State())
		}
		if !errors.Is(h.LastErr(), device.ErrDisconnected) {
			t.Fatalf("expected disconnected error, got %v", h.LastErr())
		}
	}

	since := h.Snapshot().Seq()
	if err := h.Open(context.Background()); err != nil {
		t.Fatalf("retry open failed: %v", err)
	}
	if !h.IsOpen() {
		t.Fatalf("expected open after retry, got %s", h.State())
	}
	h.Snapshot().WaitFresh(context.Background(), protocol.FieldAccZ, since, time.Second)
	if h.Snapshot().Seq() <= since {
		t.Fatalf("expected samples after reopen")
	}

	if err := r.RemoveAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.IsOpen() {
		t.Fatalf("expected closed after RemoveAll")
	}
	if len(links) != 1 {
		t.Fatalf("expected one link for the device, got %d", len(links))
	}
}

func TestFindByAddress_Missing(t *testing.T) {
	r := New(newLinkBook().factory, nil)
	if h, ok := r.FindByAddress("nope"); ok || h != nil {
		t.Fatalf("expected not found, got %v %v", h, ok)
	}
}
