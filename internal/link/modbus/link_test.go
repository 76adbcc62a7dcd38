// internal/link/modbus/link_test.go
package modbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// ---- fakes ----

type write struct {
	slave uint8
	addr  uint16
	value uint16
}

type fakeClient struct {
	mu      sync.Mutex
	regs    map[uint16]uint16
	writes  []write
	readErr error
	closed  int
}

func (f *fakeClient) ReadHoldingRegisters(slaveID uint8, addr, qty uint16) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]uint16, qty)
	for i := range out {
		out[i] = f.regs[addr+uint16(i)]
	}
	return out, nil
}

func (f *fakeClient) WriteRegister(slaveID uint8, addr, value uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{slaveID, addr, value})
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type recorder struct {
	mu     sync.Mutex
	fields []map[string]float64
	lost   chan error
}

func newRecorder() *recorder { return &recorder{lost: make(chan error, 1)} }

func (r *recorder) OnFields(f map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = append(r.fields, f)
}

func (r *recorder) OnDisconnected(err error) { r.lost <- err }

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fields)
}

func testDriver(cli *fakeClient, devs ...DeviceConfig) (*Driver, *int) {
	d := NewDriver(Config{Devices: devs, PollInterval: time.Millisecond}, nil)
	dials := 0
	d.pool = newPool(func(EndpointConfig) (registerClient, error) {
		dials++
		return cli, nil
	})
	return d, &dials
}

// ---- tests ----

func TestScan_ReportsConfiguredDevices(t *testing.T) {
	d, _ := testDriver(&fakeClient{},
		DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x50, Name: "left"},
		DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x51, Name: "right"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []device.Candidate
	if err := d.Scan(ctx, func(c device.Candidate) { got = append(got, c) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Address != "/dev/ttyUSB0@80" || got[1].Name != "right" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestLink_UnknownAddress(t *testing.T) {
	d, _ := testDriver(&fakeClient{})
	if _, err := d.Link(device.Candidate{Address: "nope"}); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}

func TestLink_WriteMapsToRegister(t *testing.T) {
	cli := &fakeClient{}
	dev := DeviceConfig{Endpoint: "tcp://gw:502", SlaveID: 0x50}
	d, _ := testDriver(cli, dev)

	l, _ := d.Link(device.Candidate{Address: dev.Address()})
	if err := l.Open(context.Background(), newRecorder()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer l.Close()

	if err := l.SendRegisterFrame(protocol.WitMotion().Unlock); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	cli.mu.Lock()
	defer cli.mu.Unlock()
	if len(cli.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(cli.writes))
	}
	w := cli.writes[0]
	if w.slave != 0x50 || w.addr != uint16(protocol.RegKey) || w.value != protocol.KeyUnlock {
		t.Fatalf("unexpected write %+v", w)
	}
}

func TestLink_ReadDeliversRegisterKeys(t *testing.T) {
	cli := &fakeClient{regs: map[uint16]uint16{0x03: 8}}
	dev := DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x50}
	d, _ := testDriver(cli, dev)
	d.cfg.PollInterval = time.Hour

	rec := newRecorder()
	l, _ := d.Link(device.Candidate{Address: dev.Address()})
	if err := l.Open(context.Background(), rec); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer l.Close()

	if err := l.SendRegisterFrame(protocol.ReadFrame(0x03)); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.fields) != 1 || rec.fields[0]["03"] != 8 {
		t.Fatalf("expected 03=8, got %v", rec.fields)
	}
}

func TestLink_PollsMeasurementBlock(t *testing.T) {
	cli := &fakeClient{regs: map[uint16]uint16{uint16(protocol.RegAccX): 2048}}
	dev := DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x50}
	d, _ := testDriver(cli, dev)

	rec := newRecorder()
	l, _ := d.Link(device.Candidate{Address: dev.Address()})
	if err := l.Open(context.Background(), rec); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	l.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.fields) == 0 {
		t.Fatalf("expected polled fields")
	}
	if rec.fields[0][protocol.FieldAccX] != 1 {
		t.Fatalf("expected AccX 1 g, got %v", rec.fields[0][protocol.FieldAccX])
	}
}

func TestLink_PollFailuresDisconnect(t *testing.T) {
	cli := &fakeClient{readErr: errors.New("timeout")}
	dev := DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x50}
	d, _ := testDriver(cli, dev)

	rec := newRecorder()
	l, _ := d.Link(device.Candidate{Address: dev.Address()})
	if err := l.Open(context.Background(), rec); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer l.Close()

	select {
	case err := <-rec.lost:
		if err == nil {
			t.Fatalf("expected disconnect error")
		}
	case <-time.After(time.Second):
		t.Fatalf("expected disconnect after repeated poll failures")
	}
}

func TestLink_LostLinkReleasesClientAndReopens(t *testing.T) {
	cli := &fakeClient{readErr: errors.New("timeout")}
	dev := DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x50}
	d, dials := testDriver(cli, dev)

	rec := newRecorder()
	l, _ := d.Link(device.Candidate{Address: dev.Address()})
	if err := l.Open(context.Background(), rec); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	select {
	case <-rec.lost:
	case <-time.After(time.Second):
		t.Fatalf("expected disconnect after repeated poll failures")
	}

	cli.mu.Lock()
	closed := cli.closed
	cli.readErr = nil
	cli.mu.Unlock()
	if closed != 1 {
		t.Fatalf("expected pooled client released, got %d closes", closed)
	}

	if err := l.Open(context.Background(), rec); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if *dials != 2 {
		t.Fatalf("expected endpoint dialed again, got %d dials", *dials)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestLink_SendWhenClosed(t *testing.T) {
	dev := DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x50}
	d, _ := testDriver(&fakeClient{}, dev)

	l, _ := d.Link(device.Candidate{Address: dev.Address()})
	if err := l.SendRegisterFrame(protocol.WitMotion().Save); !errors.Is(err, device.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPool_SharesEndpointUntilLastRelease(t *testing.T) {
	cli := &fakeClient{}
	a := DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x50}
	b := DeviceConfig{Endpoint: "/dev/ttyUSB0", SlaveID: 0x51}
	d, dials := testDriver(cli, a, b)
	d.cfg.PollInterval = time.Hour

	la, _ := d.Link(device.Candidate{Address: a.Address()})
	lb, _ := d.Link(device.Candidate{Address: b.Address()})
	la.Open(context.Background(), newRecorder())
	lb.Open(context.Background(), newRecorder())

	if *dials != 1 {
		t.Fatalf("expected one dial for a shared bus, got %d", *dials)
	}

	la.Close()
	if cli.closed != 0 {
		t.Fatalf("client closed while still in use")
	}
	lb.Close()
	if cli.closed != 1 {
		t.Fatalf("expected client closed once, got %d", cli.closed)
	}
}

func TestUnpackRegisters_BigEndian(t *testing.T) {
	got := unpackRegisters([]byte{0x12, 0x34, 0xFF, 0xFE})
	if len(got) != 2 || got[0] != 0x1234 || got[1] != 0xFFFE {
		t.Fatalf("unexpected registers %v", got)
	}
}

func TestIsTCP(t *testing.T) {
	cases := map[string]bool{
		"/dev/ttyUSB0":    false,
		"COM3":            false,
		"10.0.0.5:502":    true,
		"tcp://gw:502":    true,
		"/dev/serial:foo": false,
	}
	for ep, want := range cases {
		if got := isTCP(ep); got != want {
			t.Fatalf("isTCP(%q): expected %v, got %v", ep, want, got)
		}
	}
}
