// internal/link/sim/sim_test.go
package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
)

type recorder struct {
	mu     sync.Mutex
	fields map[string]float64
}

func (r *recorder) OnFields(f map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fields == nil {
		r.fields = make(map[string]float64)
	}
	for k, v := range f {
		r.fields[k] = v
	}
}

func (r *recorder) OnDisconnected(err error) {}

func (r *recorder) get(key string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.fields[key]
	return v, ok
}

func waitFor(t *testing.T, r *recorder, key string) float64 {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, ok := r.get(key); ok {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", key)
	return 0
}

func TestLink_StreamsSamples(t *testing.T) {
	l := NewLink(Device{Address: "sim-1"}, 100, nil)
	r := &recorder{}

	if err := l.Open(context.Background(), r); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer l.Close()

	if v := waitFor(t, r, protocol.FieldAccZ); v != 1 {
		t.Fatalf("expected AccZ 1, got %v", v)
	}
}

func TestLink_WritesNeedUnlock(t *testing.T) {
	l := NewLink(Device{Address: "sim-1"}, 10, nil)
	if err := l.Open(context.Background(), &recorder{}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer l.Close()

	rate50, _ := protocol.LookupRate(50)

	if err := l.SendRegisterFrame(rate50.Frame()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Register(protocol.RegRate) != 0x06 {
		t.Fatalf("locked write must be ignored, got rate code %#x", l.Register(protocol.RegRate))
	}

	cs := protocol.WitMotion()
	for _, f := range [][]byte{cs.Unlock, rate50.Frame(), cs.Save} {
		if err := l.SendRegisterFrame(f); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if l.Register(protocol.RegRate) != 0x08 {
		t.Fatalf("expected rate code 0x08, got %#x", l.Register(protocol.RegRate))
	}
}

func TestLink_AnswersReads(t *testing.T) {
	l := NewLink(Device{Address: "sim-1"}, 10, nil)
	r := &recorder{}
	if err := l.Open(context.Background(), r); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer l.Close()

	if err := l.SendRegisterFrame(protocol.ReadFrame(0x03)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v := waitFor(t, r, "03"); v != 6 {
		t.Fatalf("expected 03=6, got %v", v)
	}
}

func TestLink_Faults(t *testing.T) {
	l := NewLink(Device{Address: "sim-1", FailOpen: true}, 10, nil)
	if err := l.Open(context.Background(), &recorder{}); err == nil {
		t.Fatalf("expected open failure, got nil")
	}

	l = NewLink(Device{Address: "sim-2", FailWrites: true}, 10, nil)
	if err := l.Open(context.Background(), &recorder{}); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer l.Close()
	if err := l.SendRegisterFrame(protocol.WitMotion().Unlock); err == nil {
		t.Fatalf("expected write failure, got nil")
	}
}

func TestDriver_ScanAndLink(t *testing.T) {
	d := NewDriver(Config{Devices: []Device{{Address: "a"}, {Address: "b", Name: "right"}}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var got []device.Candidate
	done := make(chan struct{})
	go func() {
		_ = d.Scan(ctx, func(c device.Candidate) { got = append(got, c) })
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	if len(got) != 2 || got[1].Name != "right" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if _, err := d.Link(device.Candidate{Address: "zzz"}); err == nil {
		t.Fatalf("expected unknown device error, got nil")
	}
}
