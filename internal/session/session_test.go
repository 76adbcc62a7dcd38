// internal/session/session_test.go
package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// ---- fake target ----

type fakeTarget struct {
	mu   sync.Mutex
	tx   sync.Mutex
	open bool
	snap *device.Snapshot

	sent [][]byte

	// failFrame rejects the first frame equal to it.
	failFrame []byte
	// closeAfter closes the device after that many frames were sent (0 = never).
	closeAfter int
	// answer populates the snapshot when a read request is sent.
	answer map[string]float64
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{open: true, snap: device.NewSnapshot()}
}

func (f *fakeTarget) Address() string { return "AA:BB" }

func (f *fakeTarget) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTarget) SendRegisterFrame(frame []byte) error {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return device.ErrNotConnected
	}
	if f.failFrame != nil && bytes.Equal(frame, f.failFrame) {
		f.mu.Unlock()
		return device.ErrWriteRejected
	}
	f.sent = append(f.sent, append([]byte(nil), frame...))
	if f.closeAfter > 0 && len(f.sent) >= f.closeAfter {
		f.open = false
	}
	answer := f.answer
	f.mu.Unlock()

	if _, ok := protocol.ReadKey(frame); ok && answer != nil {
		f.snap.Update(answer)
	}
	return nil
}

func (f *fakeTarget) Commands() protocol.CommandSet { return protocol.WitMotion() }

func (f *fakeTarget) Snapshot() *device.Snapshot { return f.snap }

func (f *fakeTarget) Acquire() func() {
	f.tx.Lock()
	return f.tx.Unlock
}

func (f *fakeTarget) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

// ---- helpers ----

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (l *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits = append(l.waits, d)
	return nil
}

func newTestSession(dev *fakeTarget) (*Session, *sleepLog) {
	s := New(dev, DefaultConfig(), nil)
	l := &sleepLog{}
	s.sleep = l.sleep
	return s, l
}

// ---- tests ----

func TestRun_UnlockWriteSave(t *testing.T) {
	dev := newFakeTarget()
	s, sl := newTestSession(dev)

	rate, _ := protocol.LookupRate(50)
	out := s.Run(context.Background(), Transaction{
		Name: "rate",
		Ops:  []Op{WriteOp(rate.Frame(), rate.Settle)},
	})

	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if !out.Saved {
		t.Fatalf("expected saved outcome")
	}

	sent := dev.sentFrames()
	if len(sent) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(sent))
	}
	cs := protocol.WitMotion()
	if !bytes.Equal(sent[0], cs.Unlock) {
		t.Fatalf("expected unlock first, got % X", sent[0])
	}
	if !bytes.Equal(sent[1], []byte{0xFF, 0xAA, 0x03, 0x08, 0x00}) {
		t.Fatalf("expected 50Hz rate frame, got % X", sent[1])
	}
	if !bytes.Equal(sent[2], cs.Save) {
		t.Fatalf("expected save last, got % X", sent[2])
	}

	if len(sl.waits) != 3 || sl.waits[1] != 10*time.Millisecond {
		t.Fatalf("expected 10ms settle after rate write, got %v", sl.waits)
	}
}

func TestRun_NotConnectedSendsNothing(t *testing.T) {
	dev := newFakeTarget()
	dev.open = false
	s, _ := newTestSession(dev)

	out := s.Run(context.Background(), Transaction{
		Name: "accel",
		Ops:  []Op{WriteOp(protocol.AccelCalibration, 0)},
	})

	if !errors.Is(out.Err, device.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", out.Err)
	}
	if out.FailedStep != StepUnlock {
		t.Fatalf("expected failure at unlock, got %q", out.FailedStep)
	}
	if len(dev.sentFrames()) != 0 {
		t.Fatalf("expected no frames sent, got %d", len(dev.sentFrames()))
	}
}

func TestRun_WriteFailureSkipsSave(t *testing.T) {
	dev := newFakeTarget()
	dev.failFrame = protocol.AccelCalibration
	s, _ := newTestSession(dev)

	out := s.Run(context.Background(), Transaction{
		Name: "accel",
		Ops:  []Op{WriteOp(protocol.AccelCalibration, 0)},
	})

	if !errors.Is(out.Err, device.ErrWriteRejected) {
		t.Fatalf("expected ErrWriteRejected, got %v", out.Err)
	}
	if out.Saved {
		t.Fatalf("expected unsaved outcome")
	}
	if out.FailedStep != StepWrite {
		t.Fatalf("expected failure at write, got %q", out.FailedStep)
	}

	save := protocol.WitMotion().Save
	for _, f := range dev.sentFrames() {
		if bytes.Equal(f, save) {
			t.Fatalf("save must not be sent after a failed step")
		}
	}
}

func TestRun_CloseMidTransactionFailsAtNextStep(t *testing.T) {
	dev := newFakeTarget()
	dev.closeAfter = 1 // closes right after unlock
	s, _ := newTestSession(dev)

	out := s.Run(context.Background(), Transaction{
		Name: "mag-start",
		Ops:  []Op{WriteOp(protocol.MagCalibrationStart, 0)},
	})

	if !errors.Is(out.Err, device.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", out.Err)
	}
	if out.FailedStep != StepWrite {
		t.Fatalf("expected failure at write, got %q", out.FailedStep)
	}
	if len(dev.sentFrames()) != 1 {
		t.Fatalf("expected only unlock sent, got %d frames", len(dev.sentFrames()))
	}
}

func TestReadRegister_Populated(t *testing.T) {
	dev := newFakeTarget()
	dev.answer = map[string]float64{"03": 8}
	s, _ := newTestSession(dev)

	var got ReadResult
	err := s.ReadRegister(context.Background(), protocol.ReadFrame(0x03), 200*time.Millisecond, func(r ReadResult) {
		got = r
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Present || got.Value != 8 || got.Key != "03" {
		t.Fatalf("expected 03=8, got %+v", got)
	}
	if got.Err() != nil {
		t.Fatalf("expected nil result error, got %v", got.Err())
	}
}

func TestReadRegister_WaitsForRunningTransaction(t *testing.T) {
	dev := newFakeTarget()
	dev.answer = map[string]float64{"03": 8}
	s, _ := newTestSession(dev)

	release := dev.Acquire()

	done := make(chan error, 1)
	go func() {
		done <- s.ReadRegister(context.Background(), protocol.ReadFrame(0x03), 200*time.Millisecond, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	if n := len(dev.sentFrames()); n != 0 {
		t.Fatalf("expected read held back while the device is busy, got %d frames", n)
	}

	release()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected read to finish after the lock was released")
	}
	if n := len(dev.sentFrames()); n != 1 {
		t.Fatalf("expected 1 frame, got %d", n)
	}
}

func TestReadRegister_AbsentWithinTimeout(t *testing.T) {
	dev := newFakeTarget()
	s, _ := newTestSession(dev)

	var got ReadResult
	called := false

	start := time.Now()
	err := s.ReadRegister(context.Background(), protocol.ReadFrame(0x03), 50*time.Millisecond, func(r ReadResult) {
		called = true
		got = r
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("absence must not be an error, got %v", err)
	}
	if !called {
		t.Fatalf("expected onResult to be called")
	}
	if got.Present {
		t.Fatalf("expected absent result, got %+v", got)
	}
	if !errors.Is(got.Err(), device.ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", got.Err())
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("read blocked past timeout: %v", elapsed)
	}
}

func TestReadRegister_RejectsWriteFrame(t *testing.T) {
	dev := newFakeTarget()
	s, _ := newTestSession(dev)

	if err := s.ReadRegister(context.Background(), protocol.AccelCalibration, time.Millisecond, nil); err == nil {
		t.Fatalf("expected error for non-read frame, got nil")
	}
	if len(dev.sentFrames()) != 0 {
		t.Fatalf("expected no frames sent")
	}
}

func TestRun_SerializesPerDevice(t *testing.T) {
	dev := newFakeTarget()
	s, _ := newTestSession(dev)

	var mu sync.Mutex
	active, maxActive := 0, 0
	s.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(context.Background(), Transaction{
				Name: "accel",
				Ops:  []Op{WriteOp(protocol.AccelCalibration, time.Millisecond)},
			})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected transactions to serialize, saw %d concurrent steps", maxActive)
	}
	if len(dev.sentFrames()) != 12 {
		t.Fatalf("expected 12 frames, got %d", len(dev.sentFrames()))
	}
}
