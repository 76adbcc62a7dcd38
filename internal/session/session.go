// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// Target is the device side of a register session.
type Target interface {
	Address() string
	IsOpen() bool
	SendRegisterFrame(frame []byte) error
	Commands() protocol.CommandSet
	Snapshot() *device.Snapshot
	Acquire() func()
}

// Config holds the settle times around a transaction.
type Config struct {
	UnlockSettle time.Duration
	SaveSettle   time.Duration
}

// DefaultConfig matches what the sensors accept.
func DefaultConfig() Config {
	return Config{
		UnlockSettle: 10 * time.Millisecond,
		SaveSettle:   10 * time.Millisecond,
	}
}

// Step names.
const (
	StepUnlock = "unlock"
	StepWrite  = "write"
	StepRead   = "read"
	StepSave   = "save"
)

// StepError reports the step a transaction failed at.
type StepError struct {
	Address string
	Step    string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.Address, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ReadResult is the outcome of one register read. Absent is not an error.
type ReadResult struct {
	Key     string
	Value   float64
	Present bool
}

// Err returns ErrReadTimeout when no value was present.
func (r ReadResult) Err() error {
	if r.Present {
		return nil
	}
	return device.ErrReadTimeout
}

// Session runs the unlock, operate, save protocol against one device.
type Session struct {
	dev   Target
	cfg   Config
	log   *zap.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

func New(dev Target, cfg Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		dev:   dev,
		cfg:   cfg,
		log:   log.Named("session").With(zap.String("address", dev.Address())),
		sleep: settle,
	}
}

// Unlock sends the unlock command. It must be the first step of any
// mutating sequence.
func (s *Session) Unlock(ctx context.Context) error {
	return s.send(ctx, StepUnlock, s.dev.Commands().Unlock, s.cfg.UnlockSettle)
}

// WriteRegister sends one register frame and waits out the settle time.
func (s *Session) WriteRegister(ctx context.Context, frame []byte, settle time.Duration) error {
	return s.send(ctx, StepWrite, frame, settle)
}

// Save persists register changes. It must be the last step.
func (s *Session) Save(ctx context.Context) error {
	return s.send(ctx, StepSave, s.dev.Commands().Save, s.cfg.SaveSettle)
}

// ReadRegister sends a read request and waits up to timeout for a fresh
// value of the requested register. onResult receives whatever is present
// when the wait ends.
func (s *Session) ReadRegister(ctx context.Context, frame []byte, timeout time.Duration, onResult func(ReadResult)) error {
	release := s.dev.Acquire()
	defer release()
	return s.readRegister(ctx, frame, timeout, onResult)
}

// readRegister expects the caller to hold the transaction lock.
func (s *Session) readRegister(ctx context.Context, frame []byte, timeout time.Duration, onResult func(ReadResult)) error {
	key, ok := protocol.ReadKey(frame)
	if !ok {
		return s.fail(StepRead, errors.New("not a register read frame"))
	}
	if !s.dev.IsOpen() {
		return s.fail(StepRead, device.ErrNotConnected)
	}
	if err := ctx.Err(); err != nil {
		return s.fail(StepRead, err)
	}

	snap := s.dev.Snapshot()
	since := snap.Seq()

	if err := s.dev.SendRegisterFrame(frame); err != nil {
		return s.fail(StepRead, err)
	}

	v, present := snap.WaitFresh(ctx, key, since, timeout)
	res := ReadResult{Key: key, Value: v, Present: present}

	s.log.Debug("register read", zap.String("key", key), zap.Bool("present", present), zap.Float64("value", v))

	if onResult != nil {
		onResult(res)
	}
	return nil
}

func (s *Session) send(ctx context.Context, step string, frame []byte, d time.Duration) error {
	// Checked per step so a close lands at the next step boundary.
	if !s.dev.IsOpen() {
		return s.fail(step, device.ErrNotConnected)
	}
	if err := ctx.Err(); err != nil {
		return s.fail(step, err)
	}

	if err := s.dev.SendRegisterFrame(frame); err != nil {
		return s.fail(step, err)
	}
	s.log.Debug("register frame sent", zap.String("step", step), zap.String("frame", fmt.Sprintf("% X", frame)), zap.Duration("settle", d))

	if err := s.sleep(ctx, d); err != nil {
		return s.fail(step, err)
	}
	return nil
}

func (s *Session) fail(step string, err error) error {
	return &StepError{Address: s.dev.Address(), Step: step, Err: err}
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
