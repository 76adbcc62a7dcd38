// internal/session/transaction.go
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// OpKind selects what an Op does.
type OpKind int

const (
	OpWrite OpKind = iota
	OpRead
)

// Op is one register operation inside a transaction.
type Op struct {
	Kind  OpKind
	Frame []byte

	// Settle for writes, timeout for reads.
	Wait time.Duration

	OnResult func(ReadResult)
}

func WriteOp(frame []byte, settle time.Duration) Op {
	return Op{Kind: OpWrite, Frame: frame, Wait: settle}
}

func ReadOp(frame []byte, timeout time.Duration, onResult func(ReadResult)) Op {
	return Op{Kind: OpRead, Frame: frame, Wait: timeout, OnResult: onResult}
}

// Transaction is an unlock, ops, save sequence against one device.
type Transaction struct {
	Name string
	Ops  []Op
}

// Outcome is the result of one transaction.
type Outcome struct {
	Address     string
	Transaction string
	Saved       bool
	FailedStep  string
	Err         error
}

// Run executes tx while holding the device's transaction lock.
// The first failing step aborts the rest; save is never sent after a failure.
func (s *Session) Run(ctx context.Context, tx Transaction) Outcome {
	release := s.dev.Acquire()
	defer release()

	out := Outcome{
		Address:     s.dev.Address(),
		Transaction: tx.Name,
	}

	abort := func(err error) Outcome {
		out.Err = err
		var se *StepError
		if errors.As(err, &se) {
			out.FailedStep = se.Step
		}
		s.log.Warn("transaction aborted", zap.String("transaction", tx.Name), zap.Error(err))
		return out
	}

	if err := s.Unlock(ctx); err != nil {
		return abort(err)
	}

	for _, op := range tx.Ops {
		var err error
		switch op.Kind {
		case OpWrite:
			err = s.WriteRegister(ctx, op.Frame, op.Wait)
		case OpRead:
			err = s.readRegister(ctx, op.Frame, op.Wait, op.OnResult)
		default:
			err = s.fail("op", errors.New("unsupported op kind"))
		}
		if err != nil {
			return abort(err)
		}
	}

	if err := s.Save(ctx); err != nil {
		return abort(err)
	}

	out.Saved = true
	s.log.Info("transaction saved", zap.String("transaction", tx.Name))
	return out
}
