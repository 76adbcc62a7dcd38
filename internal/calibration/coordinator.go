// internal/calibration/coordinator.go
package calibration

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/protocol"
	"github.com/tamzrod/imu-bridge/internal/session"
	"github.com/tamzrod/imu-bridge/internal/status"
)

// Source lists the devices a batch runs over.
type Source interface {
	Handles() []*device.Handle
}

// Config is the runtime config of the coordinator.
type Config struct {
	Session session.Config

	// TriggerSettle is waited after each calibration trigger write.
	TriggerSettle time.Duration

	DiagnosticRegister byte
	DiagnosticTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Session:            session.DefaultConfig(),
		TriggerSettle:      10 * time.Millisecond,
		DiagnosticRegister: 0x03,
		DiagnosticTimeout:  200 * time.Millisecond,
	}
}

// Result is the outcome of a batch operation on one device.
type Result struct {
	Address   string  `json:"address"`
	Name      string  `json:"name,omitempty"`
	Procedure string  `json:"procedure"`
	Saved     bool    `json:"saved"`
	Err       error   `json:"-"`
	Error     string  `json:"error,omitempty"`
	Present   bool    `json:"present,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// OK reports whether the device completed the procedure.
func (r Result) OK() bool { return r.Err == nil }

// Coordinator drives calibration and configuration over every known device,
// one device at a time.
type Coordinator struct {
	src  Source
	cfg  Config
	book *status.Book
	log  *zap.Logger
}

func New(src Source, cfg Config, book *status.Book, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if book == nil {
		book = status.NewBook()
	}
	return &Coordinator{
		src:  src,
		cfg:  cfg,
		book: book,
		log:  log.Named("calibration"),
	}
}

// Run executes one calibration procedure on every device.
// Device failures are logged and returned per device, never as an error.
func (c *Coordinator) Run(ctx context.Context, kind Kind) []Result {
	tx := session.Transaction{
		Name: kind.String(),
		Ops:  []session.Op{session.WriteOp(kind.Frame(), c.cfg.TriggerSettle)},
	}
	return c.batch(ctx, tx)
}

// SetOutputRate selects the output rate on every device. An unsupported rate
// fails before any device is touched.
func (c *Coordinator) SetOutputRate(ctx context.Context, hz float64) ([]Result, error) {
	rate, err := protocol.LookupRate(hz)
	if err != nil {
		return nil, err
	}

	tx := session.Transaction{
		Name: "rate-" + strconv.FormatFloat(hz, 'f', -1, 64) + "hz",
		Ops:  []session.Op{session.WriteOp(rate.Frame(), rate.Settle)},
	}
	return c.batch(ctx, tx), nil
}

// ReadDiagnostic reads the diagnostic register from every device. It is a
// plain read: no unlock and no save. The value is reported as is.
func (c *Coordinator) ReadDiagnostic(ctx context.Context) []Result {
	frame := protocol.ReadFrame(c.cfg.DiagnosticRegister)
	name := "read-" + protocol.RegisterKey(c.cfg.DiagnosticRegister)

	var results []Result
	for _, h := range c.src.Handles() {
		res := Result{Address: h.Address(), Name: h.Name(), Procedure: name}

		s := session.New(h, c.cfg.Session, c.log)
		err := s.ReadRegister(ctx, frame, c.cfg.DiagnosticTimeout, func(r session.ReadResult) {
			res.Present = r.Present
			res.Value = r.Value
		})
		if err != nil {
			c.fail(&res, err)
		} else {
			c.log.Info("diagnostic register",
				zap.String("address", res.Address),
				zap.String("register", protocol.RegisterKey(c.cfg.DiagnosticRegister)),
				zap.Bool("present", res.Present),
				zap.Float64("value", res.Value),
			)
		}
		results = append(results, res)
	}
	return results
}

func (c *Coordinator) batch(ctx context.Context, tx session.Transaction) []Result {
	var results []Result

	for _, h := range c.src.Handles() {
		s := session.New(h, c.cfg.Session, c.log)
		out := s.Run(ctx, tx)

		res := Result{
			Address:   out.Address,
			Name:      h.Name(),
			Procedure: tx.Name,
			Saved:     out.Saved,
		}
		if out.Err != nil {
			c.fail(&res, out.Err)
		} else {
			c.book.Record(res.Address, nil)
		}
		results = append(results, res)
	}

	return results
}

func (c *Coordinator) fail(res *Result, err error) {
	res.Err = err
	res.Error = err.Error()
	c.book.Record(res.Address, err)
	c.log.Warn("set failed",
		zap.String("address", res.Address),
		zap.String("procedure", res.Procedure),
		zap.Error(err),
	)
}

// Summary counts successful and failed devices in results.
func Summary(results []Result) string {
	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	return fmt.Sprintf("%d ok, %d failed", ok, len(results)-ok)
}
