// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run starts the ticker loop and hands each view to out.
// The loop never waits on the consumer: when out is full the pending view
// is replaced by the newer one. out should have capacity 1.
func (p *Poller) Run(ctx context.Context, out chan View) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handoff(out, p.PollOnce())
		}
	}
}

func handoff(out chan View, v View) {
	if cap(out) == 0 {
		select {
		case out <- v:
		default:
		}
		return
	}

	for {
		select {
		case out <- v:
			return
		default:
		}

		// Drop the unread view; latest wins.
		select {
		case <-out:
		default:
		}
	}
}
