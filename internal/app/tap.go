// internal/app/tap.go
package app

import (
	"github.com/tamzrod/imu-bridge/internal/poller"
	"github.com/tamzrod/imu-bridge/internal/publish"
	"github.com/tamzrod/imu-bridge/internal/status"
)

// statusTap derives device health from each view before passing it on.
// Stale data marks a device stale. Fresh data marks an unknown or stale
// device healthy; an error from the last operation is kept until the next
// operation on that device succeeds.
type statusTap struct {
	book *status.Book
	next publish.Publisher
}

func (t *statusTap) Publish(v poller.View) error {
	for _, d := range v.Devices {
		cur := t.book.Get(d.Address).Health

		switch {
		case d.Stale:
			if cur != status.HealthStale {
				t.book.Set(d.Address, status.HealthStale)
			}
		case cur == status.HealthUnknown || cur == status.HealthStale:
			t.book.Set(d.Address, status.HealthOK)
		}
	}
	return t.next.Publish(v)
}

func (t *statusTap) Close() error { return t.next.Close() }
