// internal/device/link.go
package device

import (
	"context"

	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// Candidate is one discovery event.
type Candidate struct {
	Address string
	Name    string
}

// Listener receives link events for one device.
// Events for one device are delivered in order.
type Listener interface {
	// OnFields delivers decoded field updates. Last value wins per key.
	OnFields(fields map[string]float64)

	// OnDisconnected reports that the link dropped on its own.
	OnDisconnected(err error)
}

// Link is one physical connection to a sensor.
type Link interface {
	Open(ctx context.Context, l Listener) error
	Close() error
	SendRegisterFrame(frame []byte) error

	// Commands returns the unlock and save frames this transport expects.
	Commands() protocol.CommandSet
}

// Driver discovers devices and builds links for them.
type Driver interface {
	// Scan reports candidates until ctx is done.
	Scan(ctx context.Context, found func(Candidate)) error

	Link(c Candidate) (Link, error)
}
