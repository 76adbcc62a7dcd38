// internal/device/errors.go
package device

import "errors"

// Error kinds. Match with errors.Is.
var (
	// ErrNotConnected means an operation was attempted on a device that is not open.
	ErrNotConnected = errors.New("device: not connected")

	// ErrWriteRejected means the transport reported a register write did not go through.
	ErrWriteRejected = errors.New("device: write rejected")

	// ErrReadTimeout means no register value arrived before the read timeout.
	// It is soft: callers decide whether absence matters.
	ErrReadTimeout = errors.New("device: read timeout")

	// ErrConnectFailed wraps link open failures.
	ErrConnectFailed = errors.New("device: connect failed")

	// ErrDisconnected means the link dropped while the device was open.
	ErrDisconnected = errors.New("device: disconnected")
)
