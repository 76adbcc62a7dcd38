// internal/status/code.go
package status

import (
	"context"
	"errors"

	"github.com/tamzrod/imu-bridge/internal/device"
)

// Code extracts a best-effort uint16 code from an error.
// Known error kinds map to fixed codes; otherwise a Code() method is used
// when present, and 1 (generic error) when not.
func Code(err error) uint16 {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, device.ErrNotConnected):
		return CodeNotConnected
	case errors.Is(err, device.ErrWriteRejected):
		return CodeWriteRejected
	case errors.Is(err, device.ErrReadTimeout):
		return CodeReadTimeout
	case errors.Is(err, device.ErrConnectFailed):
		return CodeConnectFailed
	case errors.Is(err, device.ErrDisconnected):
		return CodeDisconnected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	}

	type coder interface{ Code() uint16 }

	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}

	return CodeGeneric
}
