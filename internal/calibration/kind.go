// internal/calibration/kind.go
package calibration

import (
	"fmt"

	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// Kind is a named calibration procedure.
type Kind int

const (
	AccelCalibration Kind = iota
	MagCalibrationStart
	MagCalibrationEnd
)

func (k Kind) String() string {
	switch k {
	case AccelCalibration:
		return "accel"
	case MagCalibrationStart:
		return "mag-start"
	case MagCalibrationEnd:
		return "mag-end"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame returns the trigger register write for k.
func (k Kind) Frame() []byte {
	switch k {
	case MagCalibrationStart:
		return protocol.MagCalibrationStart
	case MagCalibrationEnd:
		return protocol.MagCalibrationEnd
	default:
		return protocol.AccelCalibration
	}
}

// ParseKind accepts the names returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{AccelCalibration, MagCalibrationStart, MagCalibrationEnd} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("calibration: unknown procedure %q", s)
}
