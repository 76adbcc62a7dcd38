// internal/status/constants.go
package status

// Health and error codes are reported to consumers and MUST NOT be renumbered.

// ---- HEALTH CODES ----

// HealthUnknown represents a device that has not run anything yet.
const HealthUnknown uint16 = 0

// HealthOK represents a healthy device.
const HealthOK uint16 = 1

// HealthError represents a device whose last operation failed.
const HealthError uint16 = 2

// HealthStale represents an open device whose samples stopped arriving.
const HealthStale uint16 = 3

// HealthDisabled represents a device that is not open.
const HealthDisabled uint16 = 4

// ---- ERROR CODES ----

// CodeGeneric is used when an error carries no better code.
const CodeGeneric uint16 = 1

const (
	CodeNotConnected  uint16 = 10
	CodeWriteRejected uint16 = 11
	CodeReadTimeout   uint16 = 12
	CodeConnectFailed uint16 = 13
	CodeDisconnected  uint16 = 14
	CodeCanceled      uint16 = 20
)

// HealthName returns a short label for a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthStale:
		return "stale"
	case HealthDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}
