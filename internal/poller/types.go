// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// FieldSpec selects one snapshot field for the text view.
type FieldSpec struct {
	Key   string
	Label string
	Unit  string
}

// DefaultFields are the acceleration channels.
func DefaultFields() []FieldSpec {
	return []FieldSpec{
		{Key: protocol.FieldAccX, Label: "AX", Unit: "g"},
		{Key: protocol.FieldAccY, Label: "AY", Unit: "g"},
		{Key: protocol.FieldAccZ, Label: "AZ", Unit: "g"},
	}
}

// DeviceView is one open device inside a View.
type DeviceView struct {
	Address string             `json:"address"`
	Name    string             `json:"name,omitempty"`
	Seq     uint64             `json:"seq"`
	At      time.Time          `json:"at"`
	Stale   bool               `json:"stale,omitempty"`
	Fields  map[string]float64 `json:"fields"`
	Line    string             `json:"line"`
}

// View is the aggregated state of all open devices, rebuilt every cycle.
type View struct {
	At      time.Time    `json:"at"`
	Cycle   uint64       `json:"cycle"`
	Devices []DeviceView `json:"devices"`
	Text    string       `json:"text"`
}
