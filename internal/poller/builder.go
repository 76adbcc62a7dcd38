// internal/poller/builder.go
package poller

import (
	"time"

	cfg "github.com/tamzrod/imu-bridge/internal/config"
	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// Build constructs a Poller from the poll section.
// Config must already be validated and normalized.
func Build(pc cfg.PollConfig, src Source) (*Poller, error) {
	return New(BuildConfig(pc), src)
}

// BuildConfig converts the poll section into runtime config.
func BuildConfig(pc cfg.PollConfig) Config {
	fields := make([]FieldSpec, 0, len(pc.Fields))
	for _, key := range pc.Fields {
		fields = append(fields, fieldSpec(key))
	}

	return Config{
		Interval:   time.Duration(pc.IntervalMs) * time.Millisecond,
		Fields:     fields,
		StaleAfter: time.Duration(pc.StaleAfterMs) * time.Millisecond,
	}
}

func fieldSpec(key string) FieldSpec {
	switch key {
	case protocol.FieldAccX:
		return FieldSpec{Key: key, Label: "AX", Unit: "g"}
	case protocol.FieldAccY:
		return FieldSpec{Key: key, Label: "AY", Unit: "g"}
	case protocol.FieldAccZ:
		return FieldSpec{Key: key, Label: "AZ", Unit: "g"}
	case protocol.FieldGyroX:
		return FieldSpec{Key: key, Label: "GX", Unit: "°/s"}
	case protocol.FieldGyroY:
		return FieldSpec{Key: key, Label: "GY", Unit: "°/s"}
	case protocol.FieldGyroZ:
		return FieldSpec{Key: key, Label: "GZ", Unit: "°/s"}
	case protocol.FieldAngleX:
		return FieldSpec{Key: key, Label: "AngX", Unit: "°"}
	case protocol.FieldAngleY:
		return FieldSpec{Key: key, Label: "AngY", Unit: "°"}
	case protocol.FieldAngleZ:
		return FieldSpec{Key: key, Label: "AngZ", Unit: "°"}
	case protocol.FieldMagX:
		return FieldSpec{Key: key, Label: "HX"}
	case protocol.FieldMagY:
		return FieldSpec{Key: key, Label: "HY"}
	case protocol.FieldMagZ:
		return FieldSpec{Key: key, Label: "HZ"}
	case protocol.FieldTemperature:
		return FieldSpec{Key: key, Label: "T", Unit: "°C"}
	case protocol.FieldVoltage:
		return FieldSpec{Key: key, Label: "V", Unit: "V"}
	default:
		return FieldSpec{Key: key, Label: key}
	}
}
