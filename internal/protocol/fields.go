// internal/protocol/fields.go
package protocol

// Decoded field names.
const (
	FieldAccX   = "AccX"
	FieldAccY   = "AccY"
	FieldAccZ   = "AccZ"
	FieldGyroX  = "GyroX"
	FieldGyroY  = "GyroY"
	FieldGyroZ  = "GyroZ"
	FieldAngleX = "AngleX"
	FieldAngleY = "AngleY"
	FieldAngleZ = "AngleZ"
	FieldMagX   = "MagX"
	FieldMagY   = "MagY"
	FieldMagZ   = "MagZ"

	FieldTemperature = "Temperature"
	FieldVoltage     = "Voltage"
)

// Scale factors from raw int16 to physical units.
const (
	AccScale   = 16.0 / 32768.0   // g
	GyroScale  = 2000.0 / 32768.0 // deg/s
	AngleScale = 180.0 / 32768.0  // deg
	TempScale  = 1.0 / 100.0      // degC
	VoltScale  = 1.0 / 100.0      // V
)

var knownFields = map[string]bool{
	FieldAccX: true, FieldAccY: true, FieldAccZ: true,
	FieldGyroX: true, FieldGyroY: true, FieldGyroZ: true,
	FieldAngleX: true, FieldAngleY: true, FieldAngleZ: true,
	FieldMagX: true, FieldMagY: true, FieldMagZ: true,
	FieldTemperature: true, FieldVoltage: true,
}

// IsKnownField reports whether name is a decoded measurement field.
func IsKnownField(name string) bool {
	return knownFields[name]
}

// RegisterFields converts consecutive raw register values starting at start
// into fields. Every register is published under its hex key; registers in
// the measurement map are also published under their field name.
func RegisterFields(start byte, values []int16) map[string]float64 {
	out := make(map[string]float64, len(values)*2)
	for i, v := range values {
		reg := start + byte(i)
		out[RegisterKey(reg)] = float64(v)

		switch {
		case reg >= RegAccX && reg < RegAccX+3:
			out[axis("Acc", reg-RegAccX)] = float64(v) * AccScale
		case reg >= RegGyroX && reg < RegGyroX+3:
			out[axis("Gyro", reg-RegGyroX)] = float64(v) * GyroScale
		case reg >= RegMagX && reg < RegMagX+3:
			out[axis("Mag", reg-RegMagX)] = float64(v)
		case reg >= RegAngleX && reg < RegAngleX+3:
			out[axis("Angle", reg-RegAngleX)] = float64(v) * AngleScale
		case reg == RegTemp:
			out[FieldTemperature] = float64(v) * TempScale
		case reg == RegVoltage:
			out[FieldVoltage] = float64(uint16(v)) * VoltScale
		}
	}
	return out
}

func axis(prefix string, i byte) string {
	return prefix + string("XYZ"[i])
}
