// internal/witframe/ble.go
package witframe

import "github.com/tamzrod/imu-bridge/internal/protocol"

// BLE 5.0 frames are 20 bytes.
//
//	0x55 0x61 Ax Ay Az Gx Gy Gz Roll Pitch Yaw   (int16 LE each)
//	0x55 0x71 RegL RegH R0 .. R7                 (register reply)
const (
	bleFrameSize = 20
	bleData      = 0x61
	bleRegister  = 0x71
)

// BLEDecoder decodes the notification stream of a BWT901BLE sensor.
type BLEDecoder struct {
	buf []byte
}

func NewBLEDecoder() *BLEDecoder {
	return &BLEDecoder{}
}

func (d *BLEDecoder) Reset() { d.buf = d.buf[:0] }

func (d *BLEDecoder) Feed(p []byte) map[string]float64 {
	d.buf = append(d.buf, p...)

	var out map[string]float64
	for {
		// sync to a frame head
		i := 0
		for i < len(d.buf) && d.buf[i] != frameHead {
			i++
		}
		d.buf = d.buf[i:]

		if len(d.buf) < 2 {
			break
		}
		kind := d.buf[1]
		if kind != bleData && kind != bleRegister {
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < bleFrameSize {
			break
		}

		out = merge(out, decodeBLE(d.buf[:bleFrameSize]))
		d.buf = d.buf[bleFrameSize:]
	}

	if len(d.buf) > maxBuffered {
		d.buf = d.buf[:0]
	}
	return out
}

func decodeBLE(f []byte) map[string]float64 {
	switch f[1] {
	case bleData:
		out := axes("Acc", f[2:8], protocol.AccScale)
		merge(out, axes("Gyro", f[8:14], protocol.GyroScale))
		merge(out, axes("Angle", f[14:20], protocol.AngleScale))
		return out
	case bleRegister:
		reg := f[2] // register addresses fit in one byte; f[3] is the high byte
		return protocol.RegisterFields(reg, registers(f[4:20], 8))
	}
	return nil
}
