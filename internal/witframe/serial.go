// internal/witframe/serial.go
package witframe

import (
	"sync"

	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// UART frames are 11 bytes: 0x55 type d0..d7 checksum, where checksum is
// the low byte of the sum of the first 10 bytes.
const (
	serialFrameSize = 11

	serialAcc      = 0x51
	serialGyro     = 0x52
	serialAngle    = 0x53
	serialMag      = 0x54
	serialRegister = 0x5F
)

// SerialDecoder decodes the UART stream of a WT901 sensor.
// Register replies do not carry their address, so the link tells the
// decoder which register it asked for.
type SerialDecoder struct {
	buf []byte

	mu      sync.Mutex
	pending byte
}

func NewSerialDecoder() *SerialDecoder {
	return &SerialDecoder{}
}

// ExpectRead records the register of the next register reply.
func (d *SerialDecoder) ExpectRead(reg byte) {
	d.mu.Lock()
	d.pending = reg
	d.mu.Unlock()
}

func (d *SerialDecoder) Reset() { d.buf = d.buf[:0] }

func (d *SerialDecoder) Feed(p []byte) map[string]float64 {
	d.buf = append(d.buf, p...)

	var out map[string]float64
	for {
		i := 0
		for i < len(d.buf) && d.buf[i] != frameHead {
			i++
		}
		d.buf = d.buf[i:]

		if len(d.buf) < serialFrameSize {
			break
		}

		f := d.buf[:serialFrameSize]
		if !checksumOK(f) {
			d.buf = d.buf[1:]
			continue
		}

		out = merge(out, d.decode(f))
		d.buf = d.buf[serialFrameSize:]
	}

	if len(d.buf) > maxBuffered {
		d.buf = d.buf[:0]
	}
	return out
}

func checksumOK(f []byte) bool {
	var sum byte
	for _, b := range f[:serialFrameSize-1] {
		sum += b
	}
	return sum == f[serialFrameSize-1]
}

func (d *SerialDecoder) decode(f []byte) map[string]float64 {
	data := f[2:10]

	switch f[1] {
	case serialAcc:
		out := axes("Acc", data[0:6], protocol.AccScale)
		out[protocol.FieldTemperature] = float64(le16(data[6:8])) * protocol.TempScale
		return out
	case serialGyro:
		return axes("Gyro", data[0:6], protocol.GyroScale)
	case serialAngle:
		return axes("Angle", data[0:6], protocol.AngleScale)
	case serialMag:
		return axes("Mag", data[0:6], 1)
	case serialRegister:
		d.mu.Lock()
		reg := d.pending
		d.mu.Unlock()
		return protocol.RegisterFields(reg, registers(data, 4))
	}
	return nil
}
