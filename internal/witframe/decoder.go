// internal/witframe/decoder.go
package witframe

import "encoding/binary"

// Decoder turns a raw byte stream from a sensor into decoded fields.
// Frames may be split or merged across Feed calls.
type Decoder interface {
	// Feed consumes p and returns the fields of every complete frame in it,
	// merged. It returns nil when no frame completed.
	Feed(p []byte) map[string]float64

	Reset()
}

const (
	frameHead = 0x55

	// maxBuffered bounds the buffer when a stream never syncs.
	maxBuffered = 4096
)

func le16(b []byte) int16 {
	return int16(binary.LittleEndian.Uint16(b))
}

func merge(dst, src map[string]float64) map[string]float64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]float64, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func axes(prefix string, b []byte, scale float64) map[string]float64 {
	return map[string]float64{
		prefix + "X": float64(le16(b[0:2])) * scale,
		prefix + "Y": float64(le16(b[2:4])) * scale,
		prefix + "Z": float64(le16(b[4:6])) * scale,
	}
}

// registers reads n little-endian int16 values from b.
func registers(b []byte, n int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = le16(b[2*i : 2*i+2])
	}
	return out
}
