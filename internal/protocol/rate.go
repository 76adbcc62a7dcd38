// internal/protocol/rate.go
package protocol

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Rate is one selectable output rate.
type Rate struct {
	Hz     float64
	Code   byte
	Settle time.Duration
}

// Frame returns the rate-select register write.
func (r Rate) Frame() []byte {
	return WriteFrame(RegRate, uint16(r.Code))
}

// Settle times follow the sensor: slow rates need roughly one output period
// before the next command is accepted.
var rates = []Rate{
	{Hz: 0.2, Code: 0x01, Settle: 100 * time.Millisecond},
	{Hz: 0.5, Code: 0x02, Settle: 100 * time.Millisecond},
	{Hz: 1, Code: 0x03, Settle: 100 * time.Millisecond},
	{Hz: 2, Code: 0x04, Settle: 100 * time.Millisecond},
	{Hz: 5, Code: 0x05, Settle: 100 * time.Millisecond},
	{Hz: 10, Code: 0x06, Settle: 100 * time.Millisecond},
	{Hz: 20, Code: 0x07, Settle: 50 * time.Millisecond},
	{Hz: 50, Code: 0x08, Settle: 10 * time.Millisecond},
	{Hz: 100, Code: 0x09, Settle: 10 * time.Millisecond},
	{Hz: 200, Code: 0x0B, Settle: 10 * time.Millisecond},
}

// LookupRate returns the rate entry for hz.
func LookupRate(hz float64) (Rate, error) {
	for _, r := range rates {
		if r.Hz == hz {
			return r, nil
		}
	}
	return Rate{}, fmt.Errorf("protocol: unsupported output rate %sHz", strconv.FormatFloat(hz, 'f', -1, 64))
}

// RateByCode returns the rate entry for a register code.
func RateByCode(code byte) (Rate, bool) {
	for _, r := range rates {
		if r.Code == code {
			return r, true
		}
	}
	return Rate{}, false
}

// Rates lists the supported rates in ascending order.
func Rates() []Rate {
	out := make([]Rate, len(rates))
	copy(out, rates)
	sort.Slice(out, func(i, j int) bool { return out[i].Hz < out[j].Hz })
	return out
}
