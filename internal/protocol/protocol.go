// internal/protocol/protocol.go
package protocol

import (
	"errors"
	"fmt"
)

// Register command frames are five bytes: FF AA <reg> <lo> <hi>.
const (
	Header0   byte = 0xFF
	Header1   byte = 0xAA
	FrameSize      = 5
)

// Register addresses used by the command path.
const (
	RegSave     byte = 0x00
	RegCalSw    byte = 0x01
	RegRate     byte = 0x03
	RegReadAddr byte = 0x27
	RegKey      byte = 0x69

	RegAccX    byte = 0x34
	RegGyroX   byte = 0x37
	RegMagX    byte = 0x3A
	RegAngleX  byte = 0x3D
	RegTemp    byte = 0x40
	RegVoltage byte = 0x64
)

// Calibration switch values written to RegCalSw.
const (
	CalNormal   uint16 = 0x0000
	CalAccel    uint16 = 0x0001
	CalMagStart uint16 = 0x0007
)

// KeyUnlock is the value written to RegKey to open the register map.
const KeyUnlock uint16 = 0xB588

// Command is a decoded register command frame.
type Command struct {
	Reg   byte
	Value uint16
}

// IsRead reports whether the command is a register read request.
func (c Command) IsRead() bool { return c.Reg == RegReadAddr }

// ReadTarget returns the register a read request asks for.
func (c Command) ReadTarget() byte { return byte(c.Value) }

// WriteFrame encodes a register write.
func WriteFrame(reg byte, value uint16) []byte {
	return []byte{Header0, Header1, reg, byte(value), byte(value >> 8)}
}

// ReadFrame encodes a register read request.
func ReadFrame(reg byte) []byte {
	return WriteFrame(RegReadAddr, uint16(reg))
}

// ParseFrame decodes a five byte register command frame.
func ParseFrame(b []byte) (Command, error) {
	if len(b) != FrameSize {
		return Command{}, fmt.Errorf("protocol: frame length %d, want %d", len(b), FrameSize)
	}
	if b[0] != Header0 || b[1] != Header1 {
		return Command{}, errors.New("protocol: bad frame header")
	}
	return Command{
		Reg:   b[2],
		Value: uint16(b[3]) | uint16(b[4])<<8,
	}, nil
}

// RegisterKey is the snapshot key a register value is published under.
func RegisterKey(reg byte) string {
	return fmt.Sprintf("%02X", reg)
}

// ReadKey returns the snapshot key answered by a read request frame.
func ReadKey(frame []byte) (string, bool) {
	cmd, err := ParseFrame(frame)
	if err != nil || !cmd.IsRead() {
		return "", false
	}
	return RegisterKey(cmd.ReadTarget()), true
}

// CommandSet holds the vendor frames a link expects around a transaction.
type CommandSet struct {
	Unlock []byte
	Save   []byte
}

// WitMotion returns the command set used by WitMotion sensors on every transport.
func WitMotion() CommandSet {
	return CommandSet{
		Unlock: WriteFrame(RegKey, KeyUnlock),
		Save:   WriteFrame(RegSave, 0),
	}
}

// Calibration trigger frames.
var (
	AccelCalibration    = WriteFrame(RegCalSw, CalAccel)
	MagCalibrationStart = WriteFrame(RegCalSw, CalMagStart)
	MagCalibrationEnd   = WriteFrame(RegCalSw, CalNormal)
)
