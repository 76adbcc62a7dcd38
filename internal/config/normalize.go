// internal/config/normalize.go
package config

import "github.com/tamzrod/imu-bridge/internal/protocol"

// Defaults applied by Normalize.
const (
	DefaultPollIntervalMs      = 200
	DefaultSettleMs            = 10
	DefaultDiagnosticRegister  = 0x03
	DefaultDiagnosticTimeoutMs = 200
	DefaultSerialBaud          = 9600
	DefaultSerialRescanMs      = 1000
	DefaultBLENamePrefix       = "WT"
	DefaultModbusSlaveID       = 0x50
	DefaultModbusTimeoutMs     = 500
	DefaultModbusPollMs        = 100
	DefaultSimRateHz           = 10
	DefaultMQTTTopic           = "imubridge"
	DefaultMQTTClientID        = "imubridge"
	DefaultLogLevel            = "info"
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	b := &cfg.Bridge

	if b.Log.Level == "" {
		b.Log.Level = DefaultLogLevel
	}

	// ---- poll ----
	if b.Poll.IntervalMs == 0 {
		b.Poll.IntervalMs = DefaultPollIntervalMs
	}
	if len(b.Poll.Fields) == 0 {
		b.Poll.Fields = []string{protocol.FieldAccX, protocol.FieldAccY, protocol.FieldAccZ}
	}

	// ---- session ----
	s := &b.Session
	if s.UnlockSettleMs == 0 {
		s.UnlockSettleMs = DefaultSettleMs
	}
	if s.SaveSettleMs == 0 {
		s.SaveSettleMs = DefaultSettleMs
	}
	if s.TriggerSettleMs == 0 {
		s.TriggerSettleMs = DefaultSettleMs
	}
	if s.DiagnosticRegister == 0 {
		s.DiagnosticRegister = DefaultDiagnosticRegister
	}
	if s.DiagnosticTimeoutMs == 0 {
		s.DiagnosticTimeoutMs = DefaultDiagnosticTimeoutMs
	}

	// ---- drivers ----
	if b.Sim.RateHz == 0 {
		b.Sim.RateHz = DefaultSimRateHz
	}

	if b.Serial.BaudRate == 0 {
		b.Serial.BaudRate = DefaultSerialBaud
	}
	if b.Serial.RescanMs == 0 {
		b.Serial.RescanMs = DefaultSerialRescanMs
	}

	if b.BLE.NamePrefix == "" {
		b.BLE.NamePrefix = DefaultBLENamePrefix
	}

	if b.Modbus.TimeoutMs == 0 {
		b.Modbus.TimeoutMs = DefaultModbusTimeoutMs
	}
	if b.Modbus.PollIntervalMs == 0 {
		b.Modbus.PollIntervalMs = DefaultModbusPollMs
	}
	for i := range b.Modbus.Devices {
		d := &b.Modbus.Devices[i]
		if d.SlaveID == 0 {
			d.SlaveID = DefaultModbusSlaveID
		}
		if d.BaudRate == 0 {
			d.BaudRate = DefaultSerialBaud
		}
	}

	// ---- publish ----
	if b.Publish.MQTT.Broker != "" {
		if b.Publish.MQTT.Topic == "" {
			b.Publish.MQTT.Topic = DefaultMQTTTopic
		}
		if b.Publish.MQTT.ClientID == "" {
			b.Publish.MQTT.ClientID = DefaultMQTTClientID
		}
	}
}
