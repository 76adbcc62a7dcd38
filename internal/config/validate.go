// internal/config/validate.go
package config

import (
	"fmt"
	"net/url"

	"go.uber.org/zap/zapcore"

	"github.com/tamzrod/imu-bridge/internal/protocol"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	b := cfg.Bridge

	// ------------------------------------------------------------
	// DRIVER
	// ------------------------------------------------------------

	switch b.Driver {
	case DriverSim, DriverSerial, DriverBLE, DriverModbus:
	case "":
		return fmt.Errorf("driver is required (sim, serial, ble, modbus)")
	default:
		return fmt.Errorf("driver %q is not supported", b.Driver)
	}

	// ------------------------------------------------------------
	// LOG / POLL / SESSION
	// ------------------------------------------------------------

	if b.Log.Level != "" {
		if _, err := zapcore.ParseLevel(b.Log.Level); err != nil {
			return fmt.Errorf("log.level %q: %v", b.Log.Level, err)
		}
	}

	if b.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll.interval_ms must be >= 0")
	}
	if b.Poll.StaleAfterMs < 0 {
		return fmt.Errorf("poll.stale_after_ms must be >= 0")
	}
	for _, f := range b.Poll.Fields {
		if !protocol.IsKnownField(f) {
			return fmt.Errorf("poll.fields: unknown field %q", f)
		}
	}

	s := b.Session
	if s.UnlockSettleMs < 0 || s.SaveSettleMs < 0 || s.TriggerSettleMs < 0 || s.DiagnosticTimeoutMs < 0 {
		return fmt.Errorf("session: delays must be >= 0")
	}

	// ------------------------------------------------------------
	// DRIVER SECTIONS
	// ------------------------------------------------------------

	switch b.Driver {
	case DriverSim:
		if b.Sim.RateHz < 0 {
			return fmt.Errorf("sim.rate_hz must be >= 0")
		}
		seen := make(map[string]bool)
		for _, d := range b.Sim.Devices {
			if d.Address == "" {
				return fmt.Errorf("sim device %q: address is required", d.Name)
			}
			if seen[d.Address] {
				return fmt.Errorf("sim device %q: duplicate address", d.Address)
			}
			seen[d.Address] = true
		}

	case DriverSerial:
		if b.Serial.BaudRate < 0 {
			return fmt.Errorf("serial.baud_rate must be >= 0")
		}
		if b.Serial.RescanMs < 0 {
			return fmt.Errorf("serial.rescan_ms must be >= 0")
		}

	case DriverBLE:
		if b.BLE.AuxPollMs < 0 {
			return fmt.Errorf("ble.aux_poll_ms must be >= 0")
		}

	case DriverModbus:
		if len(b.Modbus.Devices) == 0 {
			return fmt.Errorf("modbus: at least one device is required")
		}
		seen := make(map[string]bool)
		for _, d := range b.Modbus.Devices {
			if d.Endpoint == "" {
				return fmt.Errorf("modbus device %q: endpoint is required", d.Name)
			}
			key := fmt.Sprintf("%s|%d", d.Endpoint, d.SlaveID)
			if seen[key] {
				return fmt.Errorf(
					"modbus device %q: endpoint=%s slave_id=%d used twice",
					d.Name,
					d.Endpoint,
					d.SlaveID,
				)
			}
			seen[key] = true
		}
		if b.Modbus.TimeoutMs < 0 || b.Modbus.PollIntervalMs < 0 {
			return fmt.Errorf("modbus: timings must be >= 0")
		}
	}

	// ------------------------------------------------------------
	// PUBLISH
	// ------------------------------------------------------------

	if m := b.Publish.MQTT; m.Broker != "" {
		u, err := url.Parse(m.Broker)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("publish.mqtt.broker %q: expected scheme://host:port", m.Broker)
		}
	} else if m.Topic != "" || m.ClientID != "" {
		return fmt.Errorf("publish.mqtt: broker is required when mqtt is configured")
	}

	return nil
}
