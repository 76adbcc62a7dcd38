// internal/app/builder.go
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/imu-bridge/internal/calibration"
	cfg "github.com/tamzrod/imu-bridge/internal/config"
	"github.com/tamzrod/imu-bridge/internal/device"
	"github.com/tamzrod/imu-bridge/internal/link/ble"
	"github.com/tamzrod/imu-bridge/internal/link/modbus"
	"github.com/tamzrod/imu-bridge/internal/link/serial"
	"github.com/tamzrod/imu-bridge/internal/link/sim"
	"github.com/tamzrod/imu-bridge/internal/poller"
	"github.com/tamzrod/imu-bridge/internal/publish"
	"github.com/tamzrod/imu-bridge/internal/session"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// BuildDriver selects the transport named in the config.
// Config must already be validated and normalized.
func BuildDriver(b cfg.BridgeConfig, log *zap.Logger) (device.Driver, error) {
	switch b.Driver {
	case cfg.DriverSim:
		devs := make([]sim.Device, 0, len(b.Sim.Devices))
		for _, d := range b.Sim.Devices {
			devs = append(devs, sim.Device{
				Address:    d.Address,
				Name:       d.Name,
				FailWrites: d.FailWrites,
				FailOpen:   d.FailOpen,
			})
		}
		return sim.NewDriver(sim.Config{RateHz: b.Sim.RateHz, Devices: devs}, log), nil

	case cfg.DriverSerial:
		return serial.NewDriver(serial.Config{
			Ports:      b.Serial.Ports,
			PortPrefix: b.Serial.PortPrefix,
			BaudRate:   b.Serial.BaudRate,
			Rescan:     ms(b.Serial.RescanMs),
		}, log), nil

	case cfg.DriverBLE:
		return ble.NewDriver(ble.Config{
			NamePrefix: b.BLE.NamePrefix,
			AuxPoll:    ms(b.BLE.AuxPollMs),
		}, log), nil

	case cfg.DriverModbus:
		devs := make([]modbus.DeviceConfig, 0, len(b.Modbus.Devices))
		for _, d := range b.Modbus.Devices {
			devs = append(devs, modbus.DeviceConfig{
				Endpoint: d.Endpoint,
				Name:     d.Name,
				SlaveID:  d.SlaveID,
				BaudRate: d.BaudRate,
			})
		}
		return modbus.NewDriver(modbus.Config{
			Devices:      devs,
			Timeout:      ms(b.Modbus.TimeoutMs),
			PollInterval: ms(b.Modbus.PollIntervalMs),
		}, log), nil

	default:
		return nil, fmt.Errorf("app: unknown driver %q", b.Driver)
	}
}

// BuildOptions converts the bridge config into app options.
func BuildOptions(b cfg.BridgeConfig, pub publish.Publisher) Options {
	return Options{
		AutoOpen: b.AutoOpen,
		Poll:     poller.BuildConfig(b.Poll),
		Calibration: calibration.Config{
			Session: session.Config{
				UnlockSettle: ms(b.Session.UnlockSettleMs),
				SaveSettle:   ms(b.Session.SaveSettleMs),
			},
			TriggerSettle:      ms(b.Session.TriggerSettleMs),
			DiagnosticRegister: b.Session.DiagnosticRegister,
			DiagnosticTimeout:  ms(b.Session.DiagnosticTimeoutMs),
		},
		Publisher: pub,
	}
}
