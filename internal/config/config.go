// internal/config/config.go
package config

type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
}

// Driver names.
const (
	DriverSim    = "sim"
	DriverSerial = "serial"
	DriverBLE    = "ble"
	DriverModbus = "modbus"
)

type BridgeConfig struct {
	Driver   string `yaml:"driver"`
	AutoOpen bool   `yaml:"auto_open"`

	Log     LogConfig     `yaml:"log"`
	Poll    PollConfig    `yaml:"poll"`
	Session SessionConfig `yaml:"session"`

	Sim    SimConfig    `yaml:"sim"`
	Serial SerialConfig `yaml:"serial"`
	BLE    BLEConfig    `yaml:"ble"`
	Modbus ModbusConfig `yaml:"modbus"`

	Publish PublishConfig `yaml:"publish"`
}

// ---- LOG ----

type LogConfig struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs   int      `yaml:"interval_ms"`
	StaleAfterMs int      `yaml:"stale_after_ms"`
	Fields       []string `yaml:"fields"`
}

// ---- SESSION ----

type SessionConfig struct {
	UnlockSettleMs  int `yaml:"unlock_settle_ms"`
	SaveSettleMs    int `yaml:"save_settle_ms"`
	TriggerSettleMs int `yaml:"trigger_settle_ms"`

	DiagnosticRegister  uint8 `yaml:"diagnostic_register"`
	DiagnosticTimeoutMs int   `yaml:"diagnostic_timeout_ms"`
}

// ---- DRIVERS ----

type SimConfig struct {
	RateHz  float64     `yaml:"rate_hz"`
	Devices []SimDevice `yaml:"devices"`
}

type SimDevice struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name"`

	// Fault injection for drills.
	FailWrites bool `yaml:"fail_writes"`
	FailOpen   bool `yaml:"fail_open"`
}

type SerialConfig struct {
	// Ports pins the ports to use; empty means enumerate.
	Ports      []string `yaml:"ports"`
	PortPrefix string   `yaml:"port_prefix"`
	BaudRate   int      `yaml:"baud_rate"`
	RescanMs   int      `yaml:"rescan_ms"`
}

type BLEConfig struct {
	NamePrefix string `yaml:"name_prefix"`

	// AuxPollMs requests magnetometer, temperature and voltage registers
	// at this period. Zero disables it.
	AuxPollMs int `yaml:"aux_poll_ms"`
}

type ModbusConfig struct {
	TimeoutMs      int            `yaml:"timeout_ms"`
	PollIntervalMs int            `yaml:"poll_interval_ms"`
	Devices        []ModbusDevice `yaml:"devices"`
}

type ModbusDevice struct {
	// Endpoint is a serial port path (RTU) or host:port (TCP).
	Endpoint string `yaml:"endpoint"`
	Name     string `yaml:"name"`
	SlaveID  uint8  `yaml:"slave_id"`
	BaudRate int    `yaml:"baud_rate"`
}

// ---- PUBLISH ----

type PublishConfig struct {
	Console ConsoleConfig `yaml:"console"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Retained bool   `yaml:"retained"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}
