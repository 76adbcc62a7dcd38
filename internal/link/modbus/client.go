// internal/link/modbus/client.go
package modbus

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// EndpointClient is a single connection to one Modbus endpoint (a serial
// bus or a TCP gateway). Sensors on the same bus share it.
// It serializes requests because it mutates SlaveId per request.
type EndpointClient struct {
	mu       sync.Mutex
	client   modbus.Client
	setSlave func(id byte)
	close    func() error
}

type EndpointConfig struct {
	// Endpoint is a serial port path (RTU) or host:port (TCP).
	Endpoint string
	BaudRate int
	Timeout  time.Duration
}

// isTCP treats host:port and tcp://host:port as TCP gateways. Anything else
// is a serial device path.
func isTCP(endpoint string) bool {
	if strings.HasPrefix(endpoint, "tcp://") {
		return true
	}
	return !strings.HasPrefix(endpoint, "/") && strings.Contains(endpoint, ":")
}

func NewEndpointClient(cfg EndpointConfig) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("link modbus: endpoint required")
	}

	if isTCP(cfg.Endpoint) {
		h := modbus.NewTCPClientHandler(strings.TrimPrefix(cfg.Endpoint, "tcp://"))
		h.Timeout = cfg.Timeout

		if err := h.Connect(); err != nil {
			return nil, err
		}
		return &EndpointClient{
			client:   modbus.NewClient(h),
			setSlave: func(id byte) { h.SlaveId = id },
			close:    h.Close,
		}, nil
	}

	h := modbus.NewRTUClientHandler(cfg.Endpoint)
	h.BaudRate = cfg.BaudRate
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, err
	}
	return &EndpointClient{
		client:   modbus.NewClient(h),
		setSlave: func(id byte) { h.SlaveId = id },
		close:    h.Close,
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

// ReadHoldingRegisters reads qty registers from one sensor (FC 3).
func (c *EndpointClient) ReadHoldingRegisters(slaveID uint8, addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setSlave(slaveID)

	b, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(b), nil
}

// WriteRegister writes one register on one sensor (FC 6).
func (c *EndpointClient) WriteRegister(slaveID uint8, addr, value uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setSlave(slaveID)

	_, err := c.client.WriteSingleRegister(addr, value)
	return err
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
