// internal/link/modbus/pool.go
package modbus

import "sync"

// registerClient is the exact contract the link uses.
type registerClient interface {
	ReadHoldingRegisters(slaveID uint8, addr, qty uint16) ([]uint16, error)
	WriteRegister(slaveID uint8, addr, value uint16) error
	Close() error
}

type dialer func(cfg EndpointConfig) (registerClient, error)

func dialEndpoint(cfg EndpointConfig) (registerClient, error) {
	return NewEndpointClient(cfg)
}

// pool shares one client per endpoint between links and closes it when the
// last link releases it.
type pool struct {
	mu      sync.Mutex
	dial    dialer
	clients map[string]*pooled
}

type pooled struct {
	cli  registerClient
	refs int
}

func newPool(dial dialer) *pool {
	return &pool{dial: dial, clients: make(map[string]*pooled)}
}

func (p *pool) acquire(cfg EndpointConfig) (registerClient, func() error, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.clients[cfg.Endpoint]
	if !ok {
		cli, err := p.dial(cfg)
		if err != nil {
			return nil, nil, err
		}
		pc = &pooled{cli: cli}
		p.clients[cfg.Endpoint] = pc
	}
	pc.refs++

	var once sync.Once
	release := func() error {
		var err error
		once.Do(func() { err = p.release(cfg.Endpoint) })
		return err
	}
	return pc.cli, release, nil
}

func (p *pool) release(endpoint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pc, ok := p.clients[endpoint]
	if !ok {
		return nil
	}
	pc.refs--
	if pc.refs > 0 {
		return nil
	}
	delete(p.clients, endpoint)
	return pc.cli.Close()
}
