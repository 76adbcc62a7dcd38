// internal/status/snapshot.go
package status

import (
	"sync"
	"time"
)

// Snapshot is the last known health of one device.
type Snapshot struct {
	Health        uint16    `json:"health"`
	LastErrorCode uint16    `json:"last_error_code"`
	LastError     string    `json:"last_error,omitempty"`
	At            time.Time `json:"at"`
}

// Book keeps one Snapshot per device address.
type Book struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
	now   func() time.Time
}

func NewBook() *Book {
	return &Book{
		snaps: make(map[string]Snapshot),
		now:   time.Now,
	}
}

// Record stores the outcome of an operation. A nil err records OK.
func (b *Book) Record(address string, err error) Snapshot {
	s := Snapshot{At: b.now()}
	if err == nil {
		s.Health = HealthOK
	} else {
		s.Health = HealthError
		s.LastErrorCode = Code(err)
		s.LastError = err.Error()
	}

	b.mu.Lock()
	b.snaps[address] = s
	b.mu.Unlock()
	return s
}

// Set stores a health code without an error, e.g. stale or disabled.
func (b *Book) Set(address string, health uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.snaps[address]
	if s.Health == health {
		return
	}
	s.Health = health
	s.At = b.now()
	if health == HealthOK {
		s.LastErrorCode = 0
		s.LastError = ""
	}
	b.snaps[address] = s
}

// Get returns the snapshot for address; unknown devices report HealthUnknown.
func (b *Book) Get(address string) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snaps[address]
}

func (b *Book) All() map[string]Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Snapshot, len(b.snaps))
	for k, v := range b.snaps {
		out[k] = v
	}
	return out
}

func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snaps = make(map[string]Snapshot)
}
