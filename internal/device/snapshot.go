// internal/device/snapshot.go
package device

import (
	"context"
	"sync"
	"time"
)

// Reading is a copy of a snapshot at one point in time.
type Reading struct {
	Fields map[string]float64
	Seq    uint64
	At     time.Time
}

// Snapshot is the latest decoded measurement set for one device.
// Written by the link listener, read by everyone else.
type Snapshot struct {
	mu      sync.RWMutex
	fields  map[string]float64
	keySeq  map[string]uint64
	seq     uint64
	at      time.Time
	changed chan struct{}
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		fields:  make(map[string]float64),
		keySeq:  make(map[string]uint64),
		changed: make(chan struct{}),
	}
}

// Update merges fields into the snapshot and wakes waiters.
func (s *Snapshot) Update(fields map[string]float64) {
	if len(fields) == 0 {
		return
	}

	s.mu.Lock()
	s.seq++
	s.at = time.Now()
	for k, v := range fields {
		s.fields[k] = v
		s.keySeq[k] = s.seq
	}
	ch := s.changed
	s.changed = make(chan struct{})
	s.mu.Unlock()

	close(ch)
}

func (s *Snapshot) Get(key string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.fields[key]
	return v, ok
}

// Seq returns the sequence marker of the last update. Zero means never updated.
func (s *Snapshot) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

func (s *Snapshot) Read() Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields := make(map[string]float64, len(s.fields))
	for k, v := range s.fields {
		fields[k] = v
	}
	return Reading{Fields: fields, Seq: s.seq, At: s.at}
}

// Clear drops all fields. The sequence marker keeps counting.
func (s *Snapshot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = make(map[string]float64)
	s.keySeq = make(map[string]uint64)
}

// WaitFresh waits until key is updated after sequence marker since, or until
// timeout or ctx ends. It returns whatever value key holds at that point.
func (s *Snapshot) WaitFresh(ctx context.Context, key string, since uint64, timeout time.Duration) (float64, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.RLock()
		v, ok := s.fields[key]
		fresh := s.keySeq[key] > since
		ch := s.changed
		s.mu.RUnlock()

		if ok && fresh {
			return v, true
		}

		select {
		case <-ch:
		case <-timer.C:
			return s.Get(key)
		case <-ctx.Done():
			return s.Get(key)
		}
	}
}
