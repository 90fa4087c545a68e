// Package voicestore holds the reference voice binding: the single, process-wide
// "last uploaded reference audio" that every generation request reads at request time.
package voicestore

import (
	"sync/atomic"
	"time"
)

// Binding is one bound reference audio. Version increases by one with every Set.
type Binding struct {
	Path    string    `json:"path"`
	Version uint64    `json:"version"`
	BoundAt time.Time `json:"bound_at"`
}

// Store is a thread-safe single slot with last-write-wins semantics.
// Readers never see a partially written binding.
type Store struct {
	current atomic.Pointer[Binding]
	version atomic.Uint64
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Set(path string) Binding {
	b := &Binding{
		Path:    path,
		Version: s.version.Add(1),
		BoundAt: time.Now().UTC(),
	}
	// Concurrent writers may finish out of order; keep the highest version.
	for {
		prev := s.current.Load()
		if prev != nil && prev.Version > b.Version {
			return *prev
		}
		if s.current.CompareAndSwap(prev, b) {
			return *b
		}
	}
}

// Current returns the bound reference audio, ok is false if nothing was ever bound.
func (s *Store) Current() (Binding, bool) {
	b := s.current.Load()
	if b == nil {
		return Binding{}, false
	}
	return *b, true
}
