// Package store provides the process-local stream repository. State
// lives for the process lifetime only; a durable backend would slot in
// behind the same domain.Repository interface.
package store

import (
	"context"
	"sync"

	"github.com/payless2025/payless/internal/stream/domain"
)

// Memory keeps every stream in process memory. Reads hand out deep
// copies so callers can never alias stored state. A per-stream mutex
// serializes mutations on one id while leaving unrelated streams fully
// concurrent.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	stream *domain.PaymentStream
}

// NewMemory constructs an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry)}
}

// Get returns a copy of the stream with the given id.
func (m *Memory) Get(ctx context.Context, id string) (*domain.PaymentStream, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream.Clone(), nil
}

// Put stores a copy of the stream, replacing any previous entry.
func (m *Memory) Put(ctx context.Context, stream *domain.PaymentStream) error {
	if stream == nil || stream.ID == 0 {
		return domain.ErrInvalidStream
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[stream.ID.String()] = &entry{stream: stream.Clone()}
	return nil
}

// List returns copies of every stored stream, in no particular order.
func (m *Memory) List(ctx context.Context) ([]*domain.PaymentStream, error) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	streams := make([]*domain.PaymentStream, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		streams = append(streams, e.stream.Clone())
		e.mu.Unlock()
	}
	return streams, nil
}

// Mutate runs fn on the stored stream under its lock and returns a copy
// of the result. When fn returns an error the entry is left as fn left
// it; callers treat fn as all-or-nothing by only mutating after their
// precondition checks pass.
func (m *Memory) Mutate(ctx context.Context, id string, fn func(*domain.PaymentStream) error) (*domain.PaymentStream, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.stream); err != nil {
		return nil, err
	}
	return e.stream.Clone(), nil
}

func (m *Memory) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	return e, nil
}
