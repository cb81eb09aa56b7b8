// Package store provides Journal implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/ticket-ledger/generic"
)

// =============================================================================
// MEMORY JOURNAL - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	events      []generic.Event
	idempotency map[string]bool

	// failNext makes the next Append fail. Tests use it for journal failures.
	failNext error
}

func NewMemory() *Memory {
	return &Memory{
		idempotency: make(map[string]bool),
	}
}

// Append adds an event. Append-only.
func (m *Memory) Append(_ context.Context, ev generic.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return 0, err
	}
	if ev.IdempotencyKey != "" && m.idempotency[ev.IdempotencyKey] {
		return 0, generic.ErrDuplicateIdempotencyKey
	}

	ev.Seq = int64(len(m.events)) + 1
	m.events = append(m.events, ev)
	if ev.IdempotencyKey != "" {
		m.idempotency[ev.IdempotencyKey] = true
	}
	return ev.Seq, nil
}

func (m *Memory) Events(_ context.Context, afterSeq int64) ([]generic.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(m.events)) {
		return []generic.Event{}, nil
	}
	result := make([]generic.Event, len(m.events)-int(afterSeq))
	copy(result, m.events[afterSeq:])
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.idempotency = make(map[string]bool)
	return nil
}

// Len returns the number of journaled events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// FailNextAppend makes the next Append return err without recording anything.
func (m *Memory) FailNextAppend(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}
