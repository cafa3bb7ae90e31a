package ids

import (
	"sync"

	"github.com/google/uuid"
)

// TaskIDGenerator mints fresh task IDs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type TaskIDGenerator interface {
	NewTaskID() TaskID
}

// UUIDv7Generator generates time-sortable UUIDv7 task IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, making IDs
// sortable by creation time, which keeps log output and sorted emission
// roughly chronological.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewTaskID creates a new UUIDv7-backed task ID.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) NewTaskID() TaskID {
	return TaskID(uuid.Must(uuid.NewV7()).String())
}

// FixedGenerator returns predetermined task IDs for testing.
// This enables deterministic scenarios and golden trace comparison.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []TaskID
	idx int
}

// NewFixedGenerator creates a generator that returns IDs in order.
//
// Example:
//
//	gen := NewFixedGenerator("task-1", "task-2")
//	gen.NewTaskID() // "task-1"
//	gen.NewTaskID() // "task-2"
//	gen.NewTaskID() // panic: all IDs exhausted
func NewFixedGenerator(ids ...TaskID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewTaskID returns the next predetermined ID.
//
// Panics when all IDs have been consumed. This is a fail-fast approach
// to catch test misconfiguration.
func (g *FixedGenerator) NewTaskID() TaskID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all task IDs exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
