package dataspace

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out the numeric ids of actors, facets, endpoints and
// fields. Each Dataspace owns one, so ids are unique per dataspace and
// reproducible across runs.
//
// Thread-safety: IDGenerator is safe for concurrent use (atomic operations).
type IDGenerator struct {
	seq atomic.Uint64
}

// NewIDGenerator creates a generator whose first id is 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NewIDGeneratorAt creates a generator resuming after start.
func NewIDGeneratorAt(start uint64) *IDGenerator {
	g := &IDGenerator{}
	g.seq.Store(start)
	return g
}

// Next returns the next id.
func (g *IDGenerator) Next() uint64 {
	return g.seq.Add(1)
}

// Current returns the last id handed out without advancing.
func (g *IDGenerator) Current() uint64 {
	return g.seq.Load()
}

// NameGenerator produces names for actors spawned without one.
// Implemented by UUIDv7Generator (production), SequentialGenerator and
// FixedGenerator (tests).
type NameGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 actor names.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequentialGenerator names actors prefix-1, prefix-2, ...
type SequentialGenerator struct {
	prefix string
	seq    atomic.Uint64
}

// NewSequentialGenerator creates a SequentialGenerator.
func NewSequentialGenerator(prefix string) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// Generate returns the next name.
func (g *SequentialGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.seq.Add(1))
}

// FixedGenerator returns predetermined names for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu    sync.Mutex
	names []string
	idx   int
}

// NewFixedGenerator creates a generator that returns names in order.
func NewFixedGenerator(names ...string) *FixedGenerator {
	return &FixedGenerator{names: names}
}

// Generate returns the next predetermined name.
//
// Panics if all names have been consumed. This catches a test that spawns
// more anonymous actors than it expects.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.names) {
		panic("FixedGenerator: all names exhausted")
	}
	name := g.names[g.idx]
	g.idx++
	return name
}
