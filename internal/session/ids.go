package session

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces session identifiers. Session ids become the
// correlation id of every event the session records.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator hands out predetermined ids, for deterministic tests and
// golden traces. Panics once the list is exhausted, which catches tests
// that open more sessions than they declared.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator returning ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SequenceGenerator returns prefix-1, prefix-2, ...
type SequenceGenerator struct {
	Prefix string
	clock  Clock
}

// Generate returns the next numbered id.
func (g *SequenceGenerator) Generate() string {
	return g.Prefix + "-" + strconv.FormatInt(g.clock.Next(), 10)
}
