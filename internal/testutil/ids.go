package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDGenerator hands out node ids "<prefix>-1", "<prefix>-2", ...
//
// Scenarios use it so inserted nodes get the same ids on every run and
// golden traces stay byte-identical. Unlike tree.FixedGenerator it never
// runs out.
//
// Thread-safety: safe for concurrent use.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDGenerator creates a generator. An empty prefix means "node".
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "node"
	}
	return &SequenceIDGenerator{prefix: prefix}
}

// Generate returns the next id. Implements tree.IDGenerator.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequenceIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
