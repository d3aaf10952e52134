package playbook

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out playbook identifiers. Implementations must be safe for concurrent use.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator produces "playbook-<uuid>" identifiers
type UUIDGenerator struct{}

// NewID returns a fresh random identifier
func (UUIDGenerator) NewID() string {
	return "playbook-" + uuid.NewString()
}

// SequenceGenerator produces "<prefix>-1", "<prefix>-2", ... in call order
type SequenceGenerator struct {
	Prefix string
	next   atomic.Int64
}

// NewSequenceGenerator creates a generator starting at 1
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{Prefix: prefix}
}

// NewID returns the next identifier in the sequence
func (g *SequenceGenerator) NewID() string {
	return fmt.Sprintf("%s-%d", g.Prefix, g.next.Add(1))
}
