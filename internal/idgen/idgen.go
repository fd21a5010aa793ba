// Package idgen generates 128-bit, lexicographically time-sortable
// identifiers for domain events, outbox entries, and aggregate rows.
package idgen

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces ULIDs with a monotonic entropy source so that ids
// minted within the same millisecond still sort by creation order.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

// New returns a Generator seeded from crypto/rand.
func New() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// Next returns a new id ordered after any id previously returned by this
// Generator for timestamps within the same millisecond.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return id.String()
}

var defaultGenerator = New()

// NextID returns a new id from the package-level default generator.
func NextID() string { return defaultGenerator.Next() }
