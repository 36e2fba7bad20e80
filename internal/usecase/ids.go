package usecase

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// idGenerator issues message ids that sort in creation order, including for
// messages created within the same millisecond.
type idGenerator struct {
	clock Clock

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGenerator(clock Clock) *idGenerator {
	return &idGenerator{clock: clock, entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.clock.Now()), g.entropy).String()
}
