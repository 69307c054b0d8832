package sync

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/vaultlink/vaultlink/internal/vault"
)

const (
	// guardHoldTTL caps how long a hold can leak if a release never runs.
	guardHoldTTL = 10 * time.Second

	// guardSettleDelay keeps a released path blocked a little longer,
	// because the OS may deliver the event after the write returned.
	guardSettleDelay = 500 * time.Millisecond

	guardSweepThreshold = 256
)

// Guard is the per-path in-flight table. The engine holds a vault path
// before mutating either side of it; the watchers ask Blocked before
// dispatching, so self-inflicted events die here while events for other
// paths keep flowing.
type Guard struct {
	clock clockwork.Clock
	mu    sync.Mutex
	held  map[string]time.Time
}

func NewGuard(clock clockwork.Clock) *Guard {
	return &Guard{
		clock: clock,
		held:  make(map[string]time.Time),
	}
}

// Hold marks a vault path as self-inflicted until released.
func (g *Guard) Hold(rel string) {
	rel = vault.NormPath(rel)

	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.held) > guardSweepThreshold {
		g.sweepLocked()
	}
	g.held[rel] = g.clock.Now().Add(guardHoldTTL)
}

// Release starts the settle countdown for a held path.
func (g *Guard) Release(rel string) {
	rel = vault.NormPath(rel)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.held[rel] = g.clock.Now().Add(guardSettleDelay)
}

// Blocked reports whether events for the path are self-inflicted right now.
func (g *Guard) Blocked(rel string) bool {
	rel = vault.NormPath(rel)

	g.mu.Lock()
	defer g.mu.Unlock()

	expiry, exists := g.held[rel]
	if !exists {
		return false
	}
	if !g.clock.Now().Before(expiry) {
		delete(g.held, rel)
		return false
	}
	return true
}

// Active counts live holds, for status reporting.
func (g *Guard) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sweepLocked()
	return len(g.held)
}

func (g *Guard) sweepLocked() {
	now := g.clock.Now()
	for rel, expiry := range g.held {
		if !now.Before(expiry) {
			delete(g.held, rel)
		}
	}
}
