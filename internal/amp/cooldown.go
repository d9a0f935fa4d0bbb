package amp

import (
	"context"
	"sync"
	"time"

	"github.com/Adda-Baaj/jist-harvester/internal/retry"
)

// CooldownGate holds back batch dispatch while any batch is cooling down
// after a quota error.
type CooldownGate struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
	sleep retry.Sleeper
}

// NewCooldownGate builds a gate. nil now/sleep use the real clock.
func NewCooldownGate(now func() time.Time, sleep retry.Sleeper) *CooldownGate {
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = retry.Sleep
	}
	return &CooldownGate{now: now, sleep: sleep}
}

// Trip closes the gate for at least d from now.
func (g *CooldownGate) Trip(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until := g.now().Add(d); until.After(g.until) {
		g.until = until
	}
}

// Remaining returns how long the gate stays closed.
func (g *CooldownGate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d := g.until.Sub(g.now()); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until the gate is open or ctx is done.
func (g *CooldownGate) Wait(ctx context.Context) error {
	for {
		d := g.Remaining()
		if d <= 0 {
			return ctx.Err()
		}
		if err := g.sleep(ctx, d); err != nil {
			return err
		}
	}
}
