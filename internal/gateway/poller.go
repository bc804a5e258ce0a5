package gateway

import (
	"context"
	"sync"
	"time"
)

// Poller sequences reconciliation queries round-robin, one query per
// scheduler tick, decoupled from the push feed. Pushes can silently drop
// updates during reconnect windows; the poll loop re-queries account and
// position state to close those gaps.
//
// The poller holds no broker state of its own. Each registered query is
// fire-and-forget: its result arrives later through the same normalizer
// callbacks as pushes.
type Poller struct {
	mu      sync.Mutex
	divisor int
	count   int
	queries []func()
}

// NewPoller creates a poller that fires one query every divisor timer ticks.
// A divisor below one is treated as one.
func NewPoller(divisor int, queries ...func()) *Poller {
	if divisor < 1 {
		divisor = 1
	}
	return &Poller{divisor: divisor, queries: queries}
}

// OnTimer is the host timer entry point. Every divisor-th call pops the next
// query, runs it, and rotates it to the back of the list.
func (p *Poller) OnTimer() {
	p.mu.Lock()
	p.count++
	if p.count < p.divisor || len(p.queries) == 0 {
		p.mu.Unlock()
		return
	}
	p.count = 0

	query := p.queries[0]
	p.queries = append(p.queries[1:], query)
	p.mu.Unlock()

	query()
}

// Run drives OnTimer from an internal ticker until ctx is cancelled, for
// hosts without their own timer event.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.OnTimer()
		}
	}
}
