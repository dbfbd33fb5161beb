package bus

import (
	"sync"
	"time"

	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
	"github.com/nerrad567/fieldgate/internal/metrics"
)

// DefaultBanDuration is used when a listener sets no ban duration.
const DefaultBanDuration = 10 * time.Second

// Peer is a connected client as seen by a Guard.
type Peer interface {
	// ID identifies the connection; unban timers are keyed by it.
	ID() string
	// Host is the remote host; overflow counters are keyed by it.
	Host() string
	Close() error
}

// Guard counts buffer overflows per peer host and bans hosts that exceed
// the limit. Counters are only reset by an unban.
type Guard struct {
	name        string
	max         config.OverflowLimit
	banDuration time.Duration
	logger      Logger

	mu        sync.Mutex
	overflows map[string]int
	timers    map[string]*time.Timer
	closed    bool
}

// NewGuard creates a guard for the listener called name. An unbounded max
// disables banning; a banDuration <= 0 uses DefaultBanDuration.
func NewGuard(name string, max config.OverflowLimit, banDuration time.Duration, logger Logger) *Guard {
	if banDuration <= 0 {
		banDuration = DefaultBanDuration
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Guard{
		name:        name,
		max:         max,
		banDuration: banDuration,
		logger:      logger,
		overflows:   make(map[string]int),
		timers:      make(map[string]*time.Timer),
	}
}

// Admit reports whether a newly accepted peer may stay connected. A peer
// whose host is over the limit is banned immediately.
func (g *Guard) Admit(p Peer) bool {
	g.mu.Lock()
	over := g.overLocked(p.Host())
	g.mu.Unlock()

	if over {
		g.ban(p)
		return false
	}
	return true
}

// Overflow records one overflow of size bytes from p. It returns true when
// the peer has been banned and its connection destroyed.
func (g *Guard) Overflow(p Peer, size int) bool {
	metrics.BusOverflowsTotal.WithLabelValues(g.name).Inc()

	g.mu.Lock()
	g.overflows[p.Host()]++
	count := g.overflows[p.Host()]
	over := g.overLocked(p.Host())
	g.mu.Unlock()

	g.logger.Warn("bus receive buffer overflow",
		"listener", g.name,
		"client", p.ID(),
		"host", p.Host(),
		"size", size,
		"count", count,
	)

	if over {
		g.ban(p)
		return true
	}
	return false
}

// Strikes returns the overflow count recorded for host.
func (g *Guard) Strikes(host string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.overflows[host]
}

// Cancel stops the unban timer for client id, if any. Safe to call
// repeatedly.
func (g *Guard) Cancel(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.timers[id]; ok {
		t.Stop()
		delete(g.timers, id)
	}
}

// Pending returns the number of scheduled unban timers.
func (g *Guard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.timers)
}

// Close cancels every pending unban timer.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
}

func (g *Guard) overLocked(host string) bool {
	if g.max.Unbounded() {
		return false
	}
	return g.overflows[host] > int(g.max)
}

// ban destroys the connection and schedules the unban of its host.
func (g *Guard) ban(p Peer) {
	id, host := p.ID(), p.Host()

	g.mu.Lock()
	if !g.closed {
		if _, ok := g.timers[id]; !ok {
			g.timers[id] = time.AfterFunc(g.banDuration, func() { g.unban(id, host) })
		}
	}
	g.mu.Unlock()

	metrics.BusBansTotal.WithLabelValues(g.name).Inc()
	g.logger.Warn("bus client banned",
		"listener", g.name,
		"client", id,
		"host", host,
		"duration", g.banDuration,
	)

	if err := p.Close(); err != nil {
		g.logger.Debug("closing banned client", "client", id, "error", err)
	}
}

func (g *Guard) unban(id, host string) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	delete(g.overflows, host)
	delete(g.timers, id)
	g.mu.Unlock()

	g.logger.Info("bus client unbanned", "listener", g.name, "client", id, "host", host)
}
