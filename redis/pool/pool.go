// Package pool provides a bounded pool of wire sessions keyed by endpoint.
//
// Checkin never validates a session (too costly); the pool trusts a client
// until its first failing operation and only issues liveness echoes when
// CheckHealth is called explicitly.
package pool

import (
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/foliodb/foliodb/redis/wire"
)

var plog = logger.GetLogger("redis/pool")

var (
	checkoutsTotal    = metrics.NewCounter("foliodb_pool_checkouts_total")
	errorsTotal       = metrics.NewCounter("foliodb_pool_errors_total")
	replacementsTotal = metrics.NewCounter("foliodb_pool_replacements_total")
)

// DefaultSize is the pool capacity used when the config leaves it zero.
const DefaultSize = 3

// ClosedError is returned for any checkout on a closed pool.
type ClosedError struct{}

func (ClosedError) Error() string { return "pool closed" }

// Pool is a bounded LIFO pool of wire clients for one endpoint.
type Pool struct {
	endpoint string
	cfg      wire.DialConfig
	size     int

	mu     sync.Mutex
	free   []*wire.Client // LIFO free list
	live   int            // clients counted against capacity
	closed bool

	// census of every client counted against capacity, for diagnostics
	census *xsync.MapOf[*wire.Client, struct{}]
}

// New creates a pool. Clients are dialed lazily on first checkout.
func New(endpoint string, cfg wire.DialConfig, size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{
		endpoint: endpoint,
		cfg:      cfg,
		size:     size,
		census:   xsync.NewMapOf[*wire.Client, struct{}](),
	}
}

// Endpoint returns the pooled endpoint.
func (p *Pool) Endpoint() string { return p.endpoint }

// Size returns the configured capacity.
func (p *Pool) Size() int { return p.size }

// --------------------------------------------------------------------------
// Checkout
// --------------------------------------------------------------------------

// WithConn checks out a client, invokes fn and returns the client to the
// pool. When the pool is at capacity an overflow client is dialed and
// closed on return. When fn fails the client is closed and a slot freed for
// a lazily dialed replacement.
func (p *Pool) WithConn(fn func(c *wire.Client) error) error {
	c, overflow, err := p.checkout()
	if err != nil {
		return err
	}
	checkoutsTotal.Inc()

	err = fn(c)
	if err != nil || c.Broken() {
		p.discard(c, overflow)
		if err != nil {
			errorsTotal.Inc()
		}
		return err
	}
	p.checkin(c, overflow)
	return nil
}

// checkout returns a client and whether it is an overflow lend.
func (p *Pool) checkout() (*wire.Client, bool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false, ClosedError{}
	}
	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return c, false, nil
	}
	overflow := p.live >= p.size
	if !overflow {
		p.live++
	}
	p.mu.Unlock()

	// Dial outside the lock; it is never held across a wire round-trip.
	c, err := wire.Dial(p.endpoint, p.cfg)
	if err != nil {
		if !overflow {
			p.mu.Lock()
			p.live--
			p.mu.Unlock()
		}
		errorsTotal.Inc()
		return nil, false, err
	}
	if !overflow {
		p.census.Store(c, struct{}{})
	}
	return c, overflow, nil
}

func (p *Pool) checkin(c *wire.Client, overflow bool) {
	if overflow {
		c.Close()
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.census.Delete(c)
		c.Close()
		return
	}
	p.free = append(p.free, c)
	p.mu.Unlock()
}

// discard closes a failed client and frees its capacity slot; the
// replacement is dialed lazily by the next checkout.
func (p *Pool) discard(c *wire.Client, overflow bool) {
	c.Close()
	if overflow {
		return
	}
	p.census.Delete(c)
	p.mu.Lock()
	p.live--
	p.mu.Unlock()
	replacementsTotal.Inc()
	plog.Debugf("discarded client for %s, slot freed for replacement", p.endpoint)
}

// --------------------------------------------------------------------------
// Health and Shutdown
// --------------------------------------------------------------------------

// CheckHealth issues a liveness echo on every free client. Any non-PONG
// reply or error closes the client and frees its slot for a replacement.
func (p *Pool) CheckHealth() {
	p.mu.Lock()
	clients := p.free
	p.free = nil
	p.mu.Unlock()

	for _, c := range clients {
		status, err := c.Ping()
		if err != nil || status != "PONG" {
			plog.Warningf("health check failed for %s: status=%q err=%v", p.endpoint, status, err)
			p.discard(c, false)
			continue
		}
		p.checkin(c, false)
	}
}

// Close closes every free client. Outstanding clients are closed as they
// are returned; any future checkout fails with ClosedError.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	clients := p.free
	p.free = nil
	p.mu.Unlock()

	for _, c := range clients {
		p.census.Delete(c)
		c.Close()
	}
}
