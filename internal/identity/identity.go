// Package identity supplies the pool of client identities presented to the
// target site.
package identity

import "sync"

// Identity is the set of request attributes presented to mimic one client.
type Identity struct {
	UserAgent string
	Headers   map[string]string
}

// defaultHeaders accompany every identity in the default pool. The Accept
// line prefers media payloads since those are the typical scan target.
var defaultHeaders = map[string]string{
	"Accept":          "video/webm,video/ogg,video/*;q=0.9,application/ogg;q=0.7,audio/*;q=0.6,*/*;q=0.5",
	"Accept-Language": "en-US,en;q=0.5",
	"DNT":             "1",
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_3) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_3 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/537.36 Chrome/118.0.0.0 Safari/537.36",
}

// Pool is an immutable set of identities shared read-only across scans.
type Pool struct {
	identities []Identity
}

// NewPool creates a pool from the given identities. The slice is copied so
// later mutation by the caller cannot leak into running scans.
func NewPool(identities ...Identity) *Pool {
	ids := make([]Identity, len(identities))
	copy(ids, identities)
	return &Pool{identities: ids}
}

// DefaultPool returns the built-in browser identity pool.
func DefaultPool() *Pool {
	ids := make([]Identity, 0, len(defaultUserAgents))
	for _, ua := range defaultUserAgents {
		ids = append(ids, Identity{UserAgent: ua, Headers: defaultHeaders})
	}
	return NewPool(ids...)
}

// Size returns the number of identities in the pool.
func (p *Pool) Size() int {
	return len(p.identities)
}

// First returns the lead identity. The browser session is launched with this
// one so direct fetches and browser traffic present the same client.
func (p *Pool) First() Identity {
	if len(p.identities) == 0 {
		return Identity{}
	}
	return p.identities[0]
}

// Cycle returns a fresh round-robin iterator over the pool. Each scan takes
// its own cycle; the pool itself is never mutated.
func (p *Pool) Cycle() *Cycle {
	return &Cycle{pool: p}
}

// Cycle is a restartable round-robin iterator over a Pool.
type Cycle struct {
	mu   sync.Mutex
	pool *Pool
	next int
}

// Next returns the next identity, wrapping around at the end of the pool.
func (c *Cycle) Next() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool.identities) == 0 {
		return Identity{}
	}
	id := c.pool.identities[c.next%len(c.pool.identities)]
	c.next++
	return id
}

// Reset restarts the cycle from the first identity.
func (c *Cycle) Reset() {
	c.mu.Lock()
	c.next = 0
	c.mu.Unlock()
}
