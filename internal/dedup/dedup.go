// Package dedup detects repeated response payloads. Sites that answer every
// identifier with the same placeholder file defeat the size-floor check;
// seeing an identical body a second time marks it as such.
package dedup

import (
	"crypto/md5"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BodyDeduper tracks response body hashes using a Bloom filter with an
// exact-match map behind it to rule out false positives.
type BodyDeduper struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	exact  map[[md5.Size]byte]struct{}
	count  int
}

// NewBodyDeduper creates a deduper sized for the expected number of
// distinct payloads in one scan.
func NewBodyDeduper(estimatedItems int) *BodyDeduper {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}
	return &BodyDeduper{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[[md5.Size]byte]struct{}),
	}
}

// SeenBefore records the body and reports whether an identical payload was
// already recorded earlier in the scan. Empty bodies are never deduplicated
// since servers that omit content-length legitimately stream those.
func (d *BodyDeduper) SeenBefore(body []byte) bool {
	if len(body) == 0 {
		return false
	}

	sum := md5.Sum(body)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.Test(sum[:]) {
		if _, ok := d.exact[sum]; ok {
			return true
		}
	}

	d.filter.Add(sum[:])
	d.exact[sum] = struct{}{}
	d.count++
	return false
}

// Count returns the number of distinct payloads recorded.
func (d *BodyDeduper) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Reset clears the deduper for reuse.
func (d *BodyDeduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.ClearAll()
	d.exact = make(map[[md5.Size]byte]struct{})
	d.count = 0
}
