// Package ratelimit paces probes: a uniform politeness delay between every
// probe, with an optional global requests-per-second ceiling underneath it.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Delayer blocks between probes. The delay is drawn uniformly from
// [Min, Max] so the request cadence is not obviously mechanical.
type Delayer struct {
	mu      sync.Mutex
	min     time.Duration
	max     time.Duration
	rng     *rand.Rand
	limiter *rate.Limiter
}

// NewDelayer creates a delayer for the given bounds. A non-positive span
// collapses to a fixed delay of min.
func NewDelayer(min, max time.Duration) *Delayer {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}
	return &Delayer{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetCeiling layers a global rate ceiling under the uniform delay. Zero
// removes the ceiling.
func (d *Delayer) SetCeiling(requestsPerSecond float64, burst int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if requestsPerSecond <= 0 {
		d.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	d.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Next draws the next delay without sleeping.
func (d *Delayer) Next() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	span := d.max - d.min
	if span <= 0 {
		return d.min
	}
	return d.min + time.Duration(d.rng.Int63n(int64(span)+1))
}

// Wait sleeps for the next drawn delay, returning early with the context's
// error if it is cancelled first.
func (d *Delayer) Wait(ctx context.Context) error {
	d.mu.Lock()
	limiter := d.limiter
	d.mu.Unlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	delay := d.Next()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Bounds returns the configured delay range.
func (d *Delayer) Bounds() (min, max time.Duration) {
	return d.min, d.max
}
