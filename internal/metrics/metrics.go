// Package metrics collects scan counters shared by the HTTP surface.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector accumulates counters across all scans run by one process.
type Collector struct {
	startTime time.Time

	probesSent      atomic.Int64
	hits            atomic.Int64
	misses          atomic.Int64
	bytesDownloaded atomic.Int64
	filesSaved      atomic.Int64

	gatesCleared atomic.Int64
	gateTimeouts atomic.Int64

	scansStarted   atomic.Int64
	scansCompleted atomic.Int64
	scansStopped   atomic.Int64
	activeScans    atomic.Int64
}

// NewCollector creates a collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// ProbeSent records one issued probe.
func (c *Collector) ProbeSent() { c.probesSent.Add(1) }

// Hit records one validated URL.
func (c *Collector) Hit() { c.hits.Add(1) }

// Miss records one classified miss.
func (c *Collector) Miss() { c.misses.Add(1) }

// Downloaded records a persisted payload.
func (c *Collector) Downloaded(bytes int64) {
	c.bytesDownloaded.Add(bytes)
	c.filesSaved.Add(1)
}

// GateCleared records a successful gate bypass.
func (c *Collector) GateCleared() { c.gatesCleared.Add(1) }

// GateTimeout records a gate phase that ran out its poll bound.
func (c *Collector) GateTimeout() { c.gateTimeouts.Add(1) }

// ScanStarted records a scan entering the loop.
func (c *Collector) ScanStarted() {
	c.scansStarted.Add(1)
	c.activeScans.Add(1)
}

// ScanCompleted records a scan that exhausted its range.
func (c *Collector) ScanCompleted() {
	c.scansCompleted.Add(1)
	c.activeScans.Add(-1)
}

// ScanStopped records a scan that ended early.
func (c *Collector) ScanStopped() {
	c.scansStopped.Add(1)
	c.activeScans.Add(-1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	UptimeSeconds   float64 `json:"uptime_seconds"`
	ProbesSent      int64   `json:"probes_sent"`
	Hits            int64   `json:"hits"`
	Misses          int64   `json:"misses"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	FilesSaved      int64   `json:"files_saved"`
	GatesCleared    int64   `json:"gates_cleared"`
	GateTimeouts    int64   `json:"gate_timeouts"`
	ScansStarted    int64   `json:"scans_started"`
	ScansCompleted  int64   `json:"scans_completed"`
	ScansStopped    int64   `json:"scans_stopped"`
	ActiveScans     int64   `json:"active_scans"`
}

// Snapshot returns the current counter values.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds:   time.Since(c.startTime).Seconds(),
		ProbesSent:      c.probesSent.Load(),
		Hits:            c.hits.Load(),
		Misses:          c.misses.Load(),
		BytesDownloaded: c.bytesDownloaded.Load(),
		FilesSaved:      c.filesSaved.Load(),
		GatesCleared:    c.gatesCleared.Load(),
		GateTimeouts:    c.gateTimeouts.Load(),
		ScansStarted:    c.scansStarted.Load(),
		ScansCompleted:  c.scansCompleted.Load(),
		ScansStopped:    c.scansStopped.Load(),
		ActiveScans:     c.activeScans.Load(),
	}
}
