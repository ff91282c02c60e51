package metrics

import "testing"

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	if c == nil {
		t.Fatal("NewCollector() returned nil")
	}
	snap := c.Snapshot()
	if snap.ProbesSent != 0 || snap.Hits != 0 {
		t.Errorf("fresh collector = %+v", snap)
	}
}

func TestCollector_ProbeCounters(t *testing.T) {
	c := NewCollector()

	c.ProbeSent()
	c.ProbeSent()
	c.ProbeSent()
	c.Hit()
	c.Miss()
	c.Miss()

	snap := c.Snapshot()
	if snap.ProbesSent != 3 {
		t.Errorf("ProbesSent = %d, want 3", snap.ProbesSent)
	}
	if snap.Hits != 1 || snap.Misses != 2 {
		t.Errorf("Hits/Misses = %d/%d, want 1/2", snap.Hits, snap.Misses)
	}
}

func TestCollector_Downloaded(t *testing.T) {
	c := NewCollector()

	c.Downloaded(1024)
	c.Downloaded(2048)

	snap := c.Snapshot()
	if snap.BytesDownloaded != 3072 {
		t.Errorf("BytesDownloaded = %d, want 3072", snap.BytesDownloaded)
	}
	if snap.FilesSaved != 2 {
		t.Errorf("FilesSaved = %d, want 2", snap.FilesSaved)
	}
}

func TestCollector_GateCounters(t *testing.T) {
	c := NewCollector()

	c.GateCleared()
	c.GateTimeout()
	c.GateTimeout()

	snap := c.Snapshot()
	if snap.GatesCleared != 1 || snap.GateTimeouts != 2 {
		t.Errorf("gate counters = %d/%d", snap.GatesCleared, snap.GateTimeouts)
	}
}

func TestCollector_ScanLifecycle(t *testing.T) {
	c := NewCollector()

	c.ScanStarted()
	c.ScanStarted()
	if got := c.Snapshot().ActiveScans; got != 2 {
		t.Errorf("ActiveScans = %d, want 2", got)
	}

	c.ScanCompleted()
	c.ScanStopped()

	snap := c.Snapshot()
	if snap.ScansStarted != 2 {
		t.Errorf("ScansStarted = %d, want 2", snap.ScansStarted)
	}
	if snap.ScansCompleted != 1 || snap.ScansStopped != 1 {
		t.Errorf("completed/stopped = %d/%d", snap.ScansCompleted, snap.ScansStopped)
	}
	if snap.ActiveScans != 0 {
		t.Errorf("ActiveScans = %d, want 0", snap.ActiveScans)
	}
}
