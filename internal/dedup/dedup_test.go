package dedup

import (
	"bytes"
	"fmt"
	"testing"
)

func TestBodyDeduper_SeenBefore(t *testing.T) {
	d := NewBodyDeduper(100)

	body := bytes.Repeat([]byte("placeholder"), 50)
	if d.SeenBefore(body) {
		t.Error("first occurrence reported as seen")
	}
	if !d.SeenBefore(body) {
		t.Error("second occurrence not reported as seen")
	}
	if d.SeenBefore([]byte("different payload")) {
		t.Error("distinct payload reported as seen")
	}
}

func TestBodyDeduper_EmptyBodies(t *testing.T) {
	d := NewBodyDeduper(100)
	if d.SeenBefore(nil) || d.SeenBefore(nil) {
		t.Error("empty bodies must never deduplicate")
	}
	if d.Count() != 0 {
		t.Errorf("Count() = %d, want 0", d.Count())
	}
}

func TestBodyDeduper_Count(t *testing.T) {
	d := NewBodyDeduper(100)
	for i := 0; i < 5; i++ {
		d.SeenBefore([]byte(fmt.Sprintf("payload-%d", i)))
	}
	d.SeenBefore([]byte("payload-0")) // repeat

	if d.Count() != 5 {
		t.Errorf("Count() = %d, want 5", d.Count())
	}
}

func TestBodyDeduper_Reset(t *testing.T) {
	d := NewBodyDeduper(100)
	body := []byte("some payload")
	d.SeenBefore(body)
	d.Reset()

	if d.SeenBefore(body) {
		t.Error("payload survived Reset")
	}
	if d.Count() != 1 {
		t.Errorf("Count() after reset and one insert = %d, want 1", d.Count())
	}
}

func TestBodyDeduper_ManyDistinct(t *testing.T) {
	d := NewBodyDeduper(10_000)
	for i := 0; i < 2000; i++ {
		if d.SeenBefore([]byte(fmt.Sprintf("distinct-body-%d", i))) {
			t.Fatalf("false positive at item %d", i)
		}
	}
}
