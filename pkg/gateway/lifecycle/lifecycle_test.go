package lifecycle

import (
	"testing"
	"time"
)

func TestLifecycle_BeginDrainOnce(t *testing.T) {
	var l Lifecycle
	if l.IsDraining() || !l.DrainingSince().IsZero() {
		t.Fatalf("new lifecycle should not be draining")
	}

	at := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	if !l.BeginDrain(at) {
		t.Fatalf("first BeginDrain should report true")
	}
	if l.BeginDrain(at.Add(time.Minute)) {
		t.Fatalf("second BeginDrain should report false")
	}
	if !l.IsDraining() || !l.DrainingSince().Equal(at) {
		t.Fatalf("draining=%v since=%v", l.IsDraining(), l.DrainingSince())
	}
}

func TestLifecycle_NilSafe(t *testing.T) {
	var l *Lifecycle
	if l.BeginDrain(time.Now()) || l.IsDraining() || !l.DrainingSince().IsZero() {
		t.Fatalf("nil lifecycle should be inert")
	}
}
