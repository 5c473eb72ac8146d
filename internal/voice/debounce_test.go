package voice

import (
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	edges []bool
}

func (r *recorder) emit(_ string, speaking bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, speaking)
}

func (r *recorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool{}, r.edges...)
}

func TestRisingEdgeIsImmediate(t *testing.T) {
	rec := &recorder{}
	d := New(time.Hour, rec.emit)

	d.Sample("a", true)

	if edges := rec.snapshot(); len(edges) != 1 || !edges[0] {
		t.Fatalf("expected immediate rising edge, got %v", edges)
	}
	if !d.Speaking("a") {
		t.Error("state should be speaking")
	}
}

func TestPauseWithinHoldDoesNotFall(t *testing.T) {
	rec := &recorder{}
	d := New(100*time.Millisecond, rec.emit)

	d.Sample("a", true)
	d.Sample("a", false)
	time.Sleep(30 * time.Millisecond)
	d.Sample("a", true) // cancels the pending fall

	time.Sleep(150 * time.Millisecond)

	if !d.Speaking("a") {
		t.Error("a loud sample inside the hold window must keep the state true")
	}
	for _, edge := range rec.snapshot() {
		if !edge {
			t.Fatal("output transitioned to false despite intervening loud sample")
		}
	}
}

func TestFallsOnceAfterHold(t *testing.T) {
	rec := &recorder{}
	d := New(50*time.Millisecond, rec.emit)

	d.Sample("a", true)
	d.Sample("a", false)
	d.Sample("a", false) // must not arm a second timer
	d.Sample("a", false)

	time.Sleep(120 * time.Millisecond)

	edges := rec.snapshot()
	if len(edges) != 2 || edges[0] != true || edges[1] != false {
		t.Fatalf("expected exactly [true false], got %v", edges)
	}
	if d.Speaking("a") {
		t.Error("state should have fallen")
	}
}

func TestQuietWithoutSpeakingEmitsNothing(t *testing.T) {
	rec := &recorder{}
	d := New(20*time.Millisecond, rec.emit)

	d.Sample("a", false)
	time.Sleep(50 * time.Millisecond)

	if edges := rec.snapshot(); len(edges) != 0 {
		t.Errorf("quiet samples on a quiet participant emitted %v", edges)
	}
}

func TestDropCancelsPendingFall(t *testing.T) {
	rec := &recorder{}
	d := New(30*time.Millisecond, rec.emit)

	d.Sample("a", true)
	d.Sample("a", false)
	d.Drop("a")

	time.Sleep(80 * time.Millisecond)

	edges := rec.snapshot()
	if len(edges) != 1 {
		t.Errorf("drop should suppress the pending falling edge, got %v", edges)
	}
	if d.Speaking("a") {
		t.Error("dropped participant should not be speaking")
	}
}

func TestEdgesEmitInTransitionOrder(t *testing.T) {
	rec := &recorder{}
	d := New(time.Millisecond, rec.emit)

	// Hammer rise/fall around the hold boundary so timer expirations race
	// fresh rising samples. Emitted edges must still strictly alternate
	// and the last edge must agree with the tracked state.
	for i := 0; i < 100; i++ {
		d.Sample("a", true)
		d.Sample("a", false)
		time.Sleep(time.Duration(500+(i*137)%1000) * time.Microsecond)
	}
	time.Sleep(20 * time.Millisecond)

	edges := rec.snapshot()
	if len(edges) == 0 {
		t.Fatal("no edges emitted")
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] == edges[i-1] {
			t.Fatalf("edges must alternate, got %v", edges)
		}
	}
	if last := edges[len(edges)-1]; last != d.Speaking("a") {
		t.Fatalf("last emitted edge %v disagrees with tracked state %v", last, d.Speaking("a"))
	}
}

func TestParticipantsAreIndependent(t *testing.T) {
	rec := &recorder{}
	d := New(time.Hour, rec.emit)

	d.Sample("a", true)
	if d.Speaking("b") {
		t.Error("b never spoke")
	}
	d.Sample("b", true)
	if !d.Speaking("a") || !d.Speaking("b") {
		t.Error("both should be speaking")
	}
}
