package counter

import (
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Gates = 2
	return cfg
}

// edge builds an event at a fixed base time plus an offset.
func edge(gate int, side Side, offsetMs int) EdgeEvent {
	base := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
	return EdgeEvent{Gate: gate, Side: side, At: base.Add(time.Duration(offsetMs) * time.Millisecond)}
}

func TestCounter_EntryIncrements(t *testing.T) {
	c, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Process(edge(0, SideA, 0))
	c.Process(edge(0, SideB, 300))

	if got := c.Count(); got != 1 {
		t.Errorf("count = %d, want 1 after A->B", got)
	}
	entries, exits := c.Totals()
	if entries != 1 || exits != 0 {
		t.Errorf("totals = %d/%d, want 1/0", entries, exits)
	}
}

func TestCounter_ExitDecrementsFlooredAtZero(t *testing.T) {
	c, _ := New(testConfig(), nil)

	// Exit with nobody counted: count stays at zero.
	c.Process(edge(0, SideB, 0))
	c.Process(edge(0, SideA, 300))

	if got := c.Count(); got != 0 {
		t.Errorf("count = %d, want 0 (floor)", got)
	}
	if _, exits := c.Totals(); exits != 1 {
		t.Errorf("exits = %d, want 1", exits)
	}
}

func TestCounter_EntryThenExit(t *testing.T) {
	c, _ := New(testConfig(), nil)

	c.Process(edge(0, SideA, 0))
	c.Process(edge(0, SideB, 200))
	// Past the 1.5s cooldown.
	c.Process(edge(0, SideB, 2000))
	c.Process(edge(0, SideA, 2200))

	if got := c.Count(); got != 0 {
		t.Errorf("count = %d, want 0 after entry then exit", got)
	}
}

func TestCounter_LoneEdgeTimesOut(t *testing.T) {
	c, _ := New(testConfig(), nil)

	c.Process(edge(0, SideA, 0))
	// Complementary edge arrives after the 1s window.
	c.Process(edge(0, SideB, 1200))

	if got := c.Count(); got != 0 {
		t.Errorf("count = %d, want 0 for timed-out sequence", got)
	}
}

func TestCounter_TickExpiresPending(t *testing.T) {
	c, _ := New(testConfig(), nil)

	c.Process(edge(0, SideA, 0))
	c.Tick(edge(0, SideA, 1500).At)

	// The B edge now starts a fresh exit half-sequence, not an entry.
	c.Process(edge(0, SideB, 1600))
	c.Process(edge(0, SideA, 1700))

	if got := c.Count(); got != 0 {
		t.Errorf("count = %d, want 0 (B->A exit floored)", got)
	}
	if _, exits := c.Totals(); exits != 1 {
		t.Errorf("exits = %d, want 1", exits)
	}
}

func TestCounter_DebounceAbsorbsBounce(t *testing.T) {
	c, _ := New(testConfig(), nil)

	// Bouncy A edge: three edges within 50ms count as one.
	c.Process(edge(0, SideA, 0))
	c.Process(edge(0, SideA, 10))
	c.Process(edge(0, SideA, 20))
	c.Process(edge(0, SideB, 300))

	if got := c.Count(); got != 1 {
		t.Errorf("count = %d, want 1 with debounced A edges", got)
	}
}

func TestCounter_CooldownPreventsDoubleCount(t *testing.T) {
	c, _ := New(testConfig(), nil)

	c.Process(edge(0, SideA, 0))
	c.Process(edge(0, SideB, 200)) // count -> 1, cooldown until 1700

	// A full would-be entry inside the cooldown is ignored.
	c.Process(edge(0, SideA, 600))
	c.Process(edge(0, SideB, 900))

	if got := c.Count(); got != 1 {
		t.Errorf("count = %d, want 1 (cooldown suppressed second count)", got)
	}

	// After cooldown expiry the gate counts again.
	c.Process(edge(0, SideA, 1800))
	c.Process(edge(0, SideB, 2000))
	if got := c.Count(); got != 2 {
		t.Errorf("count = %d, want 2 after cooldown expiry", got)
	}
}

func TestCounter_GatesAreIndependent(t *testing.T) {
	c, _ := New(testConfig(), nil)

	c.Process(edge(0, SideA, 0))
	c.Process(edge(1, SideA, 10))
	c.Process(edge(0, SideB, 200))
	c.Process(edge(1, SideB, 210))

	if got := c.Count(); got != 2 {
		t.Errorf("count = %d, want 2 from two gates", got)
	}
}

func TestCounter_NeverNegative(t *testing.T) {
	c, _ := New(testConfig(), nil)

	// Repeated exits, each past the previous cooldown.
	for i := 0; i < 5; i++ {
		base := i * 3000
		c.Process(edge(0, SideB, base))
		c.Process(edge(0, SideA, base+200))
		if got := c.Count(); got < 0 {
			t.Fatalf("count went negative: %d", got)
		}
	}
	if got := c.Count(); got != 0 {
		t.Errorf("count = %d, want 0", got)
	}
}

func TestCounter_OutOfRangeGateIgnored(t *testing.T) {
	c, _ := New(testConfig(), nil)

	c.Process(edge(99, SideA, 0))
	c.Process(edge(-1, SideB, 10))

	if got := c.Count(); got != 0 {
		t.Errorf("count = %d, want 0 for out-of-range gates", got)
	}
}

func TestCounter_OnChange(t *testing.T) {
	c, _ := New(testConfig(), nil)

	var seen []int
	c.OnChange = func(n int) { seen = append(seen, n) }

	c.Process(edge(0, SideA, 0))
	c.Process(edge(0, SideB, 200))
	c.Reset()

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 0 {
		t.Errorf("OnChange sequence = %v, want [1 0]", seen)
	}
}

func TestCounter_Reset(t *testing.T) {
	c, _ := New(testConfig(), nil)

	c.Process(edge(0, SideA, 0))
	c.Process(edge(0, SideB, 200))
	c.Reset()

	if got := c.Count(); got != 0 {
		t.Errorf("count = %d, want 0 after reset", got)
	}
	entries, exits := c.Totals()
	if entries != 0 || exits != 0 {
		t.Errorf("totals = %d/%d, want 0/0 after reset", entries, exits)
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(2)

	if !q.Push(edge(0, SideA, 0)) || !q.Push(edge(0, SideB, 1)) {
		t.Fatal("pushes into empty queue should succeed")
	}
	if q.Push(edge(0, SideA, 2)) {
		t.Error("push into full queue should report drop")
	}
	if got := q.Dropped(); got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}

	// FIFO order preserved for the events that fit.
	ev, ok := q.Pop()
	if !ok || ev.Side != SideA {
		t.Errorf("first pop = %+v, want side A", ev)
	}
	ev, ok = q.Pop()
	if !ok || ev.Side != SideB {
		t.Errorf("second pop = %+v, want side B", ev)
	}
	if _, ok := q.Pop(); ok {
		t.Error("pop from drained queue should fail")
	}
}
