// Package counter implements bidirectional people counting from paired IR
// photobeams.
//
// Each gate has an outer beam (A) and an inner beam (B). A person entering
// breaks A then B within the sequence window; a person leaving breaks B
// then A. Beam bounce is absorbed by a per-beam debounce filter, and a
// per-gate cooldown after every successful count prevents reverberation
// from double counting. The state machine is fully non-blocking: it is
// driven by queued edge events and a periodic tick, with no waits inside.
package counter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// gateState is the per-gate sequence detection state.
type gateState uint8

const (
	gateIdle gateState = iota
	gateWaitBAfterA
	gateWaitAAfterB
)

// Config holds people counter configuration.
type Config struct {
	// Gates is the number of monitored gate pairs.
	Gates int `json:"gates"`

	// QueueSize is the edge event queue capacity.
	QueueSize int `json:"queue_size"`

	// Debounce is the per-beam quiet period before an edge is accepted.
	Debounce time.Duration `json:"debounce"`

	// SequenceWindow is how long a half-sequence waits for its
	// complementary edge before timing out.
	SequenceWindow time.Duration `json:"sequence_window"`

	// Cooldown is the per-gate quiet period after a successful count.
	Cooldown time.Duration `json:"cooldown"`

	// PollInterval is how often the consumer task drains the queue.
	PollInterval time.Duration `json:"poll_interval"`
}

// DefaultConfig returns a Config with the deployed gate timing.
func DefaultConfig() Config {
	return Config{
		Gates:          1,
		QueueSize:      32,
		Debounce:       50 * time.Millisecond,
		SequenceWindow: 1000 * time.Millisecond,
		Cooldown:       1500 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Gates <= 0 {
		return fmt.Errorf("gates must be positive, got %d", c.Gates)
	}
	if c.SequenceWindow <= 0 {
		return fmt.Errorf("sequence_window must be positive, got %v", c.SequenceWindow)
	}
	if c.Cooldown < 0 || c.Debounce < 0 {
		return fmt.Errorf("cooldown and debounce must be non-negative")
	}
	return nil
}

// gate holds the per-gate-pair tracking state. Exactly one pending
// half-sequence exists at a time per gate.
type gate struct {
	state         gateState
	pendingAt     time.Time
	cooldownUntil time.Time
	lastEdge      [2]time.Time // per-side debounce reference
}

// Counter consumes edge events and maintains a non-negative people count.
// It is the sole writer of the count.
type Counter struct {
	cfg    Config
	queue  *Queue
	logger *slog.Logger

	mu    sync.Mutex
	gates []gate

	count   atomic.Int64
	entries atomic.Int64
	exits   atomic.Int64

	// OnChange, if set, is called with the new count after every change
	// (including Reset). Called from the consumer task; must not block.
	OnChange func(count int)
}

// New creates a people counter.
func New(cfg Config, logger *slog.Logger) (*Counter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("counter config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{
		cfg:    cfg,
		queue:  NewQueue(cfg.QueueSize),
		logger: logger,
		gates:  make([]gate, cfg.Gates),
	}, nil
}

// Queue returns the edge event queue for the capture layer to feed.
func (c *Counter) Queue() *Queue {
	return c.queue
}

// Count returns the current people count.
func (c *Counter) Count() int {
	return int(c.count.Load())
}

// Totals returns cumulative entries and exits since start or Reset.
func (c *Counter) Totals() (entries, exits int64) {
	return c.entries.Load(), c.exits.Load()
}

// Reset zeroes the count and totals and clears all pending sequences.
func (c *Counter) Reset() {
	c.mu.Lock()
	for i := range c.gates {
		c.gates[i] = gate{}
	}
	c.mu.Unlock()

	c.count.Store(0)
	c.entries.Store(0)
	c.exits.Store(0)
	c.logger.Info("people count reset")
	c.notify(0)
}

// Run drains the event queue until the context is cancelled.
func (c *Counter) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				ev, ok := c.queue.Pop()
				if !ok {
					break
				}
				c.Process(ev)
			}
			c.Tick(time.Now())
		}
	}
}

// Process applies one edge event to its gate's state machine.
// Malformed or duplicate events are silently absorbed by the debounce
// and cooldown rules.
func (c *Counter) Process(ev EdgeEvent) {
	if ev.Gate < 0 || ev.Gate >= len(c.gates) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	g := &c.gates[ev.Gate]

	// Cooldown: the whole gate is quiet after a successful count.
	if ev.At.Before(g.cooldownUntil) {
		return
	}

	// Per-beam debounce.
	if last := g.lastEdge[ev.Side]; !last.IsZero() && ev.At.Sub(last) < c.cfg.Debounce {
		return
	}
	g.lastEdge[ev.Side] = ev.At

	// Expire a stale half-sequence before considering this edge.
	c.expireLocked(g, ev.At)

	switch g.state {
	case gateIdle:
		g.pendingAt = ev.At
		if ev.Side == SideA {
			g.state = gateWaitBAfterA
		} else {
			g.state = gateWaitAAfterB
		}

	case gateWaitBAfterA:
		if ev.Side == SideB {
			c.completeLocked(g, ev, +1)
		}
		// A second A edge restarts the pending timestamp.
		if ev.Side == SideA {
			g.pendingAt = ev.At
		}

	case gateWaitAAfterB:
		if ev.Side == SideA {
			c.completeLocked(g, ev, -1)
		}
		if ev.Side == SideB {
			g.pendingAt = ev.At
		}
	}
}

// Tick expires pending half-sequences whose window has elapsed.
func (c *Counter) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.gates {
		c.expireLocked(&c.gates[i], now)
	}
}

func (c *Counter) expireLocked(g *gate, now time.Time) {
	if g.state == gateIdle {
		return
	}
	if now.Sub(g.pendingAt) > c.cfg.SequenceWindow {
		g.state = gateIdle
		g.pendingAt = time.Time{}
	}
}

// completeLocked finishes a sequence: applies the delta, floors the count
// at zero, and starts the gate cooldown.
func (c *Counter) completeLocked(g *gate, ev EdgeEvent, delta int64) {
	newCount := c.count.Add(delta)
	if newCount < 0 {
		c.count.Store(0)
		newCount = 0
	}
	if delta > 0 {
		c.entries.Add(1)
	} else {
		c.exits.Add(1)
	}

	g.state = gateIdle
	g.pendingAt = time.Time{}
	g.cooldownUntil = ev.At.Add(c.cfg.Cooldown)

	c.logger.Debug("gate sequence complete",
		"gate", ev.Gate,
		"delta", delta,
		"count", newCount,
	)
	c.notify(int(newCount))
}

func (c *Counter) notify(count int) {
	if c.OnChange != nil {
		c.OnChange(count)
	}
}
