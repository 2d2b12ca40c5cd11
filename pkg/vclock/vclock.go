// Package vclock implements vector clocks as a causal-metadata primitive.
// The sync layer's baseline conflict detector works off explicit parent
// links; vector clocks are offered as an interchangeable strategy for
// cross-device causal comparison.
package vclock

import (
	"encoding/json"
	"sync"
)

// Ordering is the result of comparing two clocks under the causal partial
// order.
type Ordering string

const (
	Before     Ordering = "before"
	After      Ordering = "after"
	Concurrent Ordering = "concurrent"
	Equal      Ordering = "equal"
)

// Clock holds per-node monotonically increasing counters.
type Clock struct {
	mu     sync.RWMutex
	counts map[string]uint64
}

// New creates an empty clock.
func New() *Clock {
	return &Clock{counts: make(map[string]uint64)}
}

// Increment bumps the counter for node.
func (c *Clock) Increment(node string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[node]++
}

// Get returns the counter for node (zero when unknown).
func (c *Clock) Get(node string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[node]
}

// Merge takes the pointwise max of both clocks into c.
func (c *Clock) Merge(other *Clock) {
	if other == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	for node, n := range other.counts {
		if c.counts[node] < n {
			c.counts[node] = n
		}
	}
}

// Compare returns the causal relation of c to other over the union of both
// node sets.
func (c *Clock) Compare(other *Clock) Ordering {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if other == nil {
		other = New()
	}
	other.mu.RLock()
	defer other.mu.RUnlock()

	nodes := make(map[string]struct{}, len(c.counts)+len(other.counts))
	for n := range c.counts {
		nodes[n] = struct{}{}
	}
	for n := range other.counts {
		nodes[n] = struct{}{}
	}

	var less, greater bool
	for n := range nodes {
		a, b := c.counts[n], other.counts[n]
		if a < b {
			less = true
		}
		if a > b {
			greater = true
		}
	}

	switch {
	case less && !greater:
		return Before
	case greater && !less:
		return After
	case !less && !greater:
		return Equal
	default:
		return Concurrent
	}
}

// HappensBefore reports whether c causally precedes other.
func (c *Clock) HappensBefore(other *Clock) bool {
	return c.Compare(other) == Before
}

// IsConcurrent reports whether neither clock precedes the other.
func (c *Clock) IsConcurrent(other *Clock) bool {
	return c.Compare(other) == Concurrent
}

// Clone returns an independent copy.
func (c *Clock) Clone() *Clock {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := New()
	for n, v := range c.counts {
		out.counts[n] = v
	}
	return out
}

// MarshalJSON serializes the counter map.
func (c *Clock) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c.counts)
}

// UnmarshalJSON replaces the clock contents with the serialized map.
func (c *Clock) UnmarshalJSON(data []byte) error {
	counts := make(map[string]uint64)
	if err := json.Unmarshal(data, &counts); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = counts
	return nil
}
