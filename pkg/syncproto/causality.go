package syncproto

import (
	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/vclock"
)

// CausalityChecker decides the causal relation between two events. The
// session's baseline is the parent-link checker; the vector-clock checker
// is an interchangeable strategy for deployments that attach clocks to
// their events.
type CausalityChecker interface {
	Relate(aID, bID string) vclock.Ordering
}

// Lookup resolves events by id. During receive processing it consults both
// the local store and the in-flight batch.
type Lookup func(id string) (*event.Event, bool)

// ParentLinkChecker derives causal relation from explicit parent edges.
type ParentLinkChecker struct {
	Resolve Lookup
}

// Relate walks parent links both ways. Two events with no ancestry path
// between them are concurrent.
func (c ParentLinkChecker) Relate(aID, bID string) vclock.Ordering {
	if aID == bID {
		return vclock.Equal
	}
	if c.reachable(aID, bID) {
		return vclock.Before
	}
	if c.reachable(bID, aID) {
		return vclock.After
	}
	return vclock.Concurrent
}

// reachable reports whether target is an ancestor of start.
func (c ParentLinkChecker) reachable(target, start string) bool {
	e, ok := c.Resolve(start)
	if !ok {
		return false
	}
	queue := append([]string(nil), e.Parents...)
	seen := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		if id == target {
			return true
		}
		if p, ok := c.Resolve(id); ok {
			queue = append(queue, p.Parents...)
		}
	}
	return false
}

// VectorClockChecker derives causal relation from per-event vector clocks
// supplied by the caller.
type VectorClockChecker struct {
	Clocks func(id string) *vclock.Clock
}

// Relate compares the two events' clocks. Events without a clock are
// treated as concurrent with everything except themselves.
func (c VectorClockChecker) Relate(aID, bID string) vclock.Ordering {
	if aID == bID {
		return vclock.Equal
	}
	a, b := c.Clocks(aID), c.Clocks(bID)
	if a == nil || b == nil {
		return vclock.Concurrent
	}
	return a.Compare(b)
}
