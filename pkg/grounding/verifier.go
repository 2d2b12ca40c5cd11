// Package grounding proves that a claim traces to immutable ground truth.
// The verifier walks the reference graph of an event looking for at least
// one path that terminates in a given event. Multiple references increase
// confidence, but a single terminating path suffices.
package grounding

import (
	"fmt"

	"github.com/substratelabs/substrate/pkg/event"
)

// Resolver looks up committed events by id. Unknown ids are treated as
// forward references (tolerated, skipped) so that causally-parked graphs
// verify once their dependencies arrive.
type Resolver interface {
	Resolve(id string) (*event.Event, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(id string) (*event.Event, bool)

func (f ResolverFunc) Resolve(id string) (*event.Event, bool) { return f(id) }

// Result reports the outcome of a verification walk.
type Result struct {
	Grounded bool
	// Chain is the first reference path found from the event down to a
	// given event, as event ids.
	Chain []string
	Err   string
}

// DefaultMaxDepth bounds the walk on pathological graphs.
const DefaultMaxDepth = 10000

// Verifier walks grounding graphs against a resolver.
type Verifier struct {
	resolver Resolver
	maxDepth int
}

// New creates a verifier with the default depth bound.
func New(r Resolver) *Verifier {
	return &Verifier{resolver: r, maxDepth: DefaultMaxDepth}
}

// WithMaxDepth overrides the depth bound.
func (v *Verifier) WithMaxDepth(depth int) *Verifier {
	v.maxDepth = depth
	return v
}

type walkFrame struct {
	ev   *event.Event
	next int
}

// Verify walks e's reference graph depth first with an explicit stack. A
// cycle on the current path is recorded and reported only if no other path
// grounds; forward references are skipped.
func (v *Verifier) Verify(e *event.Event) Result {
	if e == nil {
		return Result{Err: "no event to verify"}
	}
	if e.EpistemicType == event.Given {
		return Result{Grounded: true, Chain: []string{e.ID}}
	}
	if e.Grounding == nil || len(e.Grounding.References) == 0 {
		return Result{Err: fmt.Sprintf("event %s has no grounding references", e.ID)}
	}

	stack := []walkFrame{{ev: e}}
	onPath := map[string]bool{e.ID: true}
	sawCycle := false

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.ev.EpistemicType == event.Given {
			chain := make([]string, len(stack))
			for i, f := range stack {
				chain[i] = f.ev.ID
			}
			return Result{Grounded: true, Chain: chain}
		}

		var refs []event.Reference
		if top.ev.Grounding != nil {
			refs = top.ev.Grounding.References
		}

		advanced := false
		for top.next < len(refs) {
			ref := refs[top.next]
			top.next++

			target, ok := v.resolver.Resolve(ref.EventID)
			if !ok {
				// Forward reference: the target may be parked or
				// not yet synced. Not an error, just not a path.
				continue
			}
			if onPath[target.ID] {
				sawCycle = true
				continue
			}
			if len(stack) >= v.maxDepth {
				return Result{Err: fmt.Sprintf("grounding chain for %s exceeds depth %d", e.ID, v.maxDepth)}
			}
			stack = append(stack, walkFrame{ev: target})
			onPath[target.ID] = true
			advanced = true
			break
		}

		if !advanced {
			delete(onPath, top.ev.ID)
			stack = stack[:len(stack)-1]
		}
	}

	if sawCycle {
		return Result{Err: fmt.Sprintf("circular grounding detected for %s", e.ID)}
	}
	return Result{Err: fmt.Sprintf("no grounding path for %s terminates in a given event", e.ID)}
}
