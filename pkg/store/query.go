package store

import (
	"sort"

	"github.com/substratelabs/substrate/pkg/event"
)

// The query surface is pure: every method returns clones of committed
// state and has no side effects. Parked events are invisible to queries.

// DefaultProvenanceDepth bounds provenance traversal when the caller
// passes a non-positive maxDepth.
const DefaultProvenanceDepth = 100

// Get returns the committed event with id.
func (s *Store) Get(id string) (*event.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// GetAll returns every committed event in logical clock order.
func (s *Store) GetAll() []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*event.Event, len(s.log))
	for i, e := range s.log {
		out[i] = e.Clone()
	}
	return out
}

func (s *Store) byIDs(ids []string) []*event.Event {
	out := make([]*event.Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.byID[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// GetByEpistemicType returns committed events of type t in commit order.
func (s *Store) GetByEpistemicType(t event.EpistemicType) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byIDs(s.byType[t])
}

// GetGiven returns all given events.
func (s *Store) GetGiven() []*event.Event { return s.GetByEpistemicType(event.Given) }

// GetMeant returns all meant events, superseded ones included.
func (s *Store) GetMeant() []*event.Event { return s.GetByEpistemicType(event.Meant) }

// GetDerived returns all derived-value events.
func (s *Store) GetDerived() []*event.Event { return s.GetByEpistemicType(event.DerivedValue) }

// GetByCategory returns committed events tagged with category.
func (s *Store) GetByCategory(category string) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byIDs(s.byCategory[category])
}

// GetByOperator returns derived events whose derivation used operator.
func (s *Store) GetByOperator(operator string) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byIDs(s.byOperator[operator])
}

// GetByEntity returns events whose payload referenced entity id.
func (s *Store) GetByEntity(entityID string) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byIDs(s.byEntity[entityID])
}

// IsSuperseded reports whether a later event replaced id's interpretation.
func (s *Store) IsSuperseded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.supersededBy[id]
	return ok
}

// GetSupersedingEvent returns the event that superseded id, if any.
func (s *Store) GetSupersedingEvent(id string) (*event.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	supID, ok := s.supersededBy[id]
	if !ok {
		return nil, false
	}
	e, ok := s.byID[supID]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// GetActiveMeant returns meant events that have not been superseded. The
// superseded ones are excluded by index, never by deletion.
func (s *Store) GetActiveMeant() []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*event.Event, 0)
	for _, id := range s.byType[event.Meant] {
		if _, superseded := s.supersededBy[id]; superseded {
			continue
		}
		if e, ok := s.byID[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// WhatGrounds returns the resolved grounding references of id, bucketed by
// reference kind. Unresolvable references are omitted.
func (s *Store) WhatGrounds(id string) map[event.ReferenceKind][]*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[event.ReferenceKind][]*event.Event)
	e, ok := s.byID[id]
	if !ok || e.Grounding == nil {
		return out
	}
	for _, ref := range e.Grounding.References {
		target, ok := s.byID[ref.EventID]
		if !ok {
			continue
		}
		out[ref.Kind] = append(out[ref.Kind], target.Clone())
	}
	return out
}

// GetProvenanceChain returns the transitive grounding closure of id in
// depth-first order, starting with the event itself. Cycles are guarded by
// a visited set; maxDepth bounds the walk (non-positive means the default).
func (s *Store) GetProvenanceChain(id string, maxDepth int) []*event.Event {
	if maxDepth <= 0 {
		maxDepth = DefaultProvenanceDepth
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.byID[id]
	if !ok {
		return nil
	}

	type frame struct {
		ev    *event.Event
		depth int
	}
	var out []*event.Event
	visited := map[string]bool{}
	stack := []frame{{ev: root, depth: 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.ev.ID] || f.depth > maxDepth {
			continue
		}
		visited[f.ev.ID] = true
		out = append(out, f.ev.Clone())

		if f.ev.Grounding == nil {
			continue
		}
		// Push in reverse so references are visited in declared order.
		refs := f.ev.Grounding.References
		for i := len(refs) - 1; i >= 0; i-- {
			if target, ok := s.byID[refs[i].EventID]; ok && !visited[target.ID] {
				stack = append(stack, frame{ev: target, depth: f.depth + 1})
			}
		}
	}
	return out
}

// FindRoots returns the given events the provenance chain of id terminates
// in.
func (s *Store) FindRoots(id string) []*event.Event {
	chain := s.GetProvenanceChain(id, 0)
	var roots []*event.Event
	for _, e := range chain {
		if e.EpistemicType == event.Given {
			roots = append(roots, e)
		}
	}
	return roots
}

// CanRecompute reports whether id is a derived value carrying a full
// derivation descriptor.
func (s *Store) CanRecompute(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return ok &&
		e.EpistemicType == event.DerivedValue &&
		e.Grounding != nil &&
		e.Grounding.Derivation != nil &&
		e.Grounding.Derivation.Operator != ""
}

// Heads returns the ids of committed events with no committed children,
// sorted for deterministic wire output.
func (s *Store) Heads() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var heads []string
	for id := range s.byID {
		if len(s.children[id]) == 0 {
			heads = append(heads, id)
		}
	}
	sort.Strings(heads)
	return heads
}

// ChildrenOf returns the committed children of id.
func (s *Store) ChildrenOf(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.children[id]...)
}

// IsAncestor reports whether ancestor is reachable from descendant by
// walking parent links through committed state.
func (s *Store) IsAncestor(ancestorID, descendantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ancestorID == descendantID {
		return false
	}
	start, ok := s.byID[descendantID]
	if !ok {
		return false
	}
	queue := append([]string(nil), start.Parents...)
	seen := map[string]bool{}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		if id == ancestorID {
			return true
		}
		if e, ok := s.byID[id]; ok {
			queue = append(queue, e.Parents...)
		}
	}
	return false
}

// Len returns the number of committed events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// Clock returns the current logical clock value.
func (s *Store) Clock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock
}

// ParkedCount returns how many events are held waiting for parents.
func (s *Store) ParkedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parked)
}

// IsParked reports whether id is held waiting for parents.
func (s *Store) IsParked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.parked[id]
	return ok
}

// ParkedIDs returns the ids of parked events, sorted.
func (s *Store) ParkedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.parked))
	for id := range s.parked {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
