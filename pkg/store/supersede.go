package store

import (
	"fmt"

	"github.com/substratelabs/substrate/pkg/event"
)

// CreateSupersession commits replacement as the superseding interpretation
// of targetID. The target must exist and must not be a given event; it is
// never mutated or removed, only shadowed in the supersession index.
//
// Unless replacement declares its own parents, the target becomes its
// causal parent, so the superseding event always carries a later clock.
func (s *Store) CreateSupersession(targetID string, replacement *event.Event, sType event.SupersessionType, reason string) (*event.Event, error) {
	if replacement == nil {
		return nil, fmt.Errorf("store: supersession replacement is nil")
	}
	if sType == "" {
		sType = event.SupersedeCorrection
	}

	s.mu.Lock()
	target, ok := s.byID[targetID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("store: supersession target %s not found", targetID)
	}
	if target.EpistemicType == event.Given {
		s.mu.Unlock()
		return nil, event.ValidationErrors{{
			Code:    event.CodeRule9,
			Field:   "supersession.supersedes",
			Message: fmt.Sprintf("given event %s cannot be superseded", targetID),
		}}
	}

	ev := replacement.Clone()
	ev.Supersession = &event.Supersession{Supersedes: targetID, Type: sType, Reason: reason}
	if len(ev.Parents) == 0 {
		ev.Parents = []string{targetID}
	}

	res, committed, err := s.appendLocked(ev)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.notify(committed)
	if res.Parked {
		return nil, fmt.Errorf("store: supersession of %s parked waiting for %v", targetID, res.WaitingFor)
	}

	out, _ := s.Get(res.EventID)
	return out, nil
}
