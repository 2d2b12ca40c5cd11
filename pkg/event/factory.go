package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Factory helpers construct well-formed events and fail fast on malformed
// input. This is deliberately stricter than Store.Append: a malformed
// construction is a programmer error, while append stays lenient so bulk
// imports can continue past bad events.

// Option adjusts an event under construction.
type Option func(*Event)

// WithID overrides the generated event id.
func WithID(id string) Option {
	return func(e *Event) { e.ID = id }
}

// WithParents declares causal predecessors.
func WithParents(parents ...string) Option {
	return func(e *Event) { e.Parents = append([]string(nil), parents...) }
}

// WithWorkspace scopes the event to a workspace.
func WithWorkspace(workspace string) Option {
	return func(e *Event) { e.Context = &Context{Workspace: workspace} }
}

// WithTimestamp overrides the creation timestamp.
func WithTimestamp(ts time.Time) Option {
	return func(e *Event) { e.Timestamp = ts }
}

// WithPayload attaches application data, marshaled to JSON.
func WithPayload(v any) Option {
	return func(e *Event) {
		raw, err := json.Marshal(v)
		if err != nil {
			return
		}
		e.Payload = raw
	}
}

func newBase(t EpistemicType, category, actor string, opts []Option) *Event {
	e := &Event{
		ID:            uuid.NewString(),
		EpistemicType: t,
		Category:      category,
		Timestamp:     time.Now().UTC(),
		Actor:         actor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewGiven constructs a given event recording raw fact.
func NewGiven(category, actor string, opts ...Option) (*Event, error) {
	e := newBase(Given, category, actor, opts)
	if errs := Validate(e); len(errs) > 0 {
		return nil, fmt.Errorf("new given event: %w", errs)
	}
	return e, nil
}

// NewMeant constructs a grounded interpretation. The frame and at least one
// reference are mandatory here, not merely at append time.
func NewMeant(category, actor string, frame Frame, refs []Reference, opts ...Option) (*Event, error) {
	if frame.Claim == "" {
		return nil, fmt.Errorf("new meant event: frame claim is required")
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("new meant event: at least one grounding reference is required")
	}
	e := newBase(Meant, category, actor, opts)
	e.Frame = &frame
	e.Grounding = &Grounding{References: append([]Reference(nil), refs...)}
	if errs := Validate(e); len(errs) > 0 {
		return nil, fmt.Errorf("new meant event: %w", errs)
	}
	return e, nil
}

// NewDerived constructs a derived value carrying its derivation. At least
// one reference of kind computational is mandatory.
func NewDerived(category, actor string, derivation Derivation, refs []Reference, opts ...Option) (*Event, error) {
	if derivation.Operator == "" {
		return nil, fmt.Errorf("new derived event: derivation operator is required")
	}
	e := newBase(DerivedValue, category, actor, opts)
	e.Grounding = &Grounding{
		References: append([]Reference(nil), refs...),
		Derivation: &derivation,
	}
	if !e.HasComputationalReference() {
		return nil, fmt.Errorf("new derived event: at least one computational reference is required")
	}
	if errs := Validate(e); len(errs) > 0 {
		return nil, fmt.Errorf("new derived event: %w", errs)
	}
	return e, nil
}

// NewTombstone constructs a meant event that marks target as logically
// deleted. The target stays in the log; deletion is a new fact about it.
func NewTombstone(targetID, actor, reason string, opts ...Option) (*Event, error) {
	if targetID == "" {
		return nil, fmt.Errorf("new tombstone: target id is required")
	}
	e := newBase(Meant, "tombstone", actor, opts)
	e.Frame = &Frame{Claim: "tombstone: " + targetID, Purpose: reason}
	e.Grounding = &Grounding{References: []Reference{{EventID: targetID, Kind: KindStructural}}}
	e.Supersession = &Supersession{Supersedes: targetID, Type: SupersedeTombstone, Reason: reason}
	if errs := Validate(e); len(errs) > 0 {
		return nil, fmt.Errorf("new tombstone: %w", errs)
	}
	return e, nil
}
