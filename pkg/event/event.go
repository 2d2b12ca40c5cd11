// Package event defines the immutable unit of the append-only log: a typed
// epistemic event with grounding references, interpretive frame, and
// supersession metadata. Events are plain JSON-serializable values; the
// store assigns the logical clock at commit time.
package event

import (
	"encoding/json"
	"time"
)

// EpistemicType classifies what kind of knowledge an event records. The set
// is closed: every event is exactly one of these.
type EpistemicType string

const (
	// Given is raw, externally-sourced fact. Never derivable from
	// interpretation, never supersedable.
	Given EpistemicType = "given"
	// Meant is an interpretation or claim, grounded in given events and
	// revisable via supersession.
	Meant EpistemicType = "meant"
	// DerivedValue is a computed result carrying an explicit derivation.
	DerivedValue EpistemicType = "derived_value"
)

// IsValid reports whether t is a member of the closed set.
func (t EpistemicType) IsValid() bool {
	switch t {
	case Given, Meant, DerivedValue:
		return true
	}
	return false
}

// ReferenceKind classifies a grounding reference.
type ReferenceKind string

const (
	KindExternal      ReferenceKind = "external"
	KindStructural    ReferenceKind = "structural"
	KindSemantic      ReferenceKind = "semantic"
	KindComputational ReferenceKind = "computational"
	KindEpistemic     ReferenceKind = "epistemic"
)

// IsValid reports whether k is a known reference kind.
func (k ReferenceKind) IsValid() bool {
	switch k {
	case KindExternal, KindStructural, KindSemantic, KindComputational, KindEpistemic:
		return true
	}
	return false
}

// Reference is one typed edge in the grounding graph.
type Reference struct {
	EventID string        `json:"eventId"`
	Kind    ReferenceKind `json:"kind"`
}

// Derivation describes how a derived value was produced.
type Derivation struct {
	Operator string         `json:"operator"`
	Inputs   []string       `json:"inputs,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// Grounding is the justification an event cites: typed references plus, for
// derived values, the derivation that produced the value.
type Grounding struct {
	References []Reference `json:"references"`
	Derivation *Derivation `json:"derivation,omitempty"`
}

// Frame is the interpretive context that makes a meant event's claim
// meaningful and falsifiable.
type Frame struct {
	Claim           string   `json:"claim"`
	EpistemicStatus string   `json:"epistemicStatus,omitempty"`
	Caveats         []string `json:"caveats,omitempty"`
	Purpose         string   `json:"purpose,omitempty"`
}

// SupersessionType classifies why an interpretation was replaced.
type SupersessionType string

const (
	SupersedeCorrection SupersessionType = "correction"
	SupersedeRefinement SupersessionType = "refinement"
	SupersedeRetraction SupersessionType = "retraction"
	// SupersedeTombstone marks the target as logically deleted. The target
	// remains in the log and stays queryable.
	SupersedeTombstone SupersessionType = "tombstone"
)

// Supersession marks this event as replacing another event's
// interpretation, never its existence.
type Supersession struct {
	Supersedes string           `json:"supersedes"`
	Type       SupersessionType `json:"type"`
	Reason     string           `json:"reason,omitempty"`
}

// Context scopes an event to a workspace for sync negotiation.
type Context struct {
	Workspace string `json:"workspace,omitempty"`
}

// Event is the atomic, immutable unit of the log.
type Event struct {
	ID            string          `json:"id"`
	EpistemicType EpistemicType   `json:"epistemicType"`
	Category      string          `json:"category"`
	Timestamp     time.Time       `json:"timestamp"`
	Actor         string          `json:"actor"`
	Grounding     *Grounding      `json:"grounding,omitempty"`
	Frame         *Frame          `json:"frame,omitempty"`
	Supersession  *Supersession   `json:"supersession,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Parents       []string        `json:"parents,omitempty"`
	Context       *Context        `json:"context,omitempty"`
	// LogicalClock is assigned by the local store at commit time; it is
	// never required on the wire but is present on export.
	LogicalClock uint64 `json:"logicalClock,omitempty"`
}

// Clone returns a deep copy. The store clones on append and on read so that
// committed events are never reachable by reference from the outside.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	if e.Grounding != nil {
		g := Grounding{}
		g.References = append([]Reference(nil), e.Grounding.References...)
		if e.Grounding.Derivation != nil {
			d := *e.Grounding.Derivation
			d.Inputs = append([]string(nil), e.Grounding.Derivation.Inputs...)
			if e.Grounding.Derivation.Params != nil {
				d.Params = make(map[string]any, len(e.Grounding.Derivation.Params))
				for k, v := range e.Grounding.Derivation.Params {
					d.Params[k] = v
				}
			}
			g.Derivation = &d
		}
		out.Grounding = &g
	}
	if e.Frame != nil {
		f := *e.Frame
		f.Caveats = append([]string(nil), e.Frame.Caveats...)
		out.Frame = &f
	}
	if e.Supersession != nil {
		s := *e.Supersession
		out.Supersession = &s
	}
	if e.Context != nil {
		c := *e.Context
		out.Context = &c
	}
	out.Payload = append(json.RawMessage(nil), e.Payload...)
	out.Parents = append([]string(nil), e.Parents...)
	return &out
}

// Workspace returns the event's workspace, or the empty string for
// unscoped events.
func (e *Event) Workspace() string {
	if e.Context == nil {
		return ""
	}
	return e.Context.Workspace
}

// HasComputationalReference reports whether any grounding reference is of
// kind computational.
func (e *Event) HasComputationalReference() bool {
	if e.Grounding == nil {
		return false
	}
	for _, ref := range e.Grounding.References {
		if ref.Kind == KindComputational {
			return true
		}
	}
	return false
}
