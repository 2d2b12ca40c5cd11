// Package store implements the append-only event log: validation, causal
// parking, logical clock assignment, indexing, supersession tracking, and
// subscriber notification. All derived state is a view over the log; events
// are never deleted or rewritten.
//
// The store owns its indices exclusively. External actors mutate the log
// only through Append and CreateSupersession; a single writer lock keeps
// every append atomic: it fully commits, fully parks, or fully rejects.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/grounding"
)

// Subscriber is invoked synchronously for every committed event. A panic in
// a subscriber is recovered and logged; it never aborts a commit.
type Subscriber func(*event.Event)

// Metrics receives instrument updates for store activity: commits by
// epistemic type, parked backlog depth, and rejections by rule code.
// Implemented by observability.Provider.
type Metrics interface {
	RecordAppend(ctx context.Context, epistemicType string)
	RecordParked(ctx context.Context, delta int64)
	RecordRejection(ctx context.Context, code string)
}

type parkedEntry struct {
	ev *event.Event
}

// Store is an in-memory append-only event log with indices.
type Store struct {
	mu           sync.RWMutex
	log          []*event.Event
	byID         map[string]*event.Event
	parked       map[string]*parkedEntry
	byType       map[event.EpistemicType][]string
	byCategory   map[string][]string
	byOperator   map[string][]string
	byEntity     map[string][]string
	children     map[string][]string
	supersededBy map[string]string
	clock        uint64

	subMu   sync.RWMutex
	subs    map[int]Subscriber
	nextSub int

	verifier *grounding.Verifier
	logger   *slog.Logger
	metrics  Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics wires an instrument sink for store activity.
func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		byID:         make(map[string]*event.Event),
		parked:       make(map[string]*parkedEntry),
		byType:       make(map[event.EpistemicType][]string),
		byCategory:   make(map[string][]string),
		byOperator:   make(map[string][]string),
		byEntity:     make(map[string][]string),
		children:     make(map[string][]string),
		supersededBy: make(map[string]string),
		subs:         make(map[int]Subscriber),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// The verifier resolves against committed state only, with direct map
	// access: it is always invoked with s.mu already held.
	s.verifier = grounding.New(grounding.ResolverFunc(func(id string) (*event.Event, bool) {
		e, ok := s.byID[id]
		return e, ok
	}))
	return s
}

// AppendResult reports what happened to an appended event.
type AppendResult struct {
	EventID      string   `json:"eventId"`
	LogicalClock uint64   `json:"logicalClock,omitempty"`
	Duplicate    bool     `json:"duplicate,omitempty"`
	Parked       bool     `json:"parked,omitempty"`
	WaitingFor   []string `json:"waitingFor,omitempty"`
	// Promoted lists previously parked events committed as a side effect
	// of this append, in commit order.
	Promoted []string `json:"promoted,omitempty"`
}

// Append validates e and either commits it, parks it until its parents
// arrive, or rejects it with event.ValidationErrors. Appending an already
// known id succeeds silently with Duplicate set and no clock tick.
func (s *Store) Append(e *event.Event) (*AppendResult, error) {
	s.mu.Lock()
	res, committed, err := s.appendLocked(e)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.notify(committed)
	return res, nil
}

func (s *Store) appendLocked(e *event.Event) (*AppendResult, []*event.Event, error) {
	if e == nil {
		return nil, nil, event.ValidationErrors{{Code: event.CodeStructural, Message: "event is nil"}}
	}

	// Idempotence: no re-validation, no second clock tick.
	if existing, ok := s.byID[e.ID]; ok {
		return &AppendResult{EventID: e.ID, LogicalClock: existing.LogicalClock, Duplicate: true}, nil, nil
	}
	if p, ok := s.parked[e.ID]; ok {
		return &AppendResult{EventID: e.ID, Parked: true, WaitingFor: s.missingParents(p.ev)}, nil, nil
	}

	if verrs := s.validateLocked(e); len(verrs) > 0 {
		s.recordRejections(verrs)
		return nil, nil, verrs
	}

	// Causal readiness: park until every parent is committed.
	if missing := s.missingParents(e); len(missing) > 0 {
		s.parked[e.ID] = &parkedEntry{ev: e.Clone()}
		if s.metrics != nil {
			s.metrics.RecordParked(context.Background(), 1)
		}
		s.logger.Debug("event parked", "id", e.ID, "waitingFor", missing)
		return &AppendResult{EventID: e.ID, Parked: true, WaitingFor: missing}, nil, nil
	}

	if verrs := s.verifyGroundingLocked(e); len(verrs) > 0 {
		s.recordRejections(verrs)
		return nil, nil, verrs
	}

	committed := []*event.Event{s.commitLocked(e)}
	promoted := s.promoteParkedLocked()
	committed = append(committed, promoted...)

	res := &AppendResult{EventID: e.ID, LogicalClock: committed[0].LogicalClock}
	for _, p := range promoted {
		res.Promoted = append(res.Promoted, p.ID)
	}
	return res, committed, nil
}

func (s *Store) recordRejections(verrs event.ValidationErrors) {
	if s.metrics == nil {
		return
	}
	for _, v := range verrs {
		s.metrics.RecordRejection(context.Background(), string(v.Code))
	}
}

// validateLocked runs structural validation plus the checks that need
// committed-state lookups.
func (s *Store) validateLocked(e *event.Event) event.ValidationErrors {
	verrs := event.Validate(e)

	// Rule 2, lookup half: a given event must not cite an interpretation
	// as its external source.
	if e.EpistemicType == event.Given && e.Grounding != nil {
		for _, ref := range e.Grounding.References {
			if ref.Kind != event.KindExternal {
				continue
			}
			if target, ok := s.byID[ref.EventID]; ok && target.EpistemicType == event.Meant {
				verrs = append(verrs, event.ValidationError{
					Code:    event.CodeRule2,
					Field:   "grounding.references",
					Message: fmt.Sprintf("given event cites meant event %s as external source", ref.EventID),
				})
				break
			}
		}
	}

	// Rule 9: a committed given target can never be superseded.
	if e.Supersession != nil {
		if target, ok := s.byID[e.Supersession.Supersedes]; ok && target.EpistemicType == event.Given {
			verrs = append(verrs, event.ValidationError{
				Code:    event.CodeRule9,
				Field:   "supersession.supersedes",
				Message: fmt.Sprintf("given event %s cannot be superseded", target.ID),
			})
		}
	}

	return verrs
}

func (s *Store) verifyGroundingLocked(e *event.Event) event.ValidationErrors {
	if e.EpistemicType == event.Given {
		return nil
	}
	res := s.verifier.Verify(e)
	if res.Grounded {
		return nil
	}
	return event.ValidationErrors{{Code: event.CodeRule7, Field: "grounding", Message: res.Err}}
}

func (s *Store) missingParents(e *event.Event) []string {
	var missing []string
	for _, p := range e.Parents {
		if _, ok := s.byID[p]; !ok {
			missing = append(missing, p)
		}
	}
	sort.Strings(missing)
	return missing
}

// commitLocked assigns the next logical clock tick, clones the event so no
// external reference can reach committed state, and updates every index.
func (s *Store) commitLocked(e *event.Event) *event.Event {
	s.clock++
	c := e.Clone()
	c.LogicalClock = s.clock
	if s.metrics != nil {
		s.metrics.RecordAppend(context.Background(), string(c.EpistemicType))
	}

	s.log = append(s.log, c)
	s.byID[c.ID] = c
	s.byType[c.EpistemicType] = append(s.byType[c.EpistemicType], c.ID)
	if c.Category != "" {
		s.byCategory[c.Category] = append(s.byCategory[c.Category], c.ID)
	}
	if c.Grounding != nil && c.Grounding.Derivation != nil && c.Grounding.Derivation.Operator != "" {
		op := c.Grounding.Derivation.Operator
		s.byOperator[op] = append(s.byOperator[op], c.ID)
	}
	if entity := extractEntityID(c.Payload); entity != "" {
		s.byEntity[entity] = append(s.byEntity[entity], c.ID)
	}
	for _, p := range c.Parents {
		s.children[p] = append(s.children[p], c.ID)
	}
	if c.Supersession != nil {
		s.supersededBy[c.Supersession.Supersedes] = c.ID
	}
	return c
}

// promoteParkedLocked repeatedly commits parked events whose parents are
// now all committed, until a full pass promotes nothing. A parked event
// that fails validation once its dependencies resolve is dropped from the
// queue and logged; it can be re-appended by its producer.
func (s *Store) promoteParkedLocked() []*event.Event {
	var promoted []*event.Event
	for {
		progressed := false
		for id, entry := range s.parked {
			if len(s.missingParents(entry.ev)) > 0 {
				continue
			}
			delete(s.parked, id)
			progressed = true
			if s.metrics != nil {
				s.metrics.RecordParked(context.Background(), -1)
			}

			if verrs := s.validateLocked(entry.ev); len(verrs) > 0 {
				s.recordRejections(verrs)
				s.logger.Warn("parked event rejected at promotion", "id", id, "err", verrs.Error())
				continue
			}
			if verrs := s.verifyGroundingLocked(entry.ev); len(verrs) > 0 {
				s.recordRejections(verrs)
				s.logger.Warn("parked event not grounded at promotion", "id", id, "err", verrs.Error())
				continue
			}
			promoted = append(promoted, s.commitLocked(entry.ev))
		}
		if !progressed {
			return promoted
		}
	}
}

func (s *Store) notify(committed []*event.Event) {
	if len(committed) == 0 {
		return
	}
	s.subMu.RLock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, ev := range committed {
		for _, fn := range subs {
			s.safeNotify(fn, ev)
		}
	}
}

func (s *Store) safeNotify(fn Subscriber, ev *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("subscriber panicked", "eventId", ev.ID, "panic", r)
		}
	}()
	fn(ev.Clone())
}

// Subscribe registers fn for commit notifications and returns an
// unsubscribe function.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// extractEntityID pulls a best-effort entity identifier out of an opaque
// payload, for the entity index.
func extractEntityID(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"entityId", "entity_id", "entity"} {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			return id
		}
	}
	return ""
}
