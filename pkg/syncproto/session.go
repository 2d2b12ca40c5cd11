package syncproto

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/substratelabs/substrate/pkg/bloom"
	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/store"
	"github.com/substratelabs/substrate/pkg/vclock"
)

// State is a session's position in its lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateNegotiating State = "negotiating"
	StateSyncing     State = "syncing"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
)

// Stats accumulates over one session and is returned by the terminal
// transitions.
type Stats struct {
	Sent      int       `json:"sent"`
	Received  int       `json:"received"`
	Conflicts int       `json:"conflicts"`
	Rejected  int       `json:"rejected"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Error     string    `json:"error,omitempty"`
}

// Plan is the result of comparing inventories: what we definitely want and
// what the peer probably lacks.
type Plan struct {
	// ToReceive lists remote heads we do not hold: a definite want-list.
	ToReceive []string
	// ToSend lists local events the peer's bloom filter says it does not
	// hold. False positives may suppress a send (the have/want round
	// recovers them); false negatives cannot occur, so nothing the peer
	// lacks is silently skipped.
	ToSend []string
}

// ReceiveSummary reports one ProcessReceived batch. Appended counts
// events from the batch committed directly; Promoted counts previously
// parked events committed as a side effect. An event that parks and then
// promotes within the same batch contributes to Parked and Promoted, not
// to Appended, so Appended+Parked is the number of distinct events taken
// from the batch.
type ReceiveSummary struct {
	Appended   int
	Promoted   int
	Duplicates int
	Parked     int
	Rejected   int
	Conflicts  []Conflict
}

// Session is one reconciliation exchange between a local store and a peer.
type Session struct {
	mu        sync.Mutex
	store     *store.Store
	scope     Scope
	state     State
	stats     Stats
	heads     []string
	conflicts []Conflict
	checker   CausalityChecker
	logger    *slog.Logger
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithCausality overrides the default parent-link conflict detector.
func WithCausality(c CausalityChecker) SessionOption {
	return func(s *Session) { s.checker = c }
}

// WithSessionLogger sets the structured logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an idle session over st scoped to scope.
func NewSession(st *store.Store, scope Scope, opts ...SessionOption) *Session {
	s := &Session{
		store:  st,
		scope:  scope,
		state:  StateIdle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Scope returns the session scope.
func (s *Session) Scope() Scope { return s.scope }

// Start captures local heads and emits the opening SCOPE message.
func (s *Session) Start() (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return nil, fmt.Errorf("syncproto: start from state %s", s.state)
	}
	s.state = StateNegotiating
	s.stats.StartTime = time.Now()
	s.heads = s.store.Heads()
	return &Message{Type: MsgScope, Scope: s.scope.Payload()}, nil
}

// AcceptScope is the responder-side opening: adopt the initiator's scope if
// the protocol versions are compatible, else refuse.
func (s *Session) AcceptScope(payload *ScopePayload) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return nil, fmt.Errorf("syncproto: accept scope from state %s", s.state)
	}
	if payload == nil {
		return nil, fmt.Errorf("syncproto: SCOPE message without payload")
	}
	if err := CheckProtocolVersion(payload.ProtocolVersion); err != nil {
		s.state = StateFailed
		s.stats.Error = err.Error()
		return &Message{Type: MsgRefuse, Reason: err.Error()}, nil
	}
	s.scope = Scope{Workspace: payload.Workspace, Frames: payload.Frames, Horizon: payload.Horizon}
	s.state = StateNegotiating
	s.stats.StartTime = time.Now()
	s.heads = s.store.Heads()
	return &Message{Type: MsgScopeAck, Scope: s.scope.Payload()}, nil
}

// CreateInventory summarizes the local log as heads plus a bloom filter
// over every committed event id, and moves the session to syncing.
func (s *Session) CreateInventory() (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNegotiating && s.state != StateSyncing {
		return nil, fmt.Errorf("syncproto: inventory from state %s", s.state)
	}
	s.state = StateSyncing

	filter := bloom.New()
	all := s.store.GetAll()
	for _, e := range all {
		filter.Add(e.ID)
	}
	return &Message{
		Type: MsgInv,
		Inventory: &InventoryPayload{
			Heads:       s.store.Heads(),
			Count:       len(all),
			BloomFilter: filter.ToBase64(),
		},
	}, nil
}

// ProcessInventory compares the peer's inventory against the local log.
func (s *Session) ProcessInventory(inv *InventoryPayload) (*Plan, error) {
	if inv == nil {
		return nil, fmt.Errorf("syncproto: INV message without payload")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSyncing && s.state != StateNegotiating {
		return nil, fmt.Errorf("syncproto: process inventory from state %s", s.state)
	}
	s.state = StateSyncing

	remote, err := bloom.FromBase64(inv.BloomFilter)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, head := range inv.Heads {
		if _, ok := s.store.Get(head); !ok {
			plan.ToReceive = append(plan.ToReceive, head)
		}
	}
	for _, e := range s.store.GetAll() {
		if !s.scope.Accepts(e) {
			continue
		}
		if !remote.MightContain(e.ID) {
			plan.ToSend = append(plan.ToSend, e.ID)
		}
	}
	return plan, nil
}

// CreateSend packages exactly the requested events. Every field travels
// as committed locally; actor identity is never rewritten in transit.
// The logical clock stays home: it is local bookkeeping, reassigned by the
// receiving store.
func (s *Session) CreateSend(requested []string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSyncing {
		return nil, fmt.Errorf("syncproto: send from state %s", s.state)
	}
	events := make([]*event.Event, 0, len(requested))
	for _, id := range requested {
		e, ok := s.store.Get(id)
		if !ok {
			continue
		}
		e.LogicalClock = 0
		events = append(events, e)
	}
	s.stats.Sent += len(events)
	return &Message{Type: MsgSend, Events: events}, nil
}

// ProcessReceived appends a batch of incoming events through the store's
// normal append path. Events outside the negotiated workspace are rejected
// per event; concurrent siblings of a shared parent are recorded as
// conflicts but both events are kept.
func (s *Session) ProcessReceived(events []*event.Event) (*ReceiveSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSyncing {
		return nil, fmt.Errorf("syncproto: receive from state %s", s.state)
	}

	batch := make(map[string]*event.Event, len(events))
	for _, e := range events {
		if e != nil {
			batch[e.ID] = e
		}
	}
	checker := s.checker
	if checker == nil {
		checker = ParentLinkChecker{Resolve: func(id string) (*event.Event, bool) {
			if e, ok := batch[id]; ok {
				return e, true
			}
			return s.store.Get(id)
		}}
	}

	summary := &ReceiveSummary{}
	for _, incoming := range events {
		if incoming == nil {
			continue
		}
		if !s.scope.Accepts(incoming) {
			summary.Rejected++
			s.stats.Rejected++
			s.logger.Warn("event outside session scope rejected",
				"id", incoming.ID, "workspace", incoming.Workspace(), "scope", s.scope.Workspace)
			continue
		}

		summary.Conflicts = append(summary.Conflicts, s.detectConflicts(checker, incoming)...)

		res, err := s.store.Append(incoming.Clone())
		if err != nil {
			summary.Rejected++
			s.stats.Rejected++
			s.logger.Warn("received event rejected by store", "id", incoming.ID, "err", err)
			continue
		}
		switch {
		case res.Duplicate:
			summary.Duplicates++
		case res.Parked:
			summary.Parked++
		default:
			summary.Appended++
			summary.Promoted += len(res.Promoted)
		}
	}

	s.conflicts = append(s.conflicts, summary.Conflicts...)
	s.stats.Conflicts += len(summary.Conflicts)
	// Promoted events were counted when they parked, so each received
	// event enters the cumulative stat exactly once.
	s.stats.Received += summary.Appended + summary.Parked
	return summary, nil
}

// detectConflicts looks for committed local children that share a parent
// with incoming and are causally unrelated to it.
func (s *Session) detectConflicts(checker CausalityChecker, incoming *event.Event) []Conflict {
	// An id the store already holds, committed or parked, has had its
	// conflicts recorded on first receipt; a replay adds nothing.
	if _, alreadyKnown := s.store.Get(incoming.ID); alreadyKnown {
		return nil
	}
	if s.store.IsParked(incoming.ID) {
		return nil
	}
	var out []Conflict
	seen := map[string]bool{}
	for _, parent := range incoming.Parents {
		for _, localChild := range s.store.ChildrenOf(parent) {
			if localChild == incoming.ID || seen[localChild] {
				continue
			}
			if checker.Relate(localChild, incoming.ID) == vclock.Concurrent {
				seen[localChild] = true
				out = append(out, Conflict{
					LocalEvent:   localChild,
					RemoteEvent:  incoming.ID,
					CommonParent: parent,
				})
			}
		}
	}
	return out
}

// Conflicts returns the conflicts recorded so far.
func (s *Session) Conflicts() []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Conflict(nil), s.conflicts...)
}

// Complete terminates the session successfully.
func (s *Session) Complete() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateComplete
	s.stats.EndTime = time.Now()
	return s.stats
}

// Fail terminates the session with an error.
func (s *Session) Fail(err error) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	if err != nil {
		s.stats.Error = err.Error()
	}
	s.stats.EndTime = time.Now()
	return s.stats
}

// CurrentStats returns a copy of the running stats.
func (s *Session) CurrentStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
