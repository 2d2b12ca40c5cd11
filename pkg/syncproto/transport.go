package syncproto

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/substratelabs/substrate/pkg/store"
)

// Transport carries one protocol message to the peer and returns its
// reply. Implementations suspend only at I/O boundaries; the stores on
// both ends are touched solely through their synchronous public surface.
type Transport interface {
	Exchange(ctx context.Context, msg *Message) (*Message, error)
}

// Responder serves the passive side of the protocol over a local store.
// One responder handles one initiator conversation at a time; a new SCOPE
// starts a fresh session.
type Responder struct {
	mu      sync.Mutex
	store   *store.Store
	session *Session
	logger  *slog.Logger
}

// NewResponder wraps st as a sync peer.
func NewResponder(st *store.Store, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{store: st, logger: logger}
}

// Session returns the current responder-side session, if any.
func (r *Responder) Session() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Handle dispatches one incoming message and produces the reply.
func (r *Responder) Handle(ctx context.Context, msg *Message) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, fmt.Errorf("syncproto: nil message")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch msg.Type {
	case MsgScope:
		r.session = NewSession(r.store, Scope{}, WithSessionLogger(r.logger))
		return r.session.AcceptScope(msg.Scope)

	case MsgInv:
		if r.session == nil {
			return nil, fmt.Errorf("syncproto: INV before SCOPE")
		}
		return r.session.CreateInventory()

	case MsgWant:
		if r.session == nil {
			return nil, fmt.Errorf("syncproto: WANT before SCOPE")
		}
		return r.session.CreateSend(r.withAncestry(msg.IDs))

	case MsgHave:
		// Trim the peer's probabilistic send-list down to what we
		// actually lack.
		var want []string
		for _, id := range msg.IDs {
			if _, ok := r.store.Get(id); !ok {
				want = append(want, id)
			}
		}
		return &Message{Type: MsgWant, IDs: want}, nil

	case MsgSend:
		if r.session == nil {
			return nil, fmt.Errorf("syncproto: SEND before SCOPE")
		}
		summary, err := r.session.ProcessReceived(msg.Events)
		if err != nil {
			return nil, err
		}
		r.session.Complete()
		if len(summary.Conflicts) > 0 {
			return &Message{Type: MsgConflict, Conflicts: summary.Conflicts}, nil
		}
		return &Message{Type: MsgAck}, nil

	default:
		return &Message{Type: MsgRefuse, Reason: fmt.Sprintf("unexpected message %s", msg.Type)}, nil
	}
}

// withAncestry expands requested ids with their causal parents and
// grounding references, transitively, ordered by local clock so the
// receiving store can commit and ground each event as it arrives. The
// peer's append is idempotent, so over-sending ancestry it already holds
// is safe; under-sending it is not.
func (r *Responder) withAncestry(ids []string) []string {
	seen := map[string]bool{}
	queue := append([]string(nil), ids...)
	type entry struct {
		id    string
		clock uint64
	}
	var closure []entry

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		e, ok := r.store.Get(id)
		if !ok {
			continue
		}
		closure = append(closure, entry{id: id, clock: e.LogicalClock})
		queue = append(queue, e.Parents...)
		if e.Grounding != nil {
			for _, ref := range e.Grounding.References {
				queue = append(queue, ref.EventID)
			}
		}
	}

	sort.Slice(closure, func(i, j int) bool { return closure[i].clock < closure[j].clock })
	out := make([]string, len(closure))
	for i, c := range closure {
		out[i] = c.id
	}
	return out
}

// Loopback is an in-process transport pairing an initiator directly with a
// responder. It backs local device-to-device sync and tests.
type Loopback struct {
	Peer *Responder
}

// Exchange hands the message straight to the peer responder.
func (l Loopback) Exchange(ctx context.Context, msg *Message) (*Message, error) {
	return l.Peer.Handle(ctx, msg)
}
