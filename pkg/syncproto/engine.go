package syncproto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/store"
)

// Status is the engine's coarse lifecycle state.
type Status string

const (
	EngineIdle     Status = "idle"
	EngineSyncing  Status = "syncing"
	EngineComplete Status = "complete"
	EngineFailed   Status = "failed"
)

const (
	// DefaultMaxRetries bounds transport retries per Sync call.
	DefaultMaxRetries = 4
	// initialBackoff doubles per retry: 2s, 4s, 8s, 16s.
	initialBackoff = 2 * time.Second
)

// FailureCategory is the event category of durable sync-failure records.
const FailureCategory = "sync_failure"

// RefusalError is a peer's REFUSE reply. Refusals are authoritative and
// are not retried.
type RefusalError struct {
	Reason string
}

func (e *RefusalError) Error() string {
	return "sync refused by peer: " + e.Reason
}

// Metrics receives engine telemetry. Implemented by the observability
// provider; nil disables it.
type Metrics interface {
	SyncAttempt(ctx context.Context, success bool, d time.Duration)
	SyncConflicts(ctx context.Context, n int)
}

// Engine orchestrates sync sessions against one peer with bounded retry
// and durable failure recording.
type Engine struct {
	mu         sync.Mutex
	store      *store.Store
	transport  Transport
	endpoint   string
	deviceID   string
	status     Status
	maxRetries int
	limiter    *rate.Limiter
	metrics    Metrics
	sleep      func(context.Context, time.Duration) error
	logger     *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTransport sets the transport and its nominal endpoint.
func WithTransport(endpoint string, t Transport) EngineOption {
	return func(e *Engine) {
		e.endpoint = endpoint
		e.transport = t
	}
}

// WithDeviceID pins the stable device identity. Persisting it across
// restarts is the storage collaborator's job.
func WithDeviceID(id string) EngineOption {
	return func(e *Engine) {
		if id != "" {
			e.deviceID = id
		}
	}
}

// WithRateLimit caps outbound sync calls.
func WithRateLimit(rps float64, burst int) EngineOption {
	return func(e *Engine) { e.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithMaxRetries overrides the retry bound.
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) { e.maxRetries = n }
}

// WithMetrics attaches engine telemetry.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineLogger sets the structured logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// withSleeper replaces the backoff sleeper in tests.
func withSleeper(fn func(context.Context, time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = fn }
}

// NewEngine creates an engine for st. Without a transport the engine is
// constructed but unavailable.
func NewEngine(st *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      st,
		deviceID:   uuid.NewString(),
		status:     EngineIdle,
		maxRetries: DefaultMaxRetries,
		sleep:      sleepCtx,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DeviceID returns the engine's stable device identity.
func (e *Engine) DeviceID() string { return e.deviceID }

// Status returns the engine status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

// IsAvailable reports whether the engine has a peer to talk to.
func (e *Engine) IsAvailable() bool {
	return e.endpoint != "" && e.transport != nil
}

// Sync runs one full reconciliation for workspace. Transport errors are
// retried with exponential backoff up to the bound; exhaustion or a peer
// refusal is recorded durably in the local store as a given event of
// category sync_failure, and the engine status becomes failed.
func (e *Engine) Sync(ctx context.Context, workspace string) (Stats, error) {
	if !e.IsAvailable() {
		return Stats{}, fmt.Errorf("syncproto: engine has no endpoint configured")
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Stats{}, err
		}
	}

	e.setStatus(EngineSyncing)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		attempts++
		started := time.Now()
		stats, err := e.attempt(ctx, workspace)
		if e.metrics != nil {
			e.metrics.SyncAttempt(ctx, err == nil, time.Since(started))
		}
		if err == nil {
			if e.metrics != nil && stats.Conflicts > 0 {
				e.metrics.SyncConflicts(ctx, stats.Conflicts)
			}
			e.setStatus(EngineComplete)
			return stats, nil
		}
		lastErr = err

		var refusal *RefusalError
		if errors.As(err, &refusal) {
			e.logger.Warn("sync refused", "workspace", workspace, "reason", refusal.Reason)
			break
		}
		if attempt < e.maxRetries {
			delay := initialBackoff << attempt
			e.logger.Warn("sync attempt failed, backing off",
				"workspace", workspace, "attempt", attempts, "delay", delay, "err", err)
			if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	e.recordSyncFailure(workspace, lastErr, attempts)
	e.setStatus(EngineFailed)
	return Stats{Error: lastErr.Error()}, lastErr
}

// attempt runs one complete protocol conversation.
func (e *Engine) attempt(ctx context.Context, workspace string) (Stats, error) {
	session := NewSession(e.store, Scope{Workspace: workspace}, WithSessionLogger(e.logger))

	scopeMsg, err := session.Start()
	if err != nil {
		return session.Fail(err), err
	}
	resp, err := e.transport.Exchange(ctx, scopeMsg)
	if err != nil {
		return session.Fail(err), err
	}
	if resp.Type == MsgRefuse {
		err := &RefusalError{Reason: resp.Reason}
		return session.Fail(err), err
	}
	if resp.Type != MsgScopeAck {
		err := fmt.Errorf("syncproto: expected SCOPE_ACK, got %s", resp.Type)
		return session.Fail(err), err
	}

	invMsg, err := session.CreateInventory()
	if err != nil {
		return session.Fail(err), err
	}
	resp, err = e.transport.Exchange(ctx, invMsg)
	if err != nil {
		return session.Fail(err), err
	}
	if resp.Type != MsgInv {
		err := fmt.Errorf("syncproto: expected INV, got %s", resp.Type)
		return session.Fail(err), err
	}
	plan, err := session.ProcessInventory(resp.Inventory)
	if err != nil {
		return session.Fail(err), err
	}

	// Pull what we definitely lack.
	if len(plan.ToReceive) > 0 {
		resp, err = e.transport.Exchange(ctx, &Message{Type: MsgWant, IDs: plan.ToReceive})
		if err != nil {
			return session.Fail(err), err
		}
		if resp.Type != MsgSend {
			err := fmt.Errorf("syncproto: expected SEND, got %s", resp.Type)
			return session.Fail(err), err
		}
		if _, err := session.ProcessReceived(resp.Events); err != nil {
			return session.Fail(err), err
		}
	}

	// Push what the peer probably lacks, trimmed by a have/want round so
	// bloom false positives cost a list entry, not a lost event.
	confirmed := plan.ToSend
	if len(plan.ToSend) > 0 {
		resp, err = e.transport.Exchange(ctx, &Message{Type: MsgHave, IDs: plan.ToSend})
		if err != nil {
			return session.Fail(err), err
		}
		if resp.Type != MsgWant {
			err := fmt.Errorf("syncproto: expected WANT, got %s", resp.Type)
			return session.Fail(err), err
		}
		confirmed = resp.IDs
	}

	sendMsg, err := session.CreateSend(confirmed)
	if err != nil {
		return session.Fail(err), err
	}
	resp, err = e.transport.Exchange(ctx, sendMsg)
	if err != nil {
		return session.Fail(err), err
	}
	switch resp.Type {
	case MsgAck:
	case MsgConflict:
		e.logger.Info("peer reported conflicts", "count", len(resp.Conflicts))
	default:
		err := fmt.Errorf("syncproto: expected ACK, got %s", resp.Type)
		return session.Fail(err), err
	}

	return session.Complete(), nil
}

// recordSyncFailure makes the failure itself part of the permanent,
// auditable history: a given event in the local log, surviving restarts.
func (e *Engine) recordSyncFailure(workspace string, cause error, attempts int) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	ev, err := event.NewGiven(FailureCategory, "sync-engine:"+e.deviceID,
		event.WithPayload(map[string]any{
			"deviceId":  e.deviceID,
			"error":     msg,
			"attempts":  attempts,
			"workspace": workspace,
			"endpoint":  e.endpoint,
		}),
	)
	if err != nil {
		e.logger.Error("could not build sync failure record", "err", err)
		return
	}
	if _, err := e.store.Append(ev); err != nil {
		e.logger.Error("could not append sync failure record", "err", err)
		return
	}
	e.logger.Error("sync failed", "workspace", workspace, "attempts", attempts, "err", msg)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
