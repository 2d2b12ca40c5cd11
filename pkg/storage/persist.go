package storage

import (
	"context"
	"log/slog"

	"github.com/substratelabs/substrate/pkg/event"
	"github.com/substratelabs/substrate/pkg/store"
)

// Restore builds a store from the database contents by replaying the
// stored snapshot. Replay runs every event back through validation and
// grounding checks, so a database tampered with out-of-band cannot smuggle
// rule-violating events into memory.
func (s *DB) Restore(ctx context.Context, opts ...store.Option) (*store.Store, *store.ImportResult, error) {
	snap, err := s.LoadSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(opts...)
	res := st.Import(snap)
	return st, res, nil
}

// Watch subscribes to st and persists every committed event as it lands.
// Persistence failures are logged, never propagated: a full-snapshot save
// at shutdown repairs any gap.
func (s *DB) Watch(st *store.Store, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return st.Subscribe(func(e *event.Event) {
		if err := s.PersistEvent(context.Background(), e); err != nil {
			logger.Error("event persistence failed", "id", e.ID, "err", err)
		}
	})
}
