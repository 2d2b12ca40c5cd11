package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/substratelabs/substrate/pkg/event"
)

// ExportVersion identifies the snapshot format.
const ExportVersion = "1.0.0"

// Snapshot is the persistence-boundary shape consumed and produced by
// external storage collaborators.
type Snapshot struct {
	Version      string         `json:"version"`
	LogicalClock uint64         `json:"logicalClock"`
	Events       []*event.Event `json:"events"`
}

// Export returns the full committed log in clock order. Parked events are
// not part of durable state.
func (s *Store) Export() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{Version: ExportVersion, LogicalClock: s.clock}
	snap.Events = make([]*event.Event, len(s.log))
	for i, e := range s.log {
		snap.Events[i] = e.Clone()
	}
	return snap
}

// ImportError records one rejected event during import.
type ImportError struct {
	EventID string `json:"eventId,omitempty"`
	Err     string `json:"error"`
}

// ImportResult summarizes a replayed snapshot.
type ImportResult struct {
	Success  bool          `json:"success"`
	Imported int           `json:"imported"`
	Parked   int           `json:"parked"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// Import replays every snapshot event through Append, so a corrupt or
// rule-violating event is rejected individually, never all-or-nothing.
// Logical clocks are reassigned locally; duplicates are skipped silently.
func (s *Store) Import(snap *Snapshot) *ImportResult {
	res := &ImportResult{}
	if snap == nil {
		res.Errors = append(res.Errors, ImportError{Err: "nil snapshot"})
		return res
	}
	if err := checkSnapshotVersion(snap.Version); err != nil {
		res.Errors = append(res.Errors, ImportError{Err: err.Error()})
		return res
	}
	batch := make(map[string]bool, len(snap.Events))
	for _, e := range snap.Events {
		incoming := e.Clone()
		if incoming != nil {
			incoming.LogicalClock = 0
		}
		ar, err := s.Append(incoming)
		if err != nil {
			id := ""
			if incoming != nil {
				id = incoming.ID
			}
			res.Errors = append(res.Errors, ImportError{EventID: id, Err: err.Error()})
			continue
		}
		if !ar.Duplicate {
			batch[ar.EventID] = true
		}
	}
	for _, id := range s.ParkedIDs() {
		if batch[id] {
			res.Parked++
		}
	}
	for id := range batch {
		if _, ok := s.Get(id); ok {
			res.Imported++
		}
	}
	res.Success = len(res.Errors) == 0
	return res
}

// checkSnapshotVersion verifies the snapshot comes from the same major
// format line: same major, any minor/patch.
func checkSnapshotVersion(v string) error {
	if v == "" {
		return fmt.Errorf("store: snapshot declares no version")
	}
	got, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("store: snapshot version %q: %w", v, err)
	}
	if got.Major() != semver.MustParse(ExportVersion).Major() {
		return fmt.Errorf("store: incompatible snapshot version %s (ours %s)", v, ExportVersion)
	}
	return nil
}

// ImportJSON validates each raw event against the wire schema before
// replaying it, protecting the trust boundary from malformed input.
func (s *Store) ImportJSON(raw []byte) (*ImportResult, error) {
	var envelope struct {
		Version      string            `json:"version"`
		LogicalClock uint64            `json:"logicalClock"`
		Events       []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}

	snap := &Snapshot{Version: envelope.Version, LogicalClock: envelope.LogicalClock}
	res := &ImportResult{}
	for i, rawEvent := range envelope.Events {
		if err := event.ValidateWire(rawEvent); err != nil {
			res.Errors = append(res.Errors, ImportError{EventID: rawEventID(rawEvent), Err: err.Error()})
			continue
		}
		var e event.Event
		if err := json.Unmarshal(rawEvent, &e); err != nil {
			res.Errors = append(res.Errors, ImportError{EventID: rawEventID(rawEvent), Err: fmt.Sprintf("event %d: %v", i, err)})
			continue
		}
		snap.Events = append(snap.Events, &e)
	}

	replay := s.Import(snap)
	replay.Errors = append(res.Errors, replay.Errors...)
	replay.Success = len(replay.Errors) == 0
	return replay, nil
}

func rawEventID(raw json.RawMessage) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.ID
}

// AsValidationErrors unwraps err into the typed violation list, if it is
// one.
func AsValidationErrors(err error) (event.ValidationErrors, bool) {
	var verrs event.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}
